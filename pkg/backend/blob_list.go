package backend

import (
	"context"
	"fmt"
	"io"
	"strings"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ListObjects lists objects in the backend.
// If a single object exists at the path, it returns just that object.
// Otherwise the path is a prefix; Recursive=false returns immediate children only.
func (b *blobbackend) ListObjects(ctx context.Context, req schema.ListObjectsRequest) (*schema.ListObjectsResponse, error) {
	key := b.Key(req.Path)
	if key == "" {
		return nil, httpresponse.ErrBadRequest.Withf("path %q not handled by backend %q", req.Path, b.Name())
	}
	sk := b.storageKey(key)

	// Response
	response := schema.ListObjectsResponse{
		Name: b.Name(),
	}

	// Check if this path refers to a single real object
	if attrs := b.isRealObject(ctx, sk); attrs != nil {
		response.Body = append(response.Body, *b.attrsToObject(key, attrs))
		return &response, nil
	}

	// Treat as prefix
	prefix := strings.TrimSuffix(sk, "/")
	if prefix != "" {
		prefix = prefix + "/"
	}
	var delim string
	if !req.Recursive {
		delim = "/"
	}
	iter := b.bucket.List(&blob.ListOptions{
		Prefix:    prefix,
		Delimiter: delim,
	})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, blobErr(err, b.Name()+":"+key)
		}

		// Skip the prefix itself
		if obj.Key == prefix {
			continue
		}

		o := schema.Object{
			Name:    b.Name(),
			Path:    b.pathFromStorageKey(obj.Key),
			Size:    obj.Size,
			ModTime: obj.ModTime,
		}
		if len(obj.MD5) > 0 {
			o.ETag = fmt.Sprintf("%x", obj.MD5)
		}
		response.Body = append(response.Body, o)
	}

	return &response, nil
}
