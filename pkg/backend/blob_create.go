package backend

import (
	"context"
	"errors"
	"io"
	"maps"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	blob "gocloud.dev/blob"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// CreateObject writes an object to the backend. On a write error the partial
// object is removed and the storage error is returned.
func (b *blobbackend) CreateObject(ctx context.Context, req schema.CreateObjectRequest) (*schema.Object, error) {
	key := b.Key(req.Path)
	if key == "" || key == "/" {
		return nil, httpresponse.ErrBadRequest.Withf("path %q not handled by backend %q", req.Path, b.Name())
	} else if req.Body == nil {
		return nil, httpresponse.ErrBadRequest.With("missing object body")
	}
	sk := b.storageKey(key)

	// Clone metadata to avoid mutating the caller's map
	var meta schema.ObjectMeta
	if req.Meta != nil || !req.ModTime.IsZero() {
		meta = make(schema.ObjectMeta, len(req.Meta)+1)
		maps.Copy(meta, req.Meta)
	}
	if !req.ModTime.IsZero() {
		meta[schema.AttrLastModified] = req.ModTime.Format(time.RFC3339)
	}

	// Write the object
	if w, err := b.bucket.NewWriter(ctx, sk, &blob.WriterOptions{
		ContentType: req.ContentType,
		Metadata:    meta,
	}); err != nil {
		return nil, blobErr(err, b.Name()+":"+key)
	} else if _, err := io.Copy(w, req.Body); err != nil {
		err = errors.Join(err, w.Close())
		_ = b.bucket.Delete(context.WithoutCancel(ctx), sk)
		return nil, blobErr(err, b.Name()+":"+key)
	} else if err := w.Close(); err != nil {
		_ = b.bucket.Delete(context.WithoutCancel(ctx), sk)
		return nil, blobErr(err, b.Name()+":"+key)
	}

	// The write succeeded; when attributes cannot be read back return a
	// partial object rather than an error, so the caller does not retry
	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		return &schema.Object{
			Name:        b.Name(),
			Path:        key,
			ContentType: req.ContentType,
			Meta:        meta,
		}, nil
	}

	// Return success
	return b.attrsToObject(key, attrs), nil
}
