package backend

import (
	"context"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// DeleteObject deletes an object, returning its last known metadata
func (b *blobbackend) DeleteObject(ctx context.Context, req schema.DeleteObjectRequest) (*schema.Object, error) {
	key := b.Key(req.Path)
	if key == "" || key == "/" {
		return nil, httpresponse.ErrBadRequest.Withf("path %q not handled by backend %q", req.Path, b.Name())
	}
	sk := b.storageKey(key)

	// Attributes may not exist, continue with delete
	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		attrs = nil
	}

	// Perform delete
	if err := b.bucket.Delete(ctx, sk); err != nil {
		return nil, blobErr(err, b.Name()+":"+key)
	}

	if attrs != nil {
		return b.attrsToObject(key, attrs), nil
	}
	return &schema.Object{Name: b.Name(), Path: key}, nil
}
