package backend

import (
	"context"
	"io"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// GetObject gets object metadata
func (b *blobbackend) GetObject(ctx context.Context, req schema.GetObjectRequest) (*schema.Object, error) {
	key := b.Key(req.Path)
	if key == "" {
		return nil, httpresponse.ErrBadRequest.Withf("path %q not handled by backend %q", req.Path, b.Name())
	}

	// Get and return attributes
	if attrs, err := b.bucket.Attributes(ctx, b.storageKey(key)); err != nil {
		return nil, blobErr(err, b.Name()+":"+key)
	} else {
		return b.attrsToObject(key, attrs), nil
	}
}

// ReadObject returns a reader for the object content, which the caller
// must close, and the object metadata
func (b *blobbackend) ReadObject(ctx context.Context, req schema.ReadObjectRequest) (io.ReadCloser, *schema.Object, error) {
	key := b.Key(req.Path)
	if key == "" {
		return nil, nil, httpresponse.ErrBadRequest.Withf("path %q not handled by backend %q", req.Path, b.Name())
	}
	sk := b.storageKey(key)

	attrs, err := b.bucket.Attributes(ctx, sk)
	if err != nil {
		return nil, nil, blobErr(err, b.Name()+":"+key)
	}
	r, err := b.bucket.NewReader(ctx, sk, nil)
	if err != nil {
		return nil, nil, blobErr(err, b.Name()+":"+key)
	}
	return r, b.attrsToObject(key, attrs), nil
}
