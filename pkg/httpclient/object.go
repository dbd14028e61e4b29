package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// ListBackends returns the backend names and URLs.
func (c *Client) ListBackends(ctx context.Context) (*schema.BackendListResponse, error) {
	var response schema.BackendListResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// ListObjects returns the objects stored in a backend under an optional path
// prefix.
func (c *Client) ListObjects(ctx context.Context, name string, req schema.ListObjectsRequest) (*schema.ListObjectsResponse, error) {
	query := make(url.Values)
	if req.Path != "" {
		query.Set("path", req.Path)
	}
	if req.Recursive {
		query.Set("recursive", "true")
	}
	if req.Offset > 0 {
		query.Set("offset", strconv.Itoa(req.Offset))
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}

	var response schema.ListObjectsResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response,
		client.OptPath("object", name),
		client.OptQuery(query),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// DeleteObject removes a stored object and returns its last known metadata.
func (c *Client) DeleteObject(ctx context.Context, name string, req schema.DeleteObjectRequest) (*schema.Object, error) {
	// One segment per path element, so that separators are not escaped
	segments := []any{"object", name}
	for _, segment := range strings.Split(strings.Trim(req.Path, "/"), "/") {
		segments = append(segments, segment)
	}

	var response schema.Object
	if err := c.DoWithContext(ctx,
		client.NewRequestEx(http.MethodDelete, types.ContentTypeJSON),
		&response,
		client.OptPath(segments...),
	); err != nil {
		return nil, err
	}
	return &response, nil
}
