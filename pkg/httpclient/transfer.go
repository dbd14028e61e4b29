package httpclient

import (
	"context"
	"io"
	"net/textproto"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// CreateTransfer registers a transfer before any bytes are sent.
func (c *Client) CreateTransfer(ctx context.Context, req schema.CreateTransferRequest) (*schema.Transfer, error) {
	payload, err := client.NewJSONRequest(req)
	if err != nil {
		return nil, err
	}

	var response schema.Transfer
	if err := c.DoWithContext(ctx, payload, &response, client.OptPath("transfer")); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetTransfer returns the last known state of a transfer.
func (c *Client) GetTransfer(ctx context.Context, id string) (*schema.Transfer, error) {
	var response schema.Transfer
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("transfer", id)); err != nil {
		return nil, err
	}
	return &response, nil
}

// ListTransfers returns the live transfers.
func (c *Client) ListTransfers(ctx context.Context) (*schema.ListTransfersResponse, error) {
	var response schema.ListTransfersResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("transfer")); err != nil {
		return nil, err
	}
	return &response, nil
}

// Upload sends the file for a registered transfer as a streaming multipart
// POST. progress, when not nil, is called as bytes are sent with the number
// written and size; it is the local estimate shown until the server reports
// progress. The server accepts the file once received and relays it to
// storage in the background.
func (c *Client) Upload(ctx context.Context, id, filename string, r io.Reader, size int64, progress func(written, total int64)) (*schema.Transfer, error) {
	body := io.NopCloser(r)
	if progress != nil {
		body = newUploadProgressReadCloser(body, size, progress)
	}
	h := textproto.MIMEHeader{}
	if size > 0 {
		h.Set(types.ContentLengthHeader, strconv.FormatInt(size, 10))
	}

	// The encoder writes each types.File as a multipart "file" part
	upload := struct {
		Files []types.File `json:"file"`
	}{
		Files: []types.File{{
			Path:        filename,
			Body:        body,
			ContentType: types.ContentTypeBinary,
			Header:      h,
		}},
	}
	payload, err := client.NewStreamingMultipartRequest(&upload, types.ContentTypeJSON)
	if err != nil {
		return nil, err
	}

	var response schema.Transfer
	if err := c.DoWithContext(ctx, payload, &response,
		client.OptPath("transfer", id),
		client.OptNoTimeout(),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE HELPERS

type uploadProgressReadCloser struct {
	r        io.ReadCloser
	total    int64
	written  int64
	lastEmit int64
	cb       func(written, total int64)
}

func newUploadProgressReadCloser(r io.ReadCloser, total int64, cb func(written, total int64)) io.ReadCloser {
	return &uploadProgressReadCloser{
		r:     r,
		total: total,
		cb:    cb,
	}
}

func (r *uploadProgressReadCloser) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.written += int64(n)
		if r.written-r.lastEmit >= 64*1024 || (r.total > 0 && r.written >= r.total) {
			r.lastEmit = r.written
			r.cb(r.written, r.total)
		}
	}
	return n, err
}

func (r *uploadProgressReadCloser) Close() error {
	return r.r.Close()
}
