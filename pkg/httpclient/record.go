package httpclient

import (
	"context"
	"net/url"
	"strconv"

	// Packages
	client "github.com/mutablelogic/go-client"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// CreateRecord saves a record in a remote metadata service.
func (c *Client) CreateRecord(ctx context.Context, meta schema.RecordMeta) (*schema.Record, error) {
	payload, err := client.NewJSONRequest(meta)
	if err != nil {
		return nil, err
	}

	var response schema.Record
	if err := c.DoWithContext(ctx, payload, &response, client.OptPath("record")); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetRecord returns the record saved for a transfer.
func (c *Client) GetRecord(ctx context.Context, id string) (*schema.Record, error) {
	var response schema.Record
	if err := c.DoWithContext(ctx, client.NewRequest(), &response, client.OptPath("record", id)); err != nil {
		return nil, err
	}
	return &response, nil
}

// ListRecords returns saved records, newest first.
func (c *Client) ListRecords(ctx context.Context, req schema.ListRecordsRequest) (*schema.ListRecordsResponse, error) {
	query := make(url.Values)
	if req.TransferID != "" {
		query.Set("transferId", req.TransferID)
	}
	if req.Backend != "" {
		query.Set("backend", req.Backend)
	}
	if req.Path != "" {
		query.Set("path", req.Path)
	}
	if req.Offset > 0 {
		query.Set("offset", strconv.Itoa(req.Offset))
	}
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}

	var response schema.ListRecordsResponse
	if err := c.DoWithContext(ctx, client.NewRequest(), &response,
		client.OptPath("record"),
		client.OptQuery(query),
	); err != nil {
		return nil, err
	}
	return &response, nil
}

// Verify reports whether a record exists for the transfer. The record is the
// authoritative answer to whether an upload was saved, used when the
// progress stream could not say.
func (c *Client) Verify(ctx context.Context, id string) (bool, error) {
	response, err := c.ListRecords(ctx, schema.ListRecordsRequest{TransferID: id, Limit: 1})
	if err != nil {
		return false, err
	}
	return response.Count > 0, nil
}
