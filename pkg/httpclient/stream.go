package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	// Packages
	client "github.com/mutablelogic/go-client"
	types "github.com/mutablelogic/go-server/pkg/types"
	transfer "github.com/mutablelogic/go-transfer"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	version "github.com/mutablelogic/go-transfer/pkg/version"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// stream decodes progress events from a text/event-stream response body in
// the background and hands them to Next one at a time
type stream struct {
	body   io.ReadCloser
	events chan schema.ProgressEvent
	done   chan struct{}
	once   sync.Once
	err    error // decode error, set before events is closed
}

var _ transfer.Stream = (*stream)(nil)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Open connects to the progress stream of a transfer. It returns
// schema.ErrTransferNotFound when the server does not know the transfer;
// any other error is transient and the caller may reconnect.
func (c *Client) Open(ctx context.Context, id string) (transfer.Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("progress", id), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", client.ContentTypeTextStream)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent("transfer"))

	response, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case response.StatusCode == http.StatusNotFound:
		response.Body.Close()
		return nil, fmt.Errorf("%w: %q", schema.ErrTransferNotFound, id)
	case response.StatusCode != http.StatusOK:
		response.Body.Close()
		return nil, fmt.Errorf("progress stream: unexpected status %s", response.Status)
	case !strings.HasPrefix(response.Header.Get(types.ContentTypeHeader), client.ContentTypeTextStream):
		response.Body.Close()
		return nil, fmt.Errorf("progress stream: unexpected content type %q", response.Header.Get(types.ContentTypeHeader))
	}

	s := &stream{
		body:   response.Body,
		events: make(chan schema.ProgressEvent),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.events)
		s.err = client.NewTextStream().Decode(s.body, s.decode)
	}()
	return s, nil
}

// Next returns the next progress event. It returns io.EOF when the server
// closes the stream, and the context error when ctx is done first.
func (s *stream) Next(ctx context.Context) (schema.ProgressEvent, error) {
	select {
	case <-ctx.Done():
		return schema.ProgressEvent{}, ctx.Err()
	case <-s.done:
		return schema.ProgressEvent{}, io.EOF
	case e, ok := <-s.events:
		switch {
		case ok:
			return e, nil
		case s.err == nil, s.closed():
			return schema.ProgressEvent{}, io.EOF
		default:
			return schema.ProgressEvent{}, s.err
		}
	}
}

// Close ends the stream. It is safe to call more than once.
func (s *stream) Close() error {
	var result error
	s.once.Do(func() {
		close(s.done)
		result = s.body.Close()
	})
	return result
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// decode passes progress events to Next and skips anything else. Returning
// io.EOF ends decoding without an error once the stream is closed.
func (s *stream) decode(e client.TextStreamEvent) error {
	if e.Event != schema.ProgressEventName || e.Data == "" {
		return nil
	}
	event, err := schema.Decode([]byte(e.Data))
	if err != nil {
		return errors.Join(fmt.Errorf("progress stream: %q", e.Data), err)
	}
	select {
	case s.events <- event:
		return nil
	case <-s.done:
		return io.EOF
	}
}

func (s *stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
