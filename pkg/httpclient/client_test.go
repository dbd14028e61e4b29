package httpclient_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	// Packages
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	httpclient "github.com/mutablelogic/go-transfer/pkg/httpclient"
	httphandler "github.com/mutablelogic/go-transfer/pkg/httphandler"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	store "github.com/mutablelogic/go-transfer/pkg/store"
	assert "github.com/stretchr/testify/assert"
)

///////////////////////////////////////////////////////////////////////////////
// HELPERS

type muxRouter struct {
	*http.ServeMux
}

func (m muxRouter) RegisterFunc(path string, handler http.HandlerFunc, _ bool, _ *openapi.PathItem) error {
	m.HandleFunc(path, handler)
	return nil
}

func newTestServer(t *testing.T) (*httpclient.Client, *manager.Manager) {
	t.Helper()
	ctx := context.Background()
	records, err := store.Open(ctx, store.MemoryDSN)
	if err != nil {
		t.Fatalf("newTestServer: failed to open store: %v", err)
	}
	mgr, err := manager.New(ctx,
		manager.WithBackend(ctx, "mem://media"),
		manager.WithPersister(records),
		manager.WithVerify(manager.VerifyChecksum),
		manager.WithInterval(0),
		manager.WithSpool(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("newTestServer: failed to create manager: %v", err)
	}
	mux := muxRouter{http.NewServeMux()}
	if err := httphandler.RegisterHandlers(mgr, records, mux); err != nil {
		t.Fatalf("newTestServer: %v", err)
	}
	srv := httptest.NewServer(mux)
	c, err := httpclient.New(srv.URL)
	if err != nil {
		t.Fatalf("newTestServer: failed to create client: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		mgr.Close()
		records.Close()
	})
	return c, mgr
}

func nextEvent(t *testing.T, s interface {
	Next(context.Context) (schema.ProgressEvent, error)
}) (schema.ProgressEvent, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Next(ctx)
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Client_Transfer(t *testing.T) {
	assert := assert.New(t)
	c, _ := newTestServer(t)
	ctx := context.Background()

	session, err := c.CreateTransfer(ctx, schema.CreateTransferRequest{Backend: "media", Path: "/course", FileName: "Intro.mp4"})
	if !assert.NoError(err) {
		return
	}
	assert.Equal("/course/intro.mp4", session.Path)

	got, err := c.GetTransfer(ctx, session.ID)
	if assert.NoError(err) {
		assert.Equal(session.ID, got.ID)
		assert.Equal(schema.StatusPending, got.Status)
	}

	list, err := c.ListTransfers(ctx)
	if assert.NoError(err) {
		assert.Equal(1, list.Count)
	}

	_, err = c.CreateTransfer(ctx, schema.CreateTransferRequest{Backend: "missing", FileName: "a.txt"})
	assert.Error(err)
	_, err = c.GetTransfer(ctx, "missing")
	assert.Error(err)
}

func Test_Client_UploadAndStream(t *testing.T) {
	assert := assert.New(t)
	c, _ := newTestServer(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte("0123456789"), 20*1024)
	session, err := c.CreateTransfer(ctx, schema.CreateTransferRequest{Backend: "media", FileName: "data.bin", TotalBytes: int64(len(content))})
	if !assert.NoError(err) {
		return
	}

	// Subscribe before sending any bytes
	stream, err := c.Open(ctx, session.ID)
	if !assert.NoError(err) {
		return
	}
	defer stream.Close()

	var local []int64
	_, err = c.Upload(ctx, session.ID, "data.bin", bytes.NewReader(content), int64(len(content)), func(written, total int64) {
		local = append(local, written)
	})
	if !assert.NoError(err) {
		return
	}
	if assert.NotEmpty(local) {
		assert.Equal(int64(len(content)), local[len(local)-1])
	}

	// Events arrive in order until the terminal event, then the stream ends
	var last schema.ProgressEvent
	for {
		e, err := nextEvent(t, stream)
		if errors.Is(err, io.EOF) {
			break
		} else if !assert.NoError(err) {
			return
		}
		assert.Equal(session.ID, e.TransferID)
		assert.False(e.Stage.Before(last.Stage) && last.Stage != "")
		last = e
	}
	assert.Equal(schema.StatusCompleted, last.Status)
	assert.Equal(schema.StagePersistence, last.Stage)

	// The record is the authoritative answer
	ok, err := c.Verify(ctx, session.ID)
	assert.NoError(err)
	assert.True(ok)
	record, err := c.GetRecord(ctx, session.ID)
	if assert.NoError(err) {
		assert.Equal(int64(len(content)), record.Size)
		assert.Len(record.Checksum, 64)
	}

	// The stored object is listed
	objects, err := c.ListObjects(ctx, "media", schema.ListObjectsRequest{Path: "/", Limit: 10})
	if assert.NoError(err) {
		assert.Equal(1, objects.Count)
	}

	// A late subscriber gets the final state and the stream ends
	stream2, err := c.Open(ctx, session.ID)
	if assert.NoError(err) {
		defer stream2.Close()
		e, err := nextEvent(t, stream2)
		assert.NoError(err)
		assert.Equal(schema.StatusCompleted, e.Status)
		_, err = nextEvent(t, stream2)
		assert.ErrorIs(err, io.EOF)
	}
}

func Test_Client_OpenUnknown(t *testing.T) {
	c, _ := newTestServer(t)
	_, err := c.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, schema.ErrTransferNotFound)
}

func Test_Client_StreamCancel(t *testing.T) {
	assert := assert.New(t)
	c, _ := newTestServer(t)

	session, err := c.CreateTransfer(context.Background(), schema.CreateTransferRequest{Backend: "media", FileName: "a.txt"})
	if !assert.NoError(err) {
		return
	}
	stream, err := c.Open(context.Background(), session.ID)
	if !assert.NoError(err) {
		return
	}
	defer stream.Close()

	// Nothing is published for a pending transfer, so Next waits for ctx
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)
}

func Test_Client_StreamDecode(t *testing.T) {
	assert := assert.New(t)

	// Comments, other event names and multi-line data are handled by the
	// text stream decoder; only progress events reach Next
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, ": keepalive\n\n")
		io.WriteString(w, "event: ping\ndata: {}\n\n")
		io.WriteString(w, "event: progress\ndata: {\"transferId\":\"t1\",\"stage\":\"transport\",\n")
		io.WriteString(w, "data: \"status\":\"active\",\"percent\":40}\n\n")
		io.WriteString(w, "retry: 1000\n")
		io.WriteString(w, "event: progress\ndata: {\"transferId\":\"t1\",\"stage\":\"persistence\",\"status\":\"completed\",\"percent\":100}\n\n")
	}))
	defer srv.Close()
	c, err := httpclient.New(srv.URL)
	if !assert.NoError(err) {
		return
	}

	stream, err := c.Open(context.Background(), "t1")
	if !assert.NoError(err) {
		return
	}
	defer stream.Close()

	e, err := nextEvent(t, stream)
	if assert.NoError(err) {
		assert.Equal(schema.StageTransport, e.Stage)
		assert.Equal(40.0, e.Percent)
	}
	e, err = nextEvent(t, stream)
	if assert.NoError(err) {
		assert.Equal(schema.StatusCompleted, e.Status)
	}
	_, err = nextEvent(t, stream)
	assert.ErrorIs(err, io.EOF)

	// Closing twice is safe and Next reports the end of the stream
	assert.NoError(stream.Close())
	assert.NoError(stream.Close())
	_, err = nextEvent(t, stream)
	assert.ErrorIs(err, io.EOF)
}

func Test_Client_StreamMalformed(t *testing.T) {
	assert := assert.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: progress\ndata: not json\n\n")
	}))
	defer srv.Close()
	c, err := httpclient.New(srv.URL)
	if !assert.NoError(err) {
		return
	}

	stream, err := c.Open(context.Background(), "t1")
	if !assert.NoError(err) {
		return
	}
	defer stream.Close()

	// A decode failure is an error other than io.EOF, so the caller reconnects
	_, err = nextEvent(t, stream)
	assert.Error(err)
	assert.False(errors.Is(err, io.EOF))
}

func Test_Client_Records(t *testing.T) {
	assert := assert.New(t)
	c, _ := newTestServer(t)
	ctx := context.Background()

	ok, err := c.Verify(ctx, "t1")
	assert.NoError(err)
	assert.False(ok)

	// The client is a remote persister
	record, err := c.CreateRecord(ctx, schema.RecordMeta{TransferID: "t1", Backend: "media", Path: "/a.txt", Size: 3})
	if assert.NoError(err) {
		assert.Equal("t1", record.TransferID)
	}
	ok, err = c.Verify(ctx, "t1")
	assert.NoError(err)
	assert.True(ok)

	list, err := c.ListRecords(ctx, schema.ListRecordsRequest{Backend: "media", Limit: 10})
	if assert.NoError(err) {
		assert.Equal(1, list.Count)
		assert.Len(list.Body, 1)
	}

	backends, err := c.ListBackends(ctx)
	if assert.NoError(err) {
		assert.Contains(backends.Body, "media")
	}
}

func Test_Client_DeleteObject(t *testing.T) {
	assert := assert.New(t)
	c, mgr := newTestServer(t)
	ctx := context.Background()

	if _, err := mgr.Backend("media").CreateObject(ctx, schema.CreateObjectRequest{Path: "/uploads/orphan.mp4", Body: bytes.NewReader([]byte("bytes"))}); !assert.NoError(err) {
		return
	}

	obj, err := c.DeleteObject(ctx, "media", schema.DeleteObjectRequest{Path: "/uploads/orphan.mp4"})
	if assert.NoError(err) {
		assert.Equal("/uploads/orphan.mp4", obj.Path)
	}
	list, err := c.ListObjects(ctx, "media", schema.ListObjectsRequest{Path: "/uploads", Limit: 10})
	if assert.NoError(err) {
		assert.Equal(0, list.Count)
	}

	_, err = c.DeleteObject(ctx, "media", schema.DeleteObjectRequest{Path: "/uploads/orphan.mp4"})
	assert.Error(err)
}
