package manager_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	publisher "github.com/mutablelogic/go-transfer/pkg/publisher"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	store "github.com/mutablelogic/go-transfer/pkg/store"
	assert "github.com/stretchr/testify/assert"
)

///////////////////////////////////////////////////////////////////////////////
// HELPERS

func newTestManager(t *testing.T, opts ...manager.Opt) *manager.Manager {
	t.Helper()
	ctx := context.Background()
	opts = append([]manager.Opt{
		manager.WithBackend(ctx, "mem://media"),
		manager.WithInterval(0),
		manager.WithSpool(t.TempDir()),
	}, opts...)
	mgr, err := manager.New(ctx, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.MemoryDSN)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// collect reads events from a subscription until the stream ends
func collect(t *testing.T, sub *publisher.Subscription) []schema.ProgressEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []schema.ProgressEvent
	for {
		e, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return events
		} else if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, e)
	}
}

func register(t *testing.T, mgr *manager.Manager, name string, total int64) (*schema.Transfer, *publisher.Subscription) {
	t.Helper()
	session, err := mgr.RegisterTransfer(context.Background(), schema.CreateTransferRequest{
		Backend:    "media",
		Path:       "/uploads",
		FileName:   name,
		TotalBytes: total,
	})
	if err != nil {
		t.Fatalf("RegisterTransfer: %v", err)
	}
	sub, err := mgr.Publisher().Subscribe(session.ID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	t.Cleanup(func() { sub.Close() })
	return session, sub
}

func terminals(events []schema.ProgressEvent) []schema.ProgressEvent {
	var result []schema.ProgressEvent
	for _, e := range events {
		if e.Terminal() {
			result = append(result, e)
		}
	}
	return result
}

type failingPersister struct{}

func (failingPersister) CreateRecord(context.Context, schema.RecordMeta) (*schema.Record, error) {
	return nil, errors.New("database is locked")
}

type errReader struct {
	n int
}

func (r *errReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, errors.New("connection reset by peer")
	}
	n := min(len(p), r.n)
	r.n -= n
	return n, nil
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_Manager_RegisterTransfer(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t)
	ctx := context.Background()

	session, err := mgr.RegisterTransfer(ctx, schema.CreateTransferRequest{
		Backend:    "media",
		Path:       "/course/week 1",
		FileName:   "My Lesson (final).MP4",
		TotalBytes: 1024,
	})
	if !assert.NoError(err) {
		return
	}
	assert.NotEmpty(session.ID)
	assert.Equal("/course/week 1/my_lesson_final.mp4", session.Path)
	assert.Equal("My Lesson (final).MP4", session.FileName)
	assert.Equal(schema.StatusPending, session.Status)
	assert.Equal(schema.StageTransport, session.Stage)

	// Fixed identifier
	session, err = mgr.RegisterTransfer(ctx, schema.CreateTransferRequest{ID: "abc-123", Backend: "media", FileName: "a.txt"})
	assert.NoError(err)
	assert.Equal("abc-123", session.ID)
	assert.Equal("/a.txt", session.Path)

	// Duplicate identifier
	_, err = mgr.RegisterTransfer(ctx, schema.CreateTransferRequest{ID: "abc-123", Backend: "media", FileName: "a.txt"})
	assert.ErrorIs(err, httpresponse.ErrConflict)

	// Unknown backend
	_, err = mgr.RegisterTransfer(ctx, schema.CreateTransferRequest{Backend: "other", FileName: "a.txt"})
	assert.ErrorIs(err, httpresponse.ErrNotFound)

	// Name with nothing left after sanitising
	_, err = mgr.RegisterTransfer(ctx, schema.CreateTransferRequest{Backend: "media", FileName: "***"})
	assert.ErrorIs(err, httpresponse.ErrBadRequest)

	// Listed
	list := mgr.ListTransfers(ctx)
	assert.Equal(2, list.Count)
}

func Test_Manager_SanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"lesson.mp4", "lesson.mp4"},
		{"My Lesson.MP4", "my_lesson.mp4"},
		{"  spaced   out  .txt", "spaced_out_.txt"},
		{"résumé (1).pdf", "rsum_1.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\notes.txt`, "notes.txt"},
		{"a-b_c.d", "a-b_c.d"},
		{"***", ""},
		{"..", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, manager.SanitizeName(tt.in))
		})
	}
}

func Test_Manager_RunTransfer_Completed(t *testing.T) {
	for _, verify := range []manager.Verify{manager.VerifyNone, manager.VerifySize, manager.VerifyChecksum} {
		t.Run(string(verify), func(t *testing.T) {
			assert := assert.New(t)
			records := newTestStore(t)
			mgr := newTestManager(t, manager.WithPersister(records), manager.WithVerify(verify))
			ctx := context.Background()

			content := bytes.Repeat([]byte("x"), 300*1024)
			session, sub := register(t, mgr, "video.mp4", int64(len(content)))
			assert.NoError(mgr.RunTransfer(ctx, session.ID, bytes.NewReader(content), int64(len(content))))

			events := collect(t, sub)
			if !assert.NotEmpty(events) {
				return
			}

			// Exactly one terminal event, and it is the last one
			assert.Len(terminals(events), 1)
			last := events[len(events)-1]
			assert.Equal(schema.StatusCompleted, last.Status)
			assert.Equal(schema.StagePersistence, last.Stage)
			assert.Equal(float64(100), last.Percent)

			// The saved record is reported before the terminal event, so a
			// watcher that loses the terminal event can still infer it
			if assert.GreaterOrEqual(len(events), 2) {
				saved := events[len(events)-2]
				assert.Equal(schema.StagePersistence, saved.Stage)
				assert.Equal(schema.StatusActive, saved.Status)
				assert.Equal(float64(100), saved.Percent)
			}

			// Stages never move backwards and percent never decreases within a stage
			var hasProcessing, hasMidTransport bool
			for i := 1; i < len(events); i++ {
				prev, cur := events[i-1], events[i]
				assert.False(cur.Stage.Before(prev.Stage), "stage moved from %s to %s", prev.Stage, cur.Stage)
				if cur.Stage == prev.Stage {
					assert.GreaterOrEqual(cur.Percent, prev.Percent)
				}
				if cur.Stage == schema.StageRemoteProcessing {
					hasProcessing = true
				}
				if cur.Stage == schema.StageTransport && cur.Percent > 0 && cur.Percent < 100 {
					hasMidTransport = true
					assert.NotNil(cur.ThroughputHint)
				}
			}
			assert.Equal(verify != manager.VerifyNone, hasProcessing)
			assert.True(hasMidTransport)

			// The object and its record exist
			obj, err := mgr.GetObject(ctx, "media", schema.GetObjectRequest{Path: "/uploads/video.mp4"})
			if assert.NoError(err) {
				assert.Equal(int64(len(content)), obj.Size)
				assert.Equal(session.ID, obj.Meta[schema.AttrTransferID])
			}
			record, err := records.GetRecord(ctx, session.ID)
			if assert.NoError(err) {
				assert.Equal("/uploads/video.mp4", record.Path)
				assert.Equal(int64(len(content)), record.Size)
				if verify == manager.VerifyChecksum {
					assert.Len(record.Checksum, 64)
				} else {
					assert.Empty(record.Checksum)
				}
			}

			// Further events are rejected
			_, err = mgr.AcceptTransfer(ctx, session.ID, strings.NewReader("again"))
			assert.ErrorIs(err, httpresponse.ErrConflict)
		})
	}
}

func Test_Manager_RunTransfer_PersistenceFailed(t *testing.T) {
	tests := []struct {
		name string
		opts []manager.Opt
		want string
	}{
		{"no persister", nil, "no metadata service configured"},
		{"persister error", []manager.Opt{manager.WithPersister(failingPersister{})}, "database is locked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			mgr := newTestManager(t, tt.opts...)
			ctx := context.Background()

			session, sub := register(t, mgr, "notes.txt", 5)
			assert.Error(mgr.RunTransfer(ctx, session.ID, strings.NewReader("hello"), 5))

			events := collect(t, sub)
			if !assert.Len(terminals(events), 1) {
				return
			}
			last := events[len(events)-1]
			assert.Equal(schema.StatusFailed, last.Status)
			assert.Equal(schema.StagePersistence, last.Stage)
			assert.True(strings.HasPrefix(last.Message, manager.ErrRecordNotSaved), last.Message)
			assert.Contains(last.Message, tt.want)

			// The file itself was stored
			_, err := mgr.GetObject(ctx, "media", schema.GetObjectRequest{Path: "/uploads/notes.txt"})
			assert.NoError(err)
		})
	}
}

func Test_Manager_RunTransfer_TransportFailed(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t, manager.WithPersister(newTestStore(t)))
	ctx := context.Background()

	session, sub := register(t, mgr, "broken.bin", 1024*1024)
	err := mgr.RunTransfer(ctx, session.ID, &errReader{n: 200 * 1024}, 1024*1024)
	assert.Error(err)

	events := collect(t, sub)
	if !assert.Len(terminals(events), 1) {
		return
	}
	last := events[len(events)-1]
	assert.Equal(schema.StatusFailed, last.Status)
	assert.Equal(schema.StageTransport, last.Stage)
	assert.Contains(last.Message, "connection reset by peer")

	// The partial object was removed
	_, err = mgr.GetObject(ctx, "media", schema.GetObjectRequest{Path: "/uploads/broken.bin"})
	assert.ErrorIs(err, httpresponse.ErrNotFound)
}

func Test_Manager_RunTransfer_SizeMismatch(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t, manager.WithPersister(newTestStore(t)), manager.WithVerify(manager.VerifySize))
	ctx := context.Background()

	session, sub := register(t, mgr, "short.txt", 100)
	assert.Error(mgr.RunTransfer(ctx, session.ID, strings.NewReader("hello"), 5))

	events := collect(t, sub)
	last := events[len(events)-1]
	assert.Equal(schema.StatusFailed, last.Status)
	assert.Equal(schema.StageRemoteProcessing, last.Stage)
	assert.Contains(last.Message, "does not match declared size")
}

func Test_Manager_RunTransfer_Unknown(t *testing.T) {
	mgr := newTestManager(t)
	err := mgr.RunTransfer(context.Background(), "missing", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, httpresponse.ErrNotFound)
}

func Test_Manager_AcceptTransfer(t *testing.T) {
	assert := assert.New(t)
	records := newTestStore(t)
	mgr := newTestManager(t, manager.WithPersister(records))
	ctx := context.Background()

	session, sub := register(t, mgr, "hello.txt", 0)
	_, err := mgr.AcceptTransfer(ctx, session.ID, strings.NewReader("hello, world"))
	assert.NoError(err)

	// Accepted once only
	_, err = mgr.AcceptTransfer(ctx, session.ID, strings.NewReader("again"))
	assert.ErrorIs(err, httpresponse.ErrConflict)

	events := collect(t, sub)
	last := events[len(events)-1]
	assert.Equal(schema.StatusCompleted, last.Status)

	record, err := records.GetRecord(ctx, session.ID)
	if assert.NoError(err) {
		assert.Equal(int64(12), record.Size)
	}

	// Unknown transfer
	_, err = mgr.AcceptTransfer(ctx, "missing", strings.NewReader("x"))
	assert.ErrorIs(err, httpresponse.ErrNotFound)
}

func Test_Manager_StartTransfer_Cancelled(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	mgr, err := manager.New(ctx, manager.WithBackend(ctx, "mem://media"), manager.WithConcurrency(1))
	if !assert.NoError(err) {
		return
	}

	// Block the only slot with a body that never ends until the manager closes
	pr, pw := io.Pipe()
	first, sub := register(t, mgr, "first.bin", 0)
	second, sub2 := register(t, mgr, "second.bin", 0)
	assert.NoError(mgr.StartTransfer(first.ID, pr, 0))
	assert.NoError(mgr.StartTransfer(second.ID, io.NopCloser(strings.NewReader("x")), 1))
	go func() {
		time.Sleep(50 * time.Millisecond)
		pw.CloseWithError(errors.New("client went away"))
	}()
	assert.NoError(mgr.Close())

	for _, sub := range []*publisher.Subscription{sub, sub2} {
		events := collect(t, sub)
		assert.Len(terminals(events), 1)
	}
}

func Test_Manager_ListObjects(t *testing.T) {
	assert := assert.New(t)
	mgr := newTestManager(t, manager.WithVerify(manager.VerifyNone))
	ctx := context.Background()
	b := mgr.Backend("media")
	if !assert.NotNil(b) {
		return
	}
	for _, name := range []string{"/a.txt", "/b.txt", "/c.txt"} {
		_, err := b.CreateObject(ctx, schema.CreateObjectRequest{Path: name, Body: strings.NewReader(name)})
		assert.NoError(err)
	}

	resp, err := mgr.ListObjects(ctx, "media", schema.ListObjectsRequest{Path: "/", Limit: 2, Offset: 1})
	if assert.NoError(err) {
		assert.Equal(3, resp.Count)
		assert.Len(resp.Body, 2)
	}
	resp, err = mgr.ListObjects(ctx, "media", schema.ListObjectsRequest{Path: "/"})
	if assert.NoError(err) {
		assert.Equal(3, resp.Count)
		assert.Empty(resp.Body)
	}
	_, err = mgr.ListObjects(ctx, "other", schema.ListObjectsRequest{})
	assert.ErrorIs(err, httpresponse.ErrNotFound)
	assert.Equal([]string{"media"}, mgr.Backends())
}
