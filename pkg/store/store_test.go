package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	assert "github.com/stretchr/testify/assert"
)

func newTestStore(t *testing.T, dsn string) *Store {
	t.Helper()
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func Test_Store_CreateGet(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestStore(t, MemoryDSN)

	record, err := s.CreateRecord(ctx, schema.RecordMeta{
		TransferID:  "t1",
		Backend:     "media",
		Path:        "/course/lesson.mp4",
		FileName:    "lesson.mp4",
		Size:        1024,
		ContentType: "video/mp4",
		Checksum:    "abc",
	})
	assert.NoError(err)
	assert.False(record.Created.IsZero())

	got, err := s.GetRecord(ctx, "t1")
	assert.NoError(err)
	assert.Equal(record.RecordMeta, got.RecordMeta)
	assert.WithinDuration(record.Created, got.Created, time.Millisecond)

	_, err = s.GetRecord(ctx, "t2")
	assert.ErrorIs(err, httpresponse.ErrNotFound)
}

func Test_Store_Duplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, MemoryDSN)
	meta := schema.RecordMeta{TransferID: "t1", Backend: "media", Path: "/a"}

	_, err := s.CreateRecord(ctx, meta)
	assert.NoError(t, err)
	_, err = s.CreateRecord(ctx, meta)
	assert.ErrorIs(t, err, httpresponse.ErrConflict)
}

func Test_Store_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, MemoryDSN)

	tests := []schema.RecordMeta{
		{TransferID: "", Backend: "media", Path: "/a"},
		{TransferID: "t1", Backend: "", Path: "/a"},
		{TransferID: "t1", Backend: "media", Path: ""},
		{TransferID: "t1", Backend: "media", Path: "/a", Size: -1},
	}
	for i, meta := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := s.CreateRecord(ctx, meta)
			assert.ErrorIs(t, err, httpresponse.ErrBadRequest)
		})
	}
}

func Test_Store_List(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "records.db"))

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	for i, p := range []string{"/course/a.mp4", "/course/b.mp4", "/other/c.mp4", "/course_x/d.mp4"} {
		_, err := s.CreateRecord(ctx, schema.RecordMeta{TransferID: fmt.Sprintf("t%d", i), Backend: "media", Path: p})
		assert.NoError(err)
	}
	_, err := s.CreateRecord(ctx, schema.RecordMeta{TransferID: "x", Backend: "archive", Path: "/course/a.mp4"})
	assert.NoError(err)

	t.Run("count only", func(t *testing.T) {
		resp, err := s.ListRecords(ctx, schema.ListRecordsRequest{})
		assert.NoError(err)
		assert.Equal(5, resp.Count)
		assert.Empty(resp.Body)
	})
	t.Run("backend and prefix", func(t *testing.T) {
		resp, err := s.ListRecords(ctx, schema.ListRecordsRequest{Backend: "media", Path: "/course/", Limit: 10})
		assert.NoError(err)
		assert.Equal(2, resp.Count)
		if assert.Len(resp.Body, 2) {
			// newest first
			assert.Equal("/course/b.mp4", resp.Body[0].Path)
			assert.Equal("/course/a.mp4", resp.Body[1].Path)
		}
	})
	t.Run("underscore is literal", func(t *testing.T) {
		resp, err := s.ListRecords(ctx, schema.ListRecordsRequest{Path: "/course_", Limit: 10})
		assert.NoError(err)
		assert.Equal(1, resp.Count)
	})
	t.Run("transfer", func(t *testing.T) {
		resp, err := s.ListRecords(ctx, schema.ListRecordsRequest{TransferID: "x", Limit: 1})
		assert.NoError(err)
		assert.Equal(1, resp.Count)
		if assert.Len(resp.Body, 1) {
			assert.Equal("archive", resp.Body[0].Backend)
		}
	})
	t.Run("offset", func(t *testing.T) {
		resp, err := s.ListRecords(ctx, schema.ListRecordsRequest{Backend: "media", Limit: 2, Offset: 3})
		assert.NoError(err)
		assert.Equal(4, resp.Count)
		assert.Len(resp.Body, 1)
	})
}
