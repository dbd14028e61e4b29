package httphandler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	// Packages
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	httphandler "github.com/mutablelogic/go-transfer/pkg/httphandler"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	store "github.com/mutablelogic/go-transfer/pkg/store"
)

///////////////////////////////////////////////////////////////////////////////
// HELPERS

// muxRouter registers handlers on a standard library mux
type muxRouter struct {
	*http.ServeMux
}

func (m muxRouter) RegisterFunc(path string, handler http.HandlerFunc, _ bool, _ *openapi.PathItem) error {
	m.HandleFunc(path, handler)
	return nil
}

// serveMux returns a mux with all handlers registered.
func serveMux(t *testing.T, mgr *manager.Manager, records *store.Store) *http.ServeMux {
	t.Helper()
	mux := muxRouter{http.NewServeMux()}
	if err := httphandler.RegisterHandlers(mgr, records, mux); err != nil {
		t.Fatalf("RegisterHandlers: %v", err)
	}
	return mux.ServeMux
}

// newTestManager creates a manager with a mem://media backend, persisting
// records to an in-memory store.
func newTestManager(t *testing.T) (*manager.Manager, *store.Store) {
	t.Helper()
	ctx := context.Background()
	records, err := store.Open(ctx, store.MemoryDSN)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	mgr, err := manager.New(ctx,
		manager.WithBackend(ctx, "mem://media"),
		manager.WithPersister(records),
		manager.WithSpool(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	t.Cleanup(func() {
		mgr.Close()
		records.Close()
	})
	return mgr, records
}

// sseEvent holds one parsed Server-Sent Event.
type sseEvent struct {
	Name string
	Data string
}

// parseSSEEvents parses a text/event-stream body into a slice of sseEvents,
// skipping ping events.
func parseSSEEvents(body string) []sseEvent {
	var events []sseEvent
	var name, data string

	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if name != "" && name != "ping" {
				events = append(events, sseEvent{Name: name, Data: data})
			}
			name, data = "", ""
		}
	}
	if name != "" && name != "ping" {
		events = append(events, sseEvent{Name: name, Data: data})
	}
	return events
}

func newJSONRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func newMultipartRequest(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// register creates a transfer through the handler and returns it
func register(t *testing.T, mux http.Handler, filename string) schema.Transfer {
	t.Helper()
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, newJSONRequest(t, http.MethodPost, "/transfer", schema.CreateTransferRequest{
		Backend:  "media",
		Path:     "/uploads",
		FileName: filename,
	}))
	if rw.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var session schema.Transfer
	if err := json.Unmarshal(rw.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal transfer: %v", err)
	}
	return session
}

// waitTerminal blocks until the transfer reaches a terminal status
func waitTerminal(t *testing.T, mgr *manager.Manager, id string) schema.Transfer {
	t.Helper()
	sub, err := mgr.Publisher().Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		if _, err := sub.Next(ctx); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	session, err := mgr.GetTransfer(ctx, id)
	if err != nil {
		t.Fatalf("GetTransfer: %v", err)
	}
	return *session
}

///////////////////////////////////////////////////////////////////////////////
// MOCK ROUTER

type mockRouter struct {
	paths  []string
	retErr error
}

func (m *mockRouter) RegisterFunc(path string, handler http.HandlerFunc, middleware bool, spec *openapi.PathItem) error {
	m.paths = append(m.paths, path)
	return m.retErr
}

///////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_RegisterHandlers(t *testing.T) {
	mgr, records := newTestManager(t)

	router := &mockRouter{}
	if err := httphandler.RegisterHandlers(mgr, records, router); err != nil {
		t.Fatalf("RegisterHandlers: %v", err)
	}
	if len(router.paths) != 7 {
		t.Errorf("expected 7 registered paths, got %d: %v", len(router.paths), router.paths)
	}

	// Without a record store the record routes are omitted
	router = &mockRouter{}
	if err := httphandler.RegisterHandlers(mgr, nil, router); err != nil {
		t.Fatalf("RegisterHandlers: %v", err)
	}
	if len(router.paths) != 5 {
		t.Errorf("expected 5 registered paths, got %d: %v", len(router.paths), router.paths)
	}
}

func Test_RegisterHandlers_routerError(t *testing.T) {
	mgr, records := newTestManager(t)
	router := &mockRouter{retErr: errors.New("router error")}
	if err := httphandler.RegisterHandlers(mgr, records, router); err == nil {
		t.Fatal("expected error when router.RegisterFunc fails, got nil")
	}
}
