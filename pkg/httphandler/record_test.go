package httphandler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

func Test_recordCreateList(t *testing.T) {
	mgr, records := newTestManager(t)
	mux := serveMux(t, mgr, records)

	for _, id := range []string{"t1", "t2"} {
		rw := httptest.NewRecorder()
		mux.ServeHTTP(rw, newJSONRequest(t, http.MethodPost, "/record", schema.RecordMeta{
			TransferID: id,
			Backend:    "media",
			Path:       "/uploads/" + id + ".txt",
			Size:       10,
		}))
		if rw.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
		}
	}

	// Duplicate
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, newJSONRequest(t, http.MethodPost, "/record", schema.RecordMeta{TransferID: "t1", Backend: "media", Path: "/x"}))
	if rw.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rw.Code)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/record?backend=media&limit=10", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var list schema.ListRecordsResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if list.Count != 2 || len(list.Body) != 2 {
		t.Errorf("expected 2 records, got %d/%d", list.Count, len(list.Body))
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/record/missing", nil))
	if rw.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rw.Code)
	}
}
