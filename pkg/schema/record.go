package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// RecordMeta describes a stored file to be recorded by the metadata service.
type RecordMeta struct {
	TransferID  string `json:"transferId"`
	Backend     string `json:"backend"`
	Path        string `json:"path"`
	FileName    string `json:"filename,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"type,omitempty"`
	ETag        string `json:"etag,omitempty"`
	Checksum    string `json:"checksum,omitempty"` // hex sha256 when verified by readback
}

// Record is a persisted RecordMeta. Its existence is the authoritative answer
// to "was this upload saved".
type Record struct {
	RecordMeta
	Created time.Time `json:"created"`
}

type ListRecordsRequest struct {
	TransferID string `json:"transferId,omitempty"`
	Backend    string `json:"backend,omitempty"`
	Path       string `json:"path,omitempty"` // path prefix
	Offset     int    `json:"offset,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type ListRecordsResponse struct {
	Count int      `json:"count"`
	Body  []Record `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r RecordMeta) String() string {
	return types.Stringify(r)
}

func (r Record) String() string {
	return types.Stringify(r)
}

func (r ListRecordsRequest) String() string {
	return types.Stringify(r)
}

func (r ListRecordsResponse) String() string {
	return types.Stringify(r)
}
