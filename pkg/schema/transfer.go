package schema

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// CreateTransferRequest registers a transfer before any bytes are sent, so
// that a subscriber can attach to its progress stream first.
type CreateTransferRequest struct {
	ID          string `json:"transferId,omitempty"` // optional, generated when empty
	Backend     string `json:"backend"`              // destination backend name
	Path        string `json:"path,omitempty"`       // destination directory or object path
	FileName    string `json:"filename"`             // original file name
	TotalBytes  int64  `json:"totalBytes,omitempty"` // declared size, 0 if unknown
	ContentType string `json:"type,omitempty"`
}

// Transfer is the server-side view of one upload. It is the last-known state
// replayed to a subscriber when it connects.
type Transfer struct {
	ID               string    `json:"transferId"`
	Backend          string    `json:"backend"`
	Path             string    `json:"path"`
	FileName         string    `json:"filename"`
	ContentType      string    `json:"type,omitempty"`
	TotalBytes       int64     `json:"totalBytes,omitempty"`
	Stage            Stage     `json:"stage"`
	Status           Status    `json:"status"`
	Percent          float64   `json:"percent"`
	BytesTransferred int64     `json:"bytesTransferred"`
	Message          string    `json:"message,omitempty"`
	Created          time.Time `json:"created"`
	Updated          time.Time `json:"updated,omitzero"`
	Events           int       `json:"events"`
}

type ListTransfersResponse struct {
	Count int        `json:"count"`
	Body  []Transfer `json:"body,omitempty"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Terminal reports whether the transfer has reached completed or failed.
func (t Transfer) Terminal() bool {
	return t.Status.Terminal()
}

// Event returns the last known state as a progress event. The second return
// value is false when no event has been published yet.
func (t Transfer) Event() (ProgressEvent, bool) {
	if t.Events == 0 {
		return ProgressEvent{}, false
	}
	e := ProgressEvent{
		TransferID:       t.ID,
		Stage:            t.Stage,
		Status:           t.Status,
		Percent:          t.Percent,
		BytesTransferred: t.BytesTransferred,
		Message:          t.Message,
		Timestamp:        t.Updated,
	}
	if t.TotalBytes > 0 {
		e.TotalBytes = types.Ptr(t.TotalBytes)
	}
	return e, true
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (r CreateTransferRequest) String() string {
	return types.Stringify(r)
}

func (t Transfer) String() string {
	return types.Stringify(t)
}

func (r ListTransfersResponse) String() string {
	return types.Stringify(r)
}
