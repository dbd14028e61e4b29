package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
)

////////////////////////////////////////////////////////////////////////////////
// CONSTANTS

const (
	// ProgressEventName is the Server-Sent Event name carrying a ProgressEvent
	// payload on the progress stream.
	ProgressEventName = "progress"
)

// Stage is a phase of a transfer. Stages are totally ordered.
type Stage string

const (
	StageTransport        Stage = "transport"
	StageRemoteProcessing Stage = "remoteProcessing"
	StagePersistence      Stage = "persistence"
)

// Status is the condition of a transfer within its current stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// ProgressEvent is one observation of a transfer. Percent is relative to the
// stage it was reported in, not to the whole transfer.
type ProgressEvent struct {
	TransferID       string    `json:"transferId"`
	Stage            Stage     `json:"stage"`
	Status           Status    `json:"status"`
	Percent          float64   `json:"percent"`
	BytesTransferred int64     `json:"bytesTransferred"`
	TotalBytes       *int64    `json:"totalBytes,omitempty"`
	ThroughputHint   *float64  `json:"throughputHint,omitempty"` // bytes per second
	Message          string    `json:"message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

////////////////////////////////////////////////////////////////////////////////
// STAGE

// Stages returns all stages in order.
func Stages() []Stage {
	return []Stage{StageTransport, StageRemoteProcessing, StagePersistence}
}

// Index returns the position of the stage, or -1 for an unknown stage.
func (s Stage) Index() int {
	switch s {
	case StageTransport:
		return 0
	case StageRemoteProcessing:
		return 1
	case StagePersistence:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Before reports whether s is strictly earlier than other.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// Label returns a human readable name for the stage.
func (s Stage) Label() string {
	switch s {
	case StageTransport:
		return "Uploading"
	case StageRemoteProcessing:
		return "Processing"
	case StagePersistence:
		return "Saving"
	default:
		return string(s)
	}
}

////////////////////////////////////////////////////////////////////////////////
// STATUS

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further events may follow this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

////////////////////////////////////////////////////////////////////////////////
// EVENT

// Terminal reports whether the event ends the transfer.
func (e ProgressEvent) Terminal() bool {
	return e.Status.Terminal()
}

// Validate checks the event fields, returning an error describing the first
// problem found.
func (e ProgressEvent) Validate() error {
	if !IsTransferID(e.TransferID) {
		return fmt.Errorf("invalid transfer id %q", e.TransferID)
	}
	if !e.Stage.Valid() {
		return fmt.Errorf("invalid stage %q", e.Stage)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("invalid status %q", e.Status)
	}
	if math.IsNaN(e.Percent) || math.IsInf(e.Percent, 0) {
		return fmt.Errorf("invalid percent %v", e.Percent)
	}
	if e.BytesTransferred < 0 {
		return fmt.Errorf("invalid bytes transferred %d", e.BytesTransferred)
	}
	if e.TotalBytes != nil && *e.TotalBytes < 0 {
		return fmt.Errorf("invalid total bytes %d", *e.TotalBytes)
	}
	return nil
}

// Decode parses an event from a JSON payload.
func Decode(data []byte) (ProgressEvent, error) {
	var e ProgressEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return e, err
	}
	return e, nil
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (e ProgressEvent) String() string {
	return types.Stringify(e)
}
