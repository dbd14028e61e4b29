package progress

import (
	"time"

	// Packages
	types "github.com/mutablelogic/go-server/pkg/types"
	format "github.com/mutablelogic/go-transfer/pkg/format"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Renderer draws a view. It is called on every update from the goroutine
// which delivered the event, and must not block.
type Renderer interface {
	Render(View)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(View)

// View is the client-side state of one transfer, derived from the events
// received so far.
type View struct {
	TransferID string        `json:"transferId"`
	Stage      schema.Stage  `json:"stage"`
	Status     schema.Status `json:"status"`

	// StageChanged is set on the first update after a stage transition,
	// when Percent restarts from the new stage's scale
	StageChanged bool `json:"stageChanged,omitempty"`

	// Percent is the display percent: clamped to 0-100 and never lower than
	// a previous value within the same stage. RawPercent is the highest
	// percent reported by the server within the stage, unclamped.
	Percent    float64 `json:"percent"`
	RawPercent float64 `json:"rawPercent"`

	BytesTransferred int64 `json:"bytesTransferred"`
	TotalBytes       int64 `json:"totalBytes,omitempty"`

	Speed        float64       `json:"speed"`        // last sample, bytes per second
	AverageSpeed float64       `json:"averageSpeed"` // mean of the sample window
	PeakSpeed    float64       `json:"peakSpeed"`
	ETA          time.Duration `json:"eta"` // negative when unknown

	Stalled bool `json:"stalled,omitempty"`
	Stalls  int  `json:"stalls,omitempty"`

	Attempt    int `json:"attempt,omitempty"`    // current reconnect attempt, 0 when connected
	Reconnects int `json:"reconnects,omitempty"` // reconnect attempts so far

	// Provisional is set while the view shows a local estimate and no
	// event has been received from the server
	Provisional bool `json:"provisional,omitempty"`

	// Terminal is set once the transfer completed or failed, or the outcome
	// was resolved without a terminal event, in which case Unverified is set
	Terminal   bool   `json:"terminal,omitempty"`
	Unverified bool   `json:"unverified,omitempty"`
	Message    string `json:"message,omitempty"`

	Updated time.Time `json:"updated,omitzero"`
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (fn RendererFunc) Render(v View) {
	fn(v)
}

// ETAString returns the ETA for display, or "Calculating…" when unknown.
func (v View) ETAString() string {
	return format.ETA(v.ETA)
}

// SpeedString returns the average speed for display.
func (v View) SpeedString() string {
	return format.Speed(v.AverageSpeed)
}

// Label returns the stage label, for example "Uploading".
func (v View) Label() string {
	return v.Stage.Label()
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (v View) String() string {
	return types.Stringify(v)
}
