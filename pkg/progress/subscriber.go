package progress

import (
	"math"
	"sync"
	"time"

	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Subscriber turns progress events for one transfer into view updates and
// renders each one. Events from a reconnect may repeat or arrive stale; the
// view never moves backwards within a stage and ignores everything after a
// terminal state.
type Subscriber struct {
	opts
	sync.Mutex
	view          View
	samples       []float64 // ring of speed samples
	next          int
	baseline      sample
	authoritative bool
}

// sample is the byte count at a point in time, the base for the next speed
type sample struct {
	bytes int64
	at    time.Time
	valid bool
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a subscriber for a transfer. The view starts pending in the
// transport stage with an unknown ETA.
func New(id string, opts ...Opt) (*Subscriber, error) {
	self := new(Subscriber)
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}
	self.view = View{
		TransferID: id,
		Stage:      schema.StageTransport,
		Status:     schema.StatusPending,
		ETA:        -1,
	}
	self.samples = make([]float64, 0, self.window)
	return self, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// View returns the current view.
func (s *Subscriber) View() View {
	s.Lock()
	defer s.Unlock()
	return s.view
}

// Terminal reports whether the view has reached a terminal state.
func (s *Subscriber) Terminal() bool {
	s.Lock()
	defer s.Unlock()
	return s.view.Terminal
}

// LastKnown returns the stage and raw percent of the last event received
// from the server. The percent is zero when nothing has been received.
func (s *Subscriber) LastKnown() (schema.Stage, float64) {
	s.Lock()
	defer s.Unlock()
	if !s.authoritative {
		return s.view.Stage, 0
	}
	return s.view.Stage, s.view.RawPercent
}

// Apply updates the view from a progress event and renders it. It returns
// false when the event was ignored: after a terminal state, for another
// transfer, or for an earlier stage.
func (s *Subscriber) Apply(e schema.ProgressEvent) bool {
	s.Lock()
	defer s.Unlock()

	switch {
	case s.view.Terminal:
		return false
	case e.TransferID != "" && e.TransferID != s.view.TransferID:
		return false
	case !e.Stage.Valid() || !e.Status.Valid():
		return false
	case s.authoritative && e.Stage.Before(s.view.Stage):
		return false
	}

	at := e.Timestamp
	if at.IsZero() {
		at = s.now()
	}

	// The first event from the server replaces any local estimate
	first := !s.authoritative
	changed := s.authoritative && e.Stage != s.view.Stage
	s.authoritative = true
	s.view.Provisional = false
	s.view.StageChanged = changed
	s.view.Stage = e.Stage
	s.view.Status = e.Status
	s.view.Attempt = 0
	s.view.Updated = at
	if e.Message != "" {
		s.view.Message = e.Message
	}
	if e.TotalBytes != nil {
		s.view.TotalBytes = *e.TotalBytes
	}

	switch e.Status {
	case schema.StatusCompleted:
		s.view.RawPercent = e.Percent
		s.view.BytesTransferred = max(s.view.BytesTransferred, e.BytesTransferred)
		s.finish()
		return true
	case schema.StatusFailed:
		// No further statistics for a failed transfer
		s.view.RawPercent = e.Percent
		s.view.Terminal = true
		s.view.Stalled = false
		s.view.ETA = -1
		s.renderer.Render(s.view)
		return true
	}

	// Percent restarts on a new stage, otherwise never decreases. A stale
	// event redelivered after a reconnect does not lower the last known
	// percent either.
	percent := clamp(e.Percent)
	if first || changed {
		s.resetStats()
		s.view.Percent = percent
		s.view.RawPercent = e.Percent
	} else {
		s.view.Percent = math.Max(s.view.Percent, percent)
		s.view.RawPercent = math.Max(s.view.RawPercent, e.Percent)
	}

	s.sample(e.BytesTransferred, at, e.ThroughputHint)
	s.renderer.Render(s.view)
	return true
}

// Provisional updates the view from a local estimate, for example bytes
// handed to the network before the server has reported anything. It is
// ignored once any event has been applied, and returns false when ignored.
func (s *Subscriber) Provisional(percent float64, bytes int64) bool {
	s.Lock()
	defer s.Unlock()
	if s.authoritative || s.view.Terminal {
		return false
	}

	now := s.now()
	s.view.Provisional = true
	s.view.Status = schema.StatusActive
	s.view.Percent = math.Max(s.view.Percent, clamp(percent))
	s.view.Updated = now
	s.sample(bytes, now, nil)
	s.renderer.Render(s.view)
	return true
}

// Complete marks the transfer completed without a terminal event from the
// server, for example when the last event implied completion but the stream
// closed. It returns false when the view was already terminal.
func (s *Subscriber) Complete(message string) bool {
	s.Lock()
	defer s.Unlock()
	if s.view.Terminal {
		return false
	}
	s.view.Status = schema.StatusCompleted
	if message != "" {
		s.view.Message = message
	}
	s.view.Updated = s.now()
	s.finish()
	return true
}

// Fail marks the transfer failed without a terminal event from the server.
// It returns false when the view was already terminal.
func (s *Subscriber) Fail(message string) bool {
	s.Lock()
	defer s.Unlock()
	if s.view.Terminal {
		return false
	}
	s.view.Status = schema.StatusFailed
	s.view.Message = message
	s.view.Terminal = true
	s.view.Stalled = false
	s.view.ETA = -1
	s.view.Updated = s.now()
	s.renderer.Render(s.view)
	return true
}

// Unverified ends the view without a known outcome: the transfer probably
// finished and should be checked against the authoritative listing. The
// status is left as last reported. It returns false when already terminal.
func (s *Subscriber) Unverified(message string) bool {
	s.Lock()
	defer s.Unlock()
	if s.view.Terminal {
		return false
	}
	s.view.Terminal = true
	s.view.Unverified = true
	s.view.Message = message
	s.view.Stalled = false
	s.view.ETA = -1
	s.view.Updated = s.now()
	s.renderer.Render(s.view)
	return true
}

// Reconnecting records a reconnect attempt and renders it.
func (s *Subscriber) Reconnecting(attempt int) {
	s.Lock()
	defer s.Unlock()
	if s.view.Terminal {
		return
	}
	s.view.Attempt = attempt
	s.view.Reconnects++
	s.view.StageChanged = false
	s.renderer.Render(s.view)
}

// Connected clears the reconnect attempt once a stream is open again.
func (s *Subscriber) Connected() {
	s.Lock()
	defer s.Unlock()
	if s.view.Terminal || s.view.Attempt == 0 {
		return
	}
	s.view.Attempt = 0
	s.renderer.Render(s.view)
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// finish renders the completed view at exactly 100 percent
func (s *Subscriber) finish() {
	s.view.Terminal = true
	s.view.Percent = 100
	s.view.Stalled = false
	s.view.ETA = 0
	if s.view.TotalBytes > 0 {
		s.view.BytesTransferred = max(s.view.BytesTransferred, s.view.TotalBytes)
	}
	s.renderer.Render(s.view)
}

func (s *Subscriber) resetStats() {
	s.samples = s.samples[:0]
	s.next = 0
	s.baseline = sample{}
	s.view.Speed = 0
	s.view.AverageSpeed = 0
	s.view.Stalled = false
	s.view.ETA = -1
}

// sample adds a speed sample from the bytes transferred since the previous
// call. A hint from the server is used when there is no previous call.
func (s *Subscriber) sample(bytes int64, at time.Time, hint *float64) {
	prev := s.baseline
	if bytes < prev.bytes {
		// Stale redelivery
		return
	}
	s.view.BytesTransferred = bytes
	s.baseline = sample{bytes: bytes, at: at, valid: true}

	var speed float64
	switch {
	case prev.valid && at.After(prev.at):
		speed = float64(bytes-prev.bytes) / at.Sub(prev.at).Seconds()
	case !prev.valid && hint != nil && *hint > 0:
		speed = *hint
	default:
		s.updateETA()
		return
	}

	// Add to the window
	if len(s.samples) < s.window {
		s.samples = append(s.samples, speed)
	} else {
		s.samples[s.next] = speed
	}
	s.next = (s.next + 1) % s.window

	s.view.Speed = speed
	s.view.PeakSpeed = math.Max(s.view.PeakSpeed, speed)
	if speed < s.stall {
		if !s.view.Stalled {
			s.view.Stalls++
		}
		s.view.Stalled = true
	} else {
		s.view.Stalled = false
	}

	var sum float64
	for _, v := range s.samples {
		sum += v
	}
	s.view.AverageSpeed = sum / float64(len(s.samples))
	s.updateETA()
}

func (s *Subscriber) updateETA() {
	if s.view.AverageSpeed <= 0 || s.view.TotalBytes <= 0 {
		s.view.ETA = -1
		return
	}
	remaining := max(s.view.TotalBytes-s.view.BytesTransferred, 0)
	s.view.ETA = time.Duration(float64(remaining) / s.view.AverageSpeed * float64(time.Second))
}

func clamp(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Max(0, math.Min(100, p))
}
