package progress

import (
	"fmt"
	"time"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for subscriber configuration.
type Opt func(*opts) error

type opts struct {
	renderer Renderer
	window   int
	stall    float64
	now      func() time.Time
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultWindow = 10   // throughput samples kept for the average
	DefaultStall  = 1024 // bytes per second below which a sample is a stall
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithRenderer sets the renderer called on every update. Use render.Multi to
// register more than one.
func WithRenderer(r Renderer) Opt {
	return func(o *opts) error {
		o.renderer = r
		return nil
	}
}

// WithWindow sets the number of throughput samples averaged for the ETA.
func WithWindow(n int) Opt {
	return func(o *opts) error {
		if n < 1 {
			return fmt.Errorf("window must be at least 1, got %d", n)
		}
		o.window = n
		return nil
	}
}

// WithStallThreshold sets the speed in bytes per second below which a sample
// flags the transfer as stalled.
func WithStallThreshold(bps float64) Opt {
	return func(o *opts) error {
		if bps < 0 {
			return fmt.Errorf("invalid stall threshold %v", bps)
		}
		o.stall = bps
		return nil
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Opt {
	return func(o *opts) error {
		if now != nil {
			o.now = now
		}
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	o := opts{
		renderer: RendererFunc(func(View) {}),
		window:   DefaultWindow,
		stall:    DefaultStall,
		now:      time.Now,
	}
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}
	if o.renderer == nil {
		return opts{}, fmt.Errorf("renderer is nil")
	}
	return o, nil
}
