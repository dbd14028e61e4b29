package publisher

import (
	"fmt"
	"time"

	// Packages
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for publisher configuration.
type Opt func(*opts) error

type opts struct {
	retain    time.Duration // how long a terminal topic is kept for late subscribers
	idle      time.Duration // non-terminal topics without events for this long are failed
	interval  time.Duration // sweep interval
	queueSize int           // per-subscription queue bound
	logger    *zap.Logger
	now       func() time.Time
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultRetain    = 5 * time.Minute
	DefaultIdle      = 2 * time.Hour
	DefaultInterval  = 30 * time.Second
	DefaultQueueSize = 64
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithRetain sets how long a transfer is kept after its terminal event, so
// that a subscriber connecting late still receives the outcome.
func WithRetain(d time.Duration) Opt {
	return func(o *opts) error {
		if d < 0 {
			return fmt.Errorf("invalid retain duration %v", d)
		}
		o.retain = d
		return nil
	}
}

// WithIdle sets the idle watchdog. A transfer that receives no event for
// this long is failed. Zero disables the watchdog.
func WithIdle(d time.Duration) Opt {
	return func(o *opts) error {
		if d < 0 {
			return fmt.Errorf("invalid idle duration %v", d)
		}
		o.idle = d
		return nil
	}
}

// WithInterval sets how often Run sweeps for expired transfers.
func WithInterval(d time.Duration) Opt {
	return func(o *opts) error {
		if d <= 0 {
			return fmt.Errorf("invalid sweep interval %v", d)
		}
		o.interval = d
		return nil
	}
}

// WithQueueSize bounds the number of undelivered events per subscription.
func WithQueueSize(n int) Opt {
	return func(o *opts) error {
		if n < 2 {
			return fmt.Errorf("queue size must be at least 2, got %d", n)
		}
		o.queueSize = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(o *opts) error {
		if logger != nil {
			o.logger = logger
		}
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
	// Set defaults
	o := opts{
		retain:    DefaultRetain,
		idle:      DefaultIdle,
		interval:  DefaultInterval,
		queueSize: DefaultQueueSize,
		logger:    zap.NewNop(),
		now:       time.Now,
	}

	// Apply options
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}

	// Return success
	return o, nil
}
