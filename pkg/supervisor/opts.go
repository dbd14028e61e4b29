package supervisor

import (
	"context"
	"fmt"
	"time"

	// Packages
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for supervisor configuration.
type Opt func(*opts) error

// Backoff returns the delay before reconnect attempt n, counting from 1.
type Backoff func(attempt int) time.Duration

// VerifyFunc checks the authoritative listing for a transfer, returning true
// when the transfer is known to have been saved.
type VerifyFunc func(ctx context.Context, transferID string) (bool, error)

type opts struct {
	maxAttempts   int
	backoff       Backoff
	timeout       time.Duration
	verify        VerifyFunc
	verifyTimeout time.Duration
	logger        *zap.Logger
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultMaxAttempts   = 15
	DefaultBackoffBase   = time.Second
	DefaultBackoffMax    = 5 * time.Second
	DefaultTimeout       = time.Hour
	DefaultVerifyTimeout = 30 * time.Second
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithMaxAttempts sets the number of reconnect attempts after the stream is
// lost. Zero disables reconnection.
func WithMaxAttempts(n int) Opt {
	return func(o *opts) error {
		if n < 0 {
			return fmt.Errorf("invalid max attempts %d", n)
		}
		o.maxAttempts = n
		return nil
	}
}

// WithBackoff sets the delay policy between reconnect attempts.
func WithBackoff(fn Backoff) Opt {
	return func(o *opts) error {
		if fn == nil {
			return fmt.Errorf("backoff is nil")
		}
		o.backoff = fn
		return nil
	}
}

// WithTimeout sets the hard ceiling on how long a transfer is watched before
// it is resolved without a terminal event.
func WithTimeout(d time.Duration) Opt {
	return func(o *opts) error {
		if d <= 0 {
			return fmt.Errorf("invalid timeout %v", d)
		}
		o.timeout = d
		return nil
	}
}

// WithVerify sets the check made against the authoritative listing when a
// transfer is resolved as likely completed.
func WithVerify(fn VerifyFunc, timeout time.Duration) Opt {
	return func(o *opts) error {
		o.verify = fn
		if timeout > 0 {
			o.verifyTimeout = timeout
		}
		return nil
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(o *opts) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

////////////////////////////////////////////////////////////////////////////////
// BACKOFF

// Linear returns a backoff of base multiplied by the attempt, capped at max.
func Linear(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base * time.Duration(attempt)
		if d > max || d < 0 {
			return max
		}
		return d
	}
}

// Fixed returns a backoff with the same delay for every attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration {
		return d
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func applyOpts(opt []Opt) (opts, error) {
	o := opts{
		maxAttempts:   DefaultMaxAttempts,
		backoff:       Linear(DefaultBackoffBase, DefaultBackoffMax),
		timeout:       DefaultTimeout,
		verifyTimeout: DefaultVerifyTimeout,
		logger:        zap.NewNop(),
	}
	for _, fn := range opt {
		if err := fn(&o); err != nil {
			return opts{}, err
		}
	}
	return o, nil
}
