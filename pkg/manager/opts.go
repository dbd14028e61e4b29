package manager

import (
	"context"
	"fmt"
	"os"
	"time"

	// Packages
	transfer "github.com/mutablelogic/go-transfer"
	backend "github.com/mutablelogic/go-transfer/pkg/backend"
	publisher "github.com/mutablelogic/go-transfer/pkg/publisher"
	trace "go.opentelemetry.io/otel/trace"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Opt is a functional option for manager configuration.
type Opt func(*opts) error

// Verify selects the check made in the remoteProcessing stage.
type Verify string

type opts struct {
	tracer      trace.Tracer
	backends    []transfer.Backend
	publisher   *publisher.Publisher
	persister   transfer.Persister
	verify      Verify
	concurrency int64
	interval    time.Duration
	spool       string
	logger      *zap.Logger
	now         func() time.Time
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	VerifyNone     Verify = "none"     // skip the remoteProcessing stage
	VerifySize     Verify = "size"     // compare the stored size with the bytes sent
	VerifyChecksum Verify = "checksum" // read the object back and compare its SHA-256
)

const (
	DefaultConcurrency = 4
	DefaultInterval    = 250 * time.Millisecond
)

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

// WithTracer sets the tracer used for tracing operations.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) error {
		o.tracer = tracer
		return nil
	}
}

// WithBackend adds a blob backend (mem://, file://, s3://).
// Returns an error if a backend with the same name already exists.
func WithBackend(ctx context.Context, url string, backendOpts ...backend.Opt) Opt {
	return func(o *opts) error {
		b, err := backend.NewBlobBackend(ctx, url, backendOpts...)
		if err != nil {
			return err
		}
		for _, existing := range o.backends {
			if existing.Name() == b.Name() {
				return fmt.Errorf("backend with name %q already registered", b.Name())
			}
		}
		o.backends = append(o.backends, b)
		return nil
	}
}

// WithPublisher sets the publisher which progress events are sent to. When
// not set, a publisher with default options is created.
func WithPublisher(p *publisher.Publisher) Opt {
	return func(o *opts) error {
		o.publisher = p
		return nil
	}
}

// WithPersister sets the metadata service used in the persistence stage.
func WithPersister(p transfer.Persister) Opt {
	return func(o *opts) error {
		o.persister = p
		return nil
	}
}

// WithVerify sets the check made in the remoteProcessing stage.
func WithVerify(v Verify) Opt {
	return func(o *opts) error {
		switch v {
		case VerifyNone, VerifySize, VerifyChecksum:
			o.verify = v
		case "":
			o.verify = VerifyNone
		default:
			return fmt.Errorf("unknown verify mode %q", v)
		}
		return nil
	}
}

// WithConcurrency sets the number of transfers relayed at the same time.
func WithConcurrency(n int) Opt {
	return func(o *opts) error {
		if n < 1 {
			return fmt.Errorf("concurrency must be at least 1, got %d", n)
		}
		o.concurrency = int64(n)
		return nil
	}
}

// WithInterval sets the minimum time between progress events within a stage.
func WithInterval(d time.Duration) Opt {
	return func(o *opts) error {
		if d < 0 {
			return fmt.Errorf("invalid interval %v", d)
		}
		o.interval = d
		return nil
	}
}

// WithSpool sets the directory accepted uploads are written to before they
// are relayed to a backend.
func WithSpool(dir string) Opt {
	return func(o *opts) error {
		if info, err := os.Stat(dir); err != nil {
			return err
		} else if !info.IsDir() {
			return fmt.Errorf("spool %q is not a directory", dir)
		}
		o.spool = dir
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
		verify:      VerifySize,
		concurrency: DefaultConcurrency,
		interval:    DefaultInterval,
		spool:       os.TempDir(),
		logger:      zap.NewNop(),
		now:         time.Now,
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
