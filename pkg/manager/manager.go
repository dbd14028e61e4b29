package manager

import (
	"context"
	"errors"
	"io"
	"sync"

	// Packages
	otel "github.com/mutablelogic/go-client/pkg/otel"
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	transfer "github.com/mutablelogic/go-transfer"
	publisher "github.com/mutablelogic/go-transfer/pkg/publisher"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	zap "go.uber.org/zap"
	semaphore "golang.org/x/sync/semaphore"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Manager coordinates transfers: it relays accepted files to a backend,
// verifies and records them, and reports every stage to the publisher.
type Manager struct {
	opts
	ctx     context.Context
	cancel  context.CancelFunc
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	mu      sync.Mutex
	started map[string]struct{}
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a new transfer manager. Background transfers run until they
// finish or the manager is closed.
func New(ctx context.Context, opts ...Opt) (*Manager, error) {
	self := new(Manager)

	// Apply options
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}

	// Default publisher
	if self.publisher == nil {
		if p, err := publisher.New(publisher.WithLogger(self.logger)); err != nil {
			return nil, err
		} else {
			self.publisher = p
		}
	}

	self.ctx, self.cancel = context.WithCancel(context.WithoutCancel(ctx))
	self.sem = semaphore.NewWeighted(self.concurrency)
	self.started = make(map[string]struct{})

	// Return success
	return self, nil
}

// Close cancels running transfers, waits for them to report their terminal
// event and closes all backends.
func (manager *Manager) Close() error {
	manager.cancel()
	manager.wg.Wait()

	var result error
	for _, backend := range manager.backends {
		if err := backend.Close(); err != nil {
			result = errors.Join(result, err)
		}
	}
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Publisher returns the publisher progress events are sent to.
func (manager *Manager) Publisher() *publisher.Publisher {
	return manager.publisher
}

// Backends returns the list of backend names
func (manager *Manager) Backends() []string {
	result := make([]string, 0, len(manager.backends))
	for _, b := range manager.backends {
		result = append(result, b.Name())
	}
	return result
}

// Backend returns a backend by name, or nil
func (manager *Manager) Backend(name string) transfer.Backend {
	if b, err := manager.backendForName(name); err == nil {
		return b
	}
	return nil
}

func (manager *Manager) GetObject(ctx context.Context, name string, req schema.GetObjectRequest) (_ *schema.Object, err error) {
	backend, err := manager.backendForName(name)
	if err != nil {
		return nil, err
	}

	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("GetObject"))
	defer func() { endFunc(err) }()

	return backend.GetObject(child, req)
}

func (manager *Manager) ReadObject(ctx context.Context, name string, req schema.ReadObjectRequest) (_ io.ReadCloser, _ *schema.Object, err error) {
	backend, err := manager.backendForName(name)
	if err != nil {
		return nil, nil, err
	}

	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("ReadObject"))
	defer func() { endFunc(err) }()

	return backend.ReadObject(child, req)
}

func (manager *Manager) DeleteObject(ctx context.Context, name string, req schema.DeleteObjectRequest) (_ *schema.Object, err error) {
	backend, err := manager.backendForName(name)
	if err != nil {
		return nil, err
	}

	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("DeleteObject"))
	defer func() { endFunc(err) }()

	return backend.DeleteObject(child, req)
}

// ListObjects lists stored objects in a backend, applying offset and limit.
func (manager *Manager) ListObjects(ctx context.Context, name string, req schema.ListObjectsRequest) (_ *schema.ListObjectsResponse, err error) {
	backend, err := manager.backendForName(name)
	if err != nil {
		return nil, err
	}

	// OTEL span
	child, endFunc := otel.StartSpan(manager.tracer, ctx, spanManagerName("ListObjects"))
	defer func() { endFunc(err) }()

	// The backend always returns the full set
	resp, err := backend.ListObjects(child, req)
	if err != nil {
		return nil, err
	}
	resp.Count = len(resp.Body)

	// Limit==0 means count-only
	if req.Limit == 0 {
		resp.Body = nil
		return resp, nil
	}

	// Apply offset and limit
	offset := min(max(req.Offset, 0), resp.Count)
	resp.Body = resp.Body[offset:]
	if limit := min(req.Limit, schema.MaxListLimit); limit < len(resp.Body) {
		resp.Body = resp.Body[:limit]
	}
	return resp, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (manager *Manager) backendForName(name string) (transfer.Backend, error) {
	for _, backend := range manager.backends {
		if backend.Name() == name {
			return backend, nil
		}
	}
	return nil, httpresponse.ErrNotFound.Withf("no backend found for name %q", name)
}

func (manager *Manager) log(id string) *zap.Logger {
	return manager.logger.With(zap.String("transfer", id))
}

func spanManagerName(op string) string {
	return schema.SchemaName + ".manager." + op
}
