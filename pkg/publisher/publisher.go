package publisher

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	// Packages
	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Publisher keeps the last known state of every live transfer and fans out
// progress events to subscribers. Transfers are independent: publishing to
// one never blocks on another.
type Publisher struct {
	opts
	sync.RWMutex
	topics map[string]*topic
}

type topic struct {
	sync.Mutex
	session    schema.Transfer
	subs       map[*Subscription]struct{}
	activity   time.Time // last registration or event
	terminalAt time.Time
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a publisher. Call Run to enable garbage collection and the
// idle watchdog.
func New(opts ...Opt) (*Publisher, error) {
	self := new(Publisher)
	if opt, err := applyOpts(opts); err != nil {
		return nil, err
	} else {
		self.opts = opt
	}
	self.topics = make(map[string]*topic)
	return self, nil
}

// Run sweeps expired transfers until the context is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sweep()
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Register creates a pending transfer. It is an error to register the same
// identifier twice while the first is retained.
func (p *Publisher) Register(t schema.Transfer) (*schema.Transfer, error) {
	if !schema.IsTransferID(t.ID) {
		return nil, httpresponse.ErrBadRequest.Withf("invalid transfer id %q", t.ID)
	}

	p.Lock()
	defer p.Unlock()
	if _, exists := p.topics[t.ID]; exists {
		return nil, httpresponse.ErrConflict.Withf("transfer %q already exists", t.ID)
	}

	now := p.now()
	t.Stage = schema.StageTransport
	t.Status = schema.StatusPending
	t.Percent = 0
	t.BytesTransferred = 0
	t.Events = 0
	t.Created = now
	t.Updated = time.Time{}
	p.topics[t.ID] = &topic{
		session:  t,
		subs:     make(map[*Subscription]struct{}),
		activity: now,
	}

	p.logger.Debug("registered", zap.String("transfer", t.ID), zap.String("file", t.FileName))
	return &t, nil
}

// Publish records an event as the new state of its transfer and delivers it
// to every subscriber in publish order. Unknown transfers return a not found
// error, events after the terminal event return a conflict error and stages
// moving backwards return a bad request error.
func (p *Publisher) Publish(e schema.ProgressEvent) error {
	if err := e.Validate(); err != nil {
		return httpresponse.ErrBadRequest.With(err.Error())
	}
	t := p.topic(e.TransferID)
	if t == nil {
		return httpresponse.ErrNotFound.Withf("transfer %q not found", e.TransferID)
	}

	t.Lock()
	defer t.Unlock()
	if t.session.Terminal() {
		return httpresponse.ErrConflict.Withf("transfer %q already %s", e.TransferID, t.session.Status)
	}
	if t.session.Events > 0 && e.Stage.Before(t.session.Stage) {
		return httpresponse.ErrBadRequest.Withf("transfer %q cannot move from %s back to %s", e.TransferID, t.session.Stage, e.Stage)
	}

	now := p.now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	t.apply(e)
	t.activity = now
	for sub := range t.subs {
		sub.push(e)
	}
	if e.Terminal() {
		t.terminalAt = now
		for sub := range t.subs {
			delete(t.subs, sub)
		}
		p.logger.Info("transfer finished",
			zap.String("transfer", e.TransferID),
			zap.String("stage", string(e.Stage)),
			zap.String("status", string(e.Status)),
			zap.String("message", e.Message),
		)
	} else {
		p.logger.Debug("progress",
			zap.String("transfer", e.TransferID),
			zap.String("stage", string(e.Stage)),
			zap.Float64("percent", e.Percent),
		)
	}
	return nil
}

// Subscribe opens a subscription to a transfer. When the transfer has
// already reported progress, the last known state is delivered first.
func (p *Publisher) Subscribe(id string) (*Subscription, error) {
	t := p.topic(id)
	if t == nil {
		return nil, httpresponse.ErrNotFound.Withf("transfer %q not found", id)
	}

	t.Lock()
	defer t.Unlock()
	sub := newSubscription(t, p.queueSize)
	if e, ok := t.session.Event(); ok {
		sub.push(e)
	}
	if !t.session.Terminal() {
		t.subs[sub] = struct{}{}
	}
	return sub, nil
}

// Get returns the last known state of a transfer.
func (p *Publisher) Get(id string) (*schema.Transfer, error) {
	t := p.topic(id)
	if t == nil {
		return nil, httpresponse.ErrNotFound.Withf("transfer %q not found", id)
	}
	t.Lock()
	defer t.Unlock()
	session := t.session
	return &session, nil
}

// List returns all retained transfers, oldest first.
func (p *Publisher) List() []schema.Transfer {
	p.RLock()
	topics := make([]*topic, 0, len(p.topics))
	for _, t := range p.topics {
		topics = append(topics, t)
	}
	p.RUnlock()

	result := make([]schema.Transfer, 0, len(topics))
	for _, t := range topics {
		t.Lock()
		result = append(result, t.session)
		t.Unlock()
	}
	slices.SortFunc(result, func(a, b schema.Transfer) int {
		return a.Created.Compare(b.Created)
	})
	return result
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (p *Publisher) topic(id string) *topic {
	p.RLock()
	defer p.RUnlock()
	return p.topics[id]
}

// sweep removes terminal transfers older than the retention period and fails
// transfers which have been idle longer than the watchdog allows
func (p *Publisher) sweep() {
	now := p.now()

	var expired, idle []string
	p.RLock()
	for id, t := range p.topics {
		t.Lock()
		switch {
		case t.session.Terminal():
			if now.Sub(t.terminalAt) >= p.retain {
				expired = append(expired, id)
			}
		case p.idle > 0 && now.Sub(t.activity) >= p.idle:
			idle = append(idle, id)
		}
		t.Unlock()
	}
	p.RUnlock()

	// A topic is never removed before its terminal event was published
	for _, id := range idle {
		t := p.topic(id)
		if t == nil {
			continue
		}
		t.Lock()
		stage := t.session.Stage
		bytes := t.session.BytesTransferred
		t.Unlock()
		if err := p.Publish(schema.ProgressEvent{
			TransferID:       id,
			Stage:            stage,
			Status:           schema.StatusFailed,
			BytesTransferred: bytes,
			Message:          fmt.Sprintf("no progress reported for %v", p.idle),
		}); err != nil {
			p.logger.Debug("idle watchdog", zap.String("transfer", id), zap.Error(err))
		} else {
			p.logger.Warn("transfer abandoned", zap.String("transfer", id), zap.Duration("idle", p.idle))
		}
	}

	if len(expired) > 0 {
		p.Lock()
		for _, id := range expired {
			delete(p.topics, id)
		}
		p.Unlock()
		p.logger.Debug("collected", zap.Strings("transfers", expired))
	}
}

// apply copies the event fields onto the session
func (t *topic) apply(e schema.ProgressEvent) {
	t.session.Stage = e.Stage
	t.session.Status = e.Status
	t.session.Percent = e.Percent
	t.session.BytesTransferred = e.BytesTransferred
	if e.TotalBytes != nil {
		t.session.TotalBytes = *e.TotalBytes
	}
	t.session.Message = e.Message
	t.session.Updated = e.Timestamp
	t.session.Events++
}
