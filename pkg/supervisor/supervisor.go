package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	// Packages
	transfer "github.com/mutablelogic/go-transfer"
	progress "github.com/mutablelogic/go-transfer/pkg/progress"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// Supervisor keeps a subscriber connected to the progress stream of one
// transfer, reconnecting when the stream is lost, and resolves the transfer
// to a terminal outcome even when the stream cannot deliver one.
type Supervisor struct {
	opts
	channel transfer.Channel
	sub     *progress.Subscriber
	id      string

	mu    sync.Mutex
	state State
}

// State of the push connection.
type State int

// Resolution is how a supervised transfer ended.
type Resolution string

// Result is returned by Run.
type Result struct {
	Resolution Resolution    `json:"resolution"`
	Message    string        `json:"message,omitempty"`
	View       progress.View `json:"view"`
	Attempts   int           `json:"attempts"` // reconnect attempts made
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	Connecting State = iota
	Open
	ClosedRetryable
	ClosedTerminal
)

const (
	Completed       Resolution = "completed"
	Failed          Resolution = "failed"
	LikelyCompleted Resolution = "likelyCompleted"
	NotFound        Resolution = "notFound"
	Cancelled       Resolution = "cancelled"
)

const (
	MsgLikelyCompleted = "likely completed, please verify via the authoritative listing"
	MsgConnectionLost  = "connection lost and could not be restored"
	MsgVerified        = "completed, verified via the authoritative listing"
	MsgNotFound        = "transfer not found"
)

// Percent at or above which a lost transfer is assumed to have completed
const likelyPercent = 90

var errTimeout = errors.New("timeout waiting for transfer to complete")

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a supervisor for the transfer watched by the subscriber.
func New(channel transfer.Channel, sub *progress.Subscriber, opts ...Opt) (*Supervisor, error) {
	if channel == nil {
		return nil, fmt.Errorf("channel is nil")
	}
	if sub == nil {
		return nil, fmt.Errorf("subscriber is nil")
	}
	o, err := applyOpts(opts)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		opts:    o,
		channel: channel,
		sub:     sub,
		id:      sub.View().TransferID,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run watches the transfer until it resolves, the hard timeout expires or
// the context is cancelled. No stream or timer outlives the call.
func (s *Supervisor) Run(parent context.Context) Result {
	ctx, cancel := context.WithTimeoutCause(parent, s.timeout, errTimeout)
	defer cancel()
	defer s.setState(ClosedTerminal)

	var attempts, total int
	for {
		s.setState(Connecting)
		stream, err := s.channel.Open(ctx, s.id)
		switch {
		case err == nil:
			s.setState(Open)
			s.sub.Connected()
			events, err := s.consume(ctx, stream)
			if err := stream.Close(); err != nil {
				s.logger.Debug("close stream", zap.String("transfer", s.id), zap.Error(err))
			}
			if s.sub.Terminal() {
				return s.result(total)
			}
			if ctx.Err() != nil {
				return s.interrupted(parent, ctx, total)
			}
			if events > 0 {
				attempts = 0
			}
			if s.implied() {
				s.logger.Debug("stream closed after final event", zap.String("transfer", s.id))
				s.sub.Complete("")
				return s.result(total)
			}
			s.logger.Warn("progress stream lost", zap.String("transfer", s.id), zap.Error(err))
		case errors.Is(err, schema.ErrTransferNotFound):
			if _, percent := s.sub.LastKnown(); total > 0 || percent > 0 {
				// Forgotten by the server after a terminal event which was never seen
				return s.exhausted(parent, total)
			}
			s.sub.Fail(MsgNotFound)
			r := s.result(total)
			r.Resolution = NotFound
			return r
		case ctx.Err() != nil:
			return s.interrupted(parent, ctx, total)
		default:
			s.logger.Warn("progress stream unavailable", zap.String("transfer", s.id), zap.Error(err))
		}

		// Retry
		s.setState(ClosedRetryable)
		if attempts >= s.maxAttempts {
			return s.exhausted(parent, total)
		}
		attempts++
		total++
		s.sub.Reconnecting(attempts)
		if err := s.wait(ctx, s.backoff(attempts)); err != nil {
			return s.interrupted(parent, ctx, total)
		}
	}
}

////////////////////////////////////////////////////////////////////////////////
// STRINGIFY

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Open:
		return "OPEN"
	case ClosedRetryable:
		return "CLOSED_RETRYABLE"
	case ClosedTerminal:
		return "CLOSED_TERMINAL"
	default:
		return fmt.Sprint("State(", int(s), ")")
	}
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != state {
		s.logger.Debug("state", zap.String("transfer", s.id), zap.Stringer("from", s.state), zap.Stringer("to", state))
	}
	s.state = state
}

// consume applies events until the view is terminal or the stream ends,
// returning the number of events received
func (s *Supervisor) consume(ctx context.Context, stream transfer.Stream) (int, error) {
	var n int
	for {
		e, err := stream.Next(ctx)
		if err != nil {
			return n, err
		}
		n++
		if s.sub.Apply(e) && s.sub.Terminal() {
			return n, nil
		}
	}
}

// implied reports whether the last event received means the transfer
// finished, so that a lost terminal event need not be waited for
func (s *Supervisor) implied() bool {
	stage, percent := s.sub.LastKnown()
	return stage == schema.StagePersistence && percent >= 100
}

// likely reports whether a transfer which can no longer be watched has
// probably completed. Bytes are already stored once transport is over.
func (s *Supervisor) likely() bool {
	stage, percent := s.sub.LastKnown()
	return stage != schema.StageTransport || percent >= likelyPercent
}

// exhausted resolves a transfer whose stream could not be restored
func (s *Supervisor) exhausted(parent context.Context, total int) Result {
	if s.likely() {
		return s.optimistic(parent, total)
	}
	s.logger.Warn(MsgConnectionLost, zap.String("transfer", s.id), zap.Int("attempts", total))
	s.sub.Fail(MsgConnectionLost)
	return s.result(total)
}

// interrupted resolves a run ended by cancellation or the hard timeout
func (s *Supervisor) interrupted(parent, ctx context.Context, total int) Result {
	if parent.Err() == nil && errors.Is(context.Cause(ctx), errTimeout) {
		s.logger.Warn("timeout", zap.String("transfer", s.id), zap.Duration("timeout", s.timeout))
		return s.optimistic(parent, total)
	}
	cause := context.Cause(parent)
	if cause == nil {
		cause = context.Cause(ctx)
	}
	return Result{
		Resolution: Cancelled,
		Message:    cause.Error(),
		View:       s.sub.View(),
		Attempts:   total,
	}
}

// optimistic resolves as likely completed, or completed when the
// authoritative listing confirms it
func (s *Supervisor) optimistic(parent context.Context, total int) Result {
	if s.verify != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.verifyTimeout)
		defer cancel()
		if ok, err := s.verify(ctx, s.id); err != nil {
			s.logger.Warn("verify", zap.String("transfer", s.id), zap.Error(err))
		} else if ok {
			s.sub.Complete(MsgVerified)
			return s.result(total)
		}
	}
	s.sub.Unverified(MsgLikelyCompleted)
	return Result{
		Resolution: LikelyCompleted,
		Message:    MsgLikelyCompleted,
		View:       s.sub.View(),
		Attempts:   total,
	}
}

// result returns the outcome of a terminal view
func (s *Supervisor) result(total int) Result {
	view := s.sub.View()
	r := Result{
		Resolution: Failed,
		Message:    view.Message,
		View:       view,
		Attempts:   total,
	}
	if view.Status == schema.StatusCompleted {
		r.Resolution = Completed
	}
	return r
}

// wait blocks for the delay, returning early with an error when the
// context is done
func (s *Supervisor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
