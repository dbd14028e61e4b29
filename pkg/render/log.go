package render

import (
	"sync"

	// Packages
	progress "github.com/mutablelogic/go-transfer/pkg/progress"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	zap "go.uber.org/zap"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type logger struct {
	sync.Mutex
	log     *zap.Logger
	stage   schema.Stage
	bucket  int
	stalled bool
	attempt int
	started bool
	done    bool
}

////////////////////////////////////////////////////////////////////////////////
// GLOBALS

// Percent step between logged progress entries
const logBucket = 5

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Log returns a renderer which writes progress to a structured logger. It
// logs once per stage and 5% step, and always logs stalls, reconnects and
// the terminal state.
func Log(log *zap.Logger) progress.Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &logger{log: log}
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (l *logger) Render(v progress.View) {
	l.Lock()
	defer l.Unlock()
	if l.done {
		return
	}

	fields := []zap.Field{
		zap.String("transfer", v.TransferID),
		zap.String("stage", string(v.Stage)),
		zap.Float64("percent", v.Percent),
		zap.Int64("bytes", v.BytesTransferred),
	}

	// Terminal
	if v.Terminal {
		l.done = true
		fields = append(fields, zap.String("message", v.Message), zap.Float64("peak", v.PeakSpeed), zap.Int("reconnects", v.Reconnects))
		switch {
		case v.Unverified:
			l.log.Warn("transfer unverified", fields...)
		case v.Status == schema.StatusCompleted:
			l.log.Info("transfer completed", fields...)
		default:
			l.log.Error("transfer failed", fields...)
		}
		return
	}

	// Reconnect
	if v.Attempt != l.attempt {
		l.attempt = v.Attempt
		if v.Attempt > 0 {
			l.log.Warn("reconnecting", append(fields, zap.Int("attempt", v.Attempt))...)
			return
		}
	}

	// Stall transitions
	if v.Stalled != l.stalled {
		l.stalled = v.Stalled
		if v.Stalled {
			l.log.Warn("transfer stalled", append(fields, zap.Float64("speed", v.Speed))...)
		} else {
			l.log.Info("transfer recovered", append(fields, zap.Float64("speed", v.Speed))...)
		}
	}

	// Sampled progress
	bucket := int(v.Percent) / logBucket
	if l.started && v.Stage == l.stage && bucket == l.bucket {
		return
	}
	l.started = true
	l.stage = v.Stage
	l.bucket = bucket
	l.log.Info("progress", append(fields,
		zap.String("speed", v.SpeedString()),
		zap.String("eta", v.ETAString()),
		zap.Bool("provisional", v.Provisional),
	)...)
}
