// Package logger builds the structured logger shared by the server and
// client commands.
package logger

import (
	"io"
	"os"

	// Packages
	zap "go.uber.org/zap"
	zapcore "go.uber.org/zap/zapcore"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type Opt func(*opts)

type opts struct {
	w      io.Writer
	level  zapcore.Level
	json   bool
	fields []zap.Field
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New returns a logger writing to stderr at info level in console format,
// unless changed by the options.
func New(opt ...Opt) *zap.Logger {
	o := opts{w: os.Stderr, level: zapcore.InfoLevel}
	for _, fn := range opt {
		fn(&o)
	}

	config := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	var encoder zapcore.Encoder
	if o.json {
		encoder = zapcore.NewJSONEncoder(config)
	} else {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(o.w), o.level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).With(o.fields...)
}

////////////////////////////////////////////////////////////////////////////////
// OPTIONS

func WithWriter(w io.Writer) Opt {
	return func(o *opts) {
		if w != nil {
			o.w = w
		}
	}
}

// WithDebug lowers the level to debug.
func WithDebug(debug bool) Opt {
	return func(o *opts) {
		if debug {
			o.level = zapcore.DebugLevel
		}
	}
}

// WithJSON writes one JSON object per entry.
func WithJSON(json bool) Opt {
	return func(o *opts) {
		o.json = json
	}
}

// WithFields adds fields to every entry.
func WithFields(fields ...zap.Field) Opt {
	return func(o *opts) {
		o.fields = append(o.fields, fields...)
	}
}
