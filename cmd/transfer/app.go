package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	// Packages
	client "github.com/mutablelogic/go-client"
	httpclient "github.com/mutablelogic/go-transfer/pkg/httpclient"
	logger "github.com/mutablelogic/go-transfer/pkg/logger"
	zap "go.uber.org/zap"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	Endpoint string `env:"TRANSFER_ENDPOINT" default:"http://localhost:8087/api" help:"Service endpoint"`
	Debug    bool   `env:"TRANSFER_DEBUG" help:"Enable debug output"`
	Trace    bool   `help:"Trace HTTP requests"`
	JSON     bool   `name:"json" env:"TRANSFER_LOG_JSON" help:"Log in JSON format"`

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func NewApp(app Globals) *Globals {
	// This context is cancelled when the process receives a SIGINT or SIGTERM
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app.log = logger.New(
		logger.WithDebug(app.Debug),
		logger.WithJSON(app.JSON),
	)
	return &app
}

func (app *Globals) Close() error {
	app.cancel()
	_ = app.log.Sync()
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Client builds a transfer HTTP client from the global flags.
func (app *Globals) Client() (*httpclient.Client, error) {
	opts := []client.ClientOpt{}
	if app.Trace {
		opts = append(opts, client.OptTrace(os.Stderr, false))
	}
	return httpclient.New(app.Endpoint, opts...)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func prettyJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
