package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	// Packages
	config "github.com/aws/aws-sdk-go-v2/config"
	httpserver "github.com/mutablelogic/go-server/pkg/httpserver"
	openapi "github.com/mutablelogic/go-server/pkg/openapi/schema"
	types "github.com/mutablelogic/go-server/pkg/types"
	transfer "github.com/mutablelogic/go-transfer"
	backend "github.com/mutablelogic/go-transfer/pkg/backend"
	httpclient "github.com/mutablelogic/go-transfer/pkg/httpclient"
	httphandler "github.com/mutablelogic/go-transfer/pkg/httphandler"
	manager "github.com/mutablelogic/go-transfer/pkg/manager"
	publisher "github.com/mutablelogic/go-transfer/pkg/publisher"
	store "github.com/mutablelogic/go-transfer/pkg/store"
	version "github.com/mutablelogic/go-transfer/pkg/version"
	zap "go.uber.org/zap"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ServerCommands struct {
	Server RunServerCommand `cmd:"" name:"server" help:"Run HTTP server." group:"SERVER"`
}

type RunServerCommand struct {
	Addr        string         `name:"addr" env:"TRANSFER_ADDR" default:"localhost:8087" help:"Listen address"`
	Prefix      string         `name:"prefix" env:"TRANSFER_PREFIX" default:"/api" help:"Path prefix for the API"`
	Backend     []string       `name:"backend" env:"TRANSFER_BACKEND" help:"Backend URL (e.g. mem://name, file://name/path, s3://bucket). May be repeated."`
	S3Endpoint  string         `name:"s3-endpoint" env:"TRANSFER_S3_ENDPOINT" help:"Endpoint for S3-compatible storage"`
	DB          string         `name:"db" env:"TRANSFER_DB" help:"SQLite database for records (default in-memory)"`
	Records     string         `name:"records" env:"TRANSFER_RECORDS" help:"Remote metadata service endpoint, instead of the local database"`
	Spool       string         `name:"spool" env:"TRANSFER_SPOOL" help:"Directory for accepted uploads (default system temp)"`
	Retain      time.Duration  `name:"retain" default:"5m" help:"How long finished transfers are kept for late subscribers"`
	Idle        time.Duration  `name:"idle" default:"2h" help:"Fail transfers without progress for this long (0 disables)"`
	Verify      manager.Verify `name:"verify" enum:"none,size,checksum" default:"size" help:"Check made after upload (none, size, checksum)"`
	Concurrency int            `name:"concurrency" default:"4" help:"Maximum concurrent uploads to storage"`
	Timeout     time.Duration  `name:"http-timeout" default:"1h" help:"Read and write timeout for requests, including uploads and progress streams"`
}

// router registers handlers on a standard library mux
type router struct {
	*http.ServeMux
	log *zap.Logger
}

///////////////////////////////////////////////////////////////////////////////
// COMMANDS

func (cmd *RunServerCommand) Run(app *Globals) error {
	ctx := app.ctx
	log := app.log.With(zap.String("service", "transfer"))
	if len(cmd.Backend) == 0 {
		return fmt.Errorf("at least one --backend is required")
	}

	// Storage credentials are resolved here and never leave the server
	backendOpts, err := cmd.backendOpts(ctx)
	if err != nil {
		return err
	}

	// Publisher
	pub, err := publisher.New(
		publisher.WithRetain(cmd.Retain),
		publisher.WithIdle(cmd.Idle),
		publisher.WithLogger(log),
	)
	if err != nil {
		return err
	}

	// Metadata service
	var records *store.Store
	var persister transfer.Persister
	if cmd.Records != "" {
		if persister, err = httpclient.New(cmd.Records); err != nil {
			return fmt.Errorf("records endpoint: %w", err)
		}
	} else {
		if records, err = store.Open(ctx, cmd.DB); err != nil {
			return err
		}
		defer records.Close()
		persister = records
	}

	// Manager
	opts := []manager.Opt{
		manager.WithPublisher(pub),
		manager.WithPersister(persister),
		manager.WithVerify(cmd.Verify),
		manager.WithConcurrency(cmd.Concurrency),
		manager.WithLogger(log),
	}
	if cmd.Spool != "" {
		opts = append(opts, manager.WithSpool(cmd.Spool))
	}
	for _, url := range cmd.Backend {
		opts = append(opts, manager.WithBackend(ctx, url, backendOpts(url)...))
	}
	mgr, err := manager.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer mgr.Close()

	// Handlers
	api := router{http.NewServeMux(), log}
	if err := httphandler.RegisterHandlers(mgr, records, api); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}
	prefix := strings.TrimSuffix(types.NormalisePath(cmd.Prefix), "/")
	mux := http.NewServeMux()
	mux.Handle(prefix+"/", http.StripPrefix(prefix, api))

	return serve(ctx, log, cmd.Addr, cmd.Timeout, mux, pub)
}

// RegisterFunc logs each request when middleware is set
func (r router) RegisterFunc(path string, handler http.HandlerFunc, middleware bool, _ *openapi.PathItem) error {
	if middleware {
		handler = r.wrap(handler)
	}
	r.HandleFunc(path, handler)
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// backendOpts returns the options for each backend URL. The AWS default
// credential chain is loaded only when an s3:// backend is configured.
func (cmd *RunServerCommand) backendOpts(ctx context.Context) (func(string) []backend.Opt, error) {
	var s3 []backend.Opt
	for _, url := range cmd.Backend {
		if !strings.HasPrefix(url, "s3://") {
			continue
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		s3 = append(s3, backend.WithAWSConfig(cfg))
		if cmd.S3Endpoint != "" {
			s3 = append(s3, backend.WithEndpoint(cmd.S3Endpoint))
		}
		break
	}
	return func(url string) []backend.Opt {
		switch {
		case strings.HasPrefix(url, "s3://"):
			return s3
		case strings.HasPrefix(url, "file://"):
			return []backend.Opt{backend.WithCreateDir()}
		default:
			return nil
		}
	}, nil
}

// serve runs the HTTP server and the publisher sweeper until the context is
// cancelled or either fails
func serve(ctx context.Context, log *zap.Logger, addr string, timeout time.Duration, handler http.Handler, pub *publisher.Publisher) error {
	srv, err := httpserver.New(addr, nil,
		httpserver.WithReadTimeout(timeout),
		httpserver.WithWriteTimeout(timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.SetHandler(withContext(ctx, handler))
	if err := srv.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pub.Run(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	log.Info("started", zap.String("version", version.Version()), zap.String("addr", srv.Addr()))
	err = g.Wait()
	log.Info("stopped")
	return err
}

// withContext ends in-flight requests, including progress streams, when the
// server context is cancelled so that shutdown does not wait on them
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rctx, cancel := context.WithCancel(req.Context())
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		handler.ServeHTTP(w, req.WithContext(rctx))
	})
}

func (r router) wrap(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		handler(w, req)
		r.log.Debug("request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
