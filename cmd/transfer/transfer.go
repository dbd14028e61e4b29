package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	// Packages
	httpclient "github.com/mutablelogic/go-transfer/pkg/httpclient"
	progress "github.com/mutablelogic/go-transfer/pkg/progress"
	render "github.com/mutablelogic/go-transfer/pkg/render"
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
	supervisor "github.com/mutablelogic/go-transfer/pkg/supervisor"
	errgroup "golang.org/x/sync/errgroup"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type TransferCommands struct {
	Transfers ListTransfersCommand    `cmd:"" group:"TRANSFERS" help:"List live transfers"`
	Transfer  GetTransferCommand      `cmd:"" group:"TRANSFERS" help:"Get the last known state of a transfer"`
	Register  RegisterTransferCommand `cmd:"" group:"TRANSFERS" help:"Register a transfer before uploading"`
	Upload    UploadCommand           `cmd:"" group:"TRANSFERS" help:"Upload a file and watch its progress"`
	Watch     WatchCommand            `cmd:"" group:"TRANSFERS" help:"Watch the progress of a transfer"`
}

type ListTransfersCommand struct{}

type GetTransferCommand struct {
	ID string `arg:"" name:"id" help:"Transfer identifier"`
}

type RegisterTransferCommand struct {
	Backend  string `arg:"" name:"backend" help:"Backend name"`
	FileName string `arg:"" name:"filename" help:"Original file name"`
	Path     string `name:"path" short:"p" help:"Destination directory within the backend"`
	Size     int64  `name:"size" help:"Declared size in bytes"`
	ID       string `name:"id" help:"Transfer identifier (generated when empty)"`
}

type WatchOptions struct {
	Attempts int           `name:"attempts" default:"15" help:"Reconnect attempts when the progress stream is lost"`
	Timeout  time.Duration `name:"timeout" default:"1h" help:"Give up waiting for the outcome after this long"`
	Quiet    bool          `name:"quiet" short:"q" help:"Do not draw a progress bar"`
}

type WatchCommand struct {
	WatchOptions
	ID string `arg:"" name:"id" help:"Transfer identifier"`
}

type UploadCommand struct {
	WatchOptions
	Backend string `arg:"" name:"backend" help:"Backend name"`
	File    string `arg:"" name:"file" type:"existingfile" help:"Local file to upload"`
	Path    string `name:"path" short:"p" help:"Destination directory within the backend"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *ListTransfersCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	resp, err := c.ListTransfers(app.ctx)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *GetTransferCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	resp, err := c.GetTransfer(app.ctx, cmd.ID)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *RegisterTransferCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	resp, err := c.CreateTransfer(app.ctx, schema.CreateTransferRequest{
		ID:          cmd.ID,
		Backend:     cmd.Backend,
		Path:        cmd.Path,
		FileName:    cmd.FileName,
		TotalBytes:  cmd.Size,
		ContentType: mime.TypeByExtension(filepath.Ext(cmd.FileName)),
	})
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *WatchCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	sub, sup, err := cmd.WatchOptions.supervisor(app, c, cmd.ID)
	if err != nil {
		return err
	}
	return cmd.WatchOptions.report(sub, sup.Run(app.ctx))
}

func (cmd *UploadCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}

	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	// Register first so the progress stream can be opened before any bytes
	// are sent
	name := filepath.Base(cmd.File)
	session, err := c.CreateTransfer(app.ctx, schema.CreateTransferRequest{
		Backend:     cmd.Backend,
		Path:        cmd.Path,
		FileName:    name,
		TotalBytes:  info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
	})
	if err != nil {
		return err
	}
	sub, sup, err := cmd.WatchOptions.supervisor(app, c, session.ID)
	if err != nil {
		return err
	}

	// Bytes handed to the network are shown until the server reports
	var result supervisor.Result
	g, ctx := errgroup.WithContext(app.ctx)
	g.Go(func() error {
		_, err := c.Upload(ctx, session.ID, name, f, info.Size(), func(written, total int64) {
			if total > 0 {
				sub.Provisional(float64(written)*100/float64(total), written)
			}
		})
		if err != nil {
			return fmt.Errorf("upload %q: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		result = sup.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return cmd.WatchOptions.report(sub, result)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// supervisor returns a subscriber for the transfer, with renderers, and a
// supervisor which keeps it connected
func (opts WatchOptions) supervisor(app *Globals, c *httpclient.Client, id string) (*progress.Subscriber, *supervisor.Supervisor, error) {
	var renderers []progress.Renderer
	if !opts.Quiet {
		renderers = append(renderers, render.Terminal(os.Stderr))
	}
	if app.Debug || opts.Quiet {
		renderers = append(renderers, render.Log(app.log))
	}
	sub, err := progress.New(id, progress.WithRenderer(render.Multi(renderers...)))
	if err != nil {
		return nil, nil, err
	}
	sup, err := supervisor.New(c, sub,
		supervisor.WithMaxAttempts(opts.Attempts),
		supervisor.WithTimeout(opts.Timeout),
		supervisor.WithVerify(c.Verify, 0),
		supervisor.WithLogger(app.log),
	)
	if err != nil {
		return nil, nil, err
	}
	return sub, sup, nil
}

// report returns an error for outcomes other than completed
func (opts WatchOptions) report(sub *progress.Subscriber, result supervisor.Result) error {
	view := sub.View()
	switch result.Resolution {
	case supervisor.Completed:
		return nil
	case supervisor.LikelyCompleted:
		fmt.Fprintf(os.Stderr, "%s: %s\n", view.TransferID, result.Message)
		return nil
	case supervisor.NotFound:
		return fmt.Errorf("%w: %q", schema.ErrTransferNotFound, view.TransferID)
	case supervisor.Cancelled:
		return context.Canceled
	default:
		return errors.New(result.Message)
	}
}
