package main

import (
	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type ObjectCommands struct {
	Backends BackendsCommand     `cmd:"" group:"OBJECTS" help:"List backends"`
	Objects  ListObjectsCommand  `cmd:"" group:"OBJECTS" help:"List stored objects"`
	Rm       DeleteObjectCommand `cmd:"" name:"rm" group:"OBJECTS" help:"Delete a stored object, for example one whose record was not saved"`
}

type BackendsCommand struct{}

type ListObjectsCommand struct {
	Backend   string `arg:"" name:"backend" help:"Backend name"`
	Path      string `arg:"" name:"path" help:"Path prefix to list" optional:"" default:"/"`
	Recursive bool   `name:"recursive" short:"r" help:"List recursively"`
	Limit     int    `name:"limit" short:"n" help:"Maximum number of objects to return (default: all)."`
	Offset    int    `name:"offset" help:"Number of objects to skip (for pagination)." default:"0"`
}

type DeleteObjectCommand struct {
	Backend string `arg:"" name:"backend" help:"Backend name"`
	Path    string `arg:"" name:"path" help:"Object path (e.g. /uploads/video.mp4)"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *BackendsCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	resp, err := c.ListBackends(app.ctx)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *ListObjectsCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	limit := cmd.Limit
	if limit == 0 {
		limit = schema.MaxListLimit
	}
	resp, err := c.ListObjects(app.ctx, cmd.Backend, schema.ListObjectsRequest{
		Path:      cmd.Path,
		Recursive: cmd.Recursive,
		Limit:     limit,
		Offset:    cmd.Offset,
	})
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *DeleteObjectCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	obj, err := c.DeleteObject(app.ctx, cmd.Backend, schema.DeleteObjectRequest{
		Path: cmd.Path,
	})
	if err != nil {
		return err
	}
	return prettyJSON(obj)
}
