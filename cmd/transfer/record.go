package main

import (
	// Packages
	schema "github.com/mutablelogic/go-transfer/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type RecordCommands struct {
	Records ListRecordsCommand `cmd:"" group:"RECORDS" help:"List saved upload records"`
	Record  GetRecordCommand   `cmd:"" group:"RECORDS" help:"Get the record of a saved upload"`
}

type ListRecordsCommand struct {
	Backend string `name:"backend" help:"Filter by backend name"`
	Path    string `name:"path" help:"Filter by path prefix"`
	Limit   int    `name:"limit" short:"n" help:"Maximum number of records to return"`
	Offset  int    `name:"offset" help:"Number of records to skip" default:"0"`
}

type GetRecordCommand struct {
	ID string `arg:"" name:"id" help:"Transfer identifier"`
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *ListRecordsCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	resp, err := c.ListRecords(app.ctx, schema.ListRecordsRequest{
		Backend: cmd.Backend,
		Path:    cmd.Path,
		Limit:   cmd.Limit,
		Offset:  cmd.Offset,
	})
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}

func (cmd *GetRecordCommand) Run(app *Globals) error {
	c, err := app.Client()
	if err != nil {
		return err
	}
	resp, err := c.GetRecord(app.ctx, cmd.ID)
	if err != nil {
		return err
	}
	return prettyJSON(resp)
}
