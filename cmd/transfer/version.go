package main

import (
	"fmt"

	// Packages
	version "github.com/mutablelogic/go-transfer/pkg/version"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

type VersionCommands struct {
	Version VersionCommand `cmd:"" name:"version" help:"Print version information"`
}

type VersionCommand struct{}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (cmd *VersionCommand) Run(app *Globals) error {
	fmt.Println(string(version.JSON(execName())))
	return nil
}
