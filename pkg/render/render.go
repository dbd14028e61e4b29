// Package render provides renderers for transfer progress views: a terminal
// progress bar, a structured log, and a combinator to register more than one
// with a subscriber.
package render

import (
	// Packages
	progress "github.com/mutablelogic/go-transfer/pkg/progress"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

type multi []progress.Renderer

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Multi returns a renderer which calls each renderer in order. Nil
// renderers are skipped.
func Multi(renderers ...progress.Renderer) progress.Renderer {
	var m multi
	for _, r := range renderers {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

////////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (m multi) Render(v progress.View) {
	for _, r := range m {
		r.Render(v)
	}
}
