// Package ui is the interactive multi-file terminal UI.
package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run launches the TUI for files and blocks until every job finished or the
// user quit. Failed jobs are returned joined, so callers can still inspect
// each one with errors.As.
func Run(ctx context.Context, files []string, opts Options) error {
	m := NewModel(ctx, files, opts)
	m.start()
	prog := tea.NewProgram(m, tea.WithContext(ctx))
	final, err := prog.Run()

	// Stop whatever is still encoding and reap it before returning.
	m.cancel()
	m.wait()

	// A cancelled ctx also kills the program; that is reported below.
	if err != nil && ctx.Err() == nil {
		return err
	}
	fm, ok := final.(Model)
	if !ok {
		fm = m
	}
	if errs := fm.failures(); len(errs) > 0 {
		return fmt.Errorf("%d job(s) failed: %w", len(errs), errors.Join(errs...))
	}
	if !fm.finished {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return context.Canceled
	}
	return nil
}
