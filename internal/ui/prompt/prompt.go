// Package prompt asks the operator for confirmation before mutating the
// cluster.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned when a confirmation is needed but stdin is
// not a terminal and --yes was not given.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --yes)")

// Options configures a Confirmer.
type Options struct {
	// AssumeYes answers every question with yes without prompting.
	AssumeYes bool

	// Interactive reports whether a terminal is attached. Defaults to a
	// check of stdin.
	Interactive func() bool

	// Ask shows the question. Defaults to a huh confirm form.
	Ask func(ctx context.Context, question string) (bool, error)
}

// Confirmer asks yes/no questions. Its Confirm method matches the
// orchestrator's confirmation callback.
type Confirmer struct {
	opts Options
}

// New returns a Confirmer with defaults filled in.
func New(opts Options) *Confirmer {
	if opts.Interactive == nil {
		opts.Interactive = StdinIsTerminal
	}
	if opts.Ask == nil {
		opts.Ask = askHuh
	}
	return &Confirmer{opts: opts}
}

// Confirm returns the operator's answer. Aborting the form (ctrl+c or esc)
// counts as no.
func (c *Confirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if c.opts.AssumeYes {
		return true, nil
	}
	if !c.opts.Interactive() {
		return false, ErrNotInteractive
	}
	ok, err := c.opts.Ask(ctx, question)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return ok, nil
}

// StdinIsTerminal reports whether stdin is attached to a terminal.
func StdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StdoutIsTerminal reports whether stdout is attached to a terminal.
func StdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func askHuh(ctx context.Context, question string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, err
	}
	return ok, nil
}
