package output

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh/spinner"
	"golang.org/x/term"
)

// SpinnerOption configures a spinner.
type SpinnerOption func(*spinnerConfig)

type spinnerConfig struct {
	title    string
	disabled bool
}

// WithTitle sets the spinner title.
func WithTitle(title string) SpinnerOption {
	return func(c *spinnerConfig) {
		c.title = title
	}
}

// WithDisabled turns the spinner off, e.g. when verbose logs would interleave
// with the animation.
func WithDisabled(disabled bool) SpinnerOption {
	return func(c *spinnerConfig) {
		c.disabled = disabled
	}
}

// RunWithSpinner executes an action while a spinner is shown on stderr.
// The action still runs to completion when no TTY is attached.
func RunWithSpinner(ctx context.Context, action func(context.Context) error, opts ...SpinnerOption) error {
	cfg := &spinnerConfig{title: "Working..."}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.disabled || !IsTTY() {
		return action(ctx)
	}

	var actionErr error
	err := spinner.New().
		Context(ctx).
		Title(cfg.title).
		Action(func() { actionErr = action(ctx) }).
		Run()
	if err != nil {
		return fmt.Errorf("spinner error: %w", err)
	}
	return actionErr
}

// IsTTY reports whether stderr is attached to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
