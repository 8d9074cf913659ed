package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/term"
)

// confirm asks a yes/no question on the runner's prompt and input. The answer defaults to no.
//
// A terminal gets the interactive form. Other input gets huh's line-based accessible prompt,
// where EOF keeps the default.
func (r *Runner) confirm(ctx context.Context, title, description string) (bool, error) {
	var ok bool
	field := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)
	if description != "" {
		field = field.Description(description)
	}

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(huh.ThemeBase()).
		WithInput(r.input).
		WithOutput(r.prompt).
		WithAccessible(!r.interactive())

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func (r *Runner) interactive() bool {
	f, ok := r.input.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}
