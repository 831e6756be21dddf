package main

import (
	"context"
	"errors"

	"github.com/charmbracelet/huh"

	"github.com/mastercactapus/proxscan/scan"
)

// huhOperator asks the person at the bench before continuing.
type huhOperator struct{}

func (huhOperator) Confirm(ctx context.Context, message string) error {
	ok := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(message).
			Affirmative("Continue").
			Negative("Abort").
			Value(&ok),
	))
	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return scan.ErrOperatorAbort
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if !ok {
		return scan.ErrOperatorAbort
	}
	return nil
}
