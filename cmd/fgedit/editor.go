package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/huh"
)

// execEditor spawns the configured external editor on the temp file and
// waits for it to finish.
type execEditor struct {
	command string
}

func (e *execEditor) Edit(ctx context.Context, path string) error {
	cmd := exec.CommandContext(ctx, e.command, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s exited with an error: %w", e.command, err)
	}
	return nil
}

func (e *execEditor) ConfirmRetry(_ context.Context, message string) (bool, error) {
	fmt.Fprintf(os.Stderr, "Storing the content yielded the following error:\n\n%s\n\n", message)

	var retry bool
	err := huh.NewConfirm().
		Title("Do you want to open the editor again?").
		Value(&retry).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return retry, nil
}
