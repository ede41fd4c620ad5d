package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

const (
	exitOK       = 0
	exitError    = 1
	exitFailures = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(version).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// failuresError reports a finished run or comparison that should fail a CI
// job without being an operational error.
type failuresError struct {
	msg string
}

func (e *failuresError) Error() string { return e.msg }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var fe *failuresError
	if errors.As(err, &fe) {
		return exitFailures
	}
	return exitError
}
