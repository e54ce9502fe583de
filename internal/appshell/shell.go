// Package appshell owns process concerns: signals and the exit code.
package appshell

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Runner is the testable entry point of a command.
type Runner func(ctx context.Context, argv []string, stdout, stderr io.Writer) int

// Main runs run with os.Args and exits with its code. SIGINT and SIGTERM
// cancel the context; external tools are killed and the exit code is 130.
func Main(run Runner) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	argv := os.Args[1:]
	if len(argv) == 0 {
		argv = []string{"--help"}
	}

	code := run(ctx, argv, os.Stdout, os.Stderr)
	if ctx.Err() != nil && code != 2 {
		code = 130
	}

	stop()
	os.Exit(code)
}
