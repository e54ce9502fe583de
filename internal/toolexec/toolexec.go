// Package toolexec runs the external demultiplexing and QC tools under one
// contract: separate stdout/stderr capture, zero exit required, and the
// tool's diagnostic stream persisted to a stage-numbered log file.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Stream names which captured stream is the tool's log.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

var (
	ErrToolFailed   = errors.New("toolexec: tool failed")
	ErrEmptyToolLog = errors.New("toolexec: tool log empty or unwritable")
)

// Command is one external tool invocation.
type Command struct {
	Name    string // short tool name for logs
	Path    string // executable
	Args    []string
	Dir     string
	Capture Stream // stream persisted to LogFile
	LogFile string
}

// Line renders the command for logs.
func (c Command) Line() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result is a finished invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	LogFile  string
	Duration time.Duration
}

// ToolError carries everything needed to diagnose a failed tool.
type ToolError struct {
	Tool     string
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s exited %d: %v", e.Tool, e.ExitCode, e.Err)
}

func (e *ToolError) Unwrap() []error { return []error{ErrToolFailed, e.Err} }

// killGrace bounds how long Run waits for output pipes after the process
// was killed on cancellation.
const killGrace = 5 * time.Second

// Invoker runs commands; failures are reported on both loggers.
type Invoker struct {
	Log   *slog.Logger
	Alert *slog.Logger
}

// Run executes c synchronously. There is no retry and no timeout.
func (inv *Invoker) Run(ctx context.Context, c Command) (Result, error) {
	if c.Path == "" {
		return Result{}, fmt.Errorf("%w: %s: empty executable", ErrToolFailed, c.Name)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = killGrace
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	inv.Log.Info("tool start", "tool", c.Name, "command", c.Line(), "dir", c.Dir)
	start := time.Now()
	err := cmd.Run()
	res := Result{
		ExitCode: exitCode(cmd, err),
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}
	if err != nil {
		te := &ToolError{
			Tool:     c.Name,
			Command:  c.Line(),
			ExitCode: res.ExitCode,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			Err:      err,
		}
		for _, l := range []*slog.Logger{inv.Log, inv.Alert} {
			l.Error("tool failed",
				"tool", c.Name, "command", te.Command, "exit_code", te.ExitCode,
				"stdout", te.Stdout, "stderr", te.Stderr, "error", err)
		}
		return res, te
	}

	captured := res.Stdout
	if c.Capture == Stderr {
		captured = res.Stderr
	}
	if err := persist(c.LogFile, captured); err != nil {
		inv.Alert.Error("tool log", "tool", c.Name, "log_file", c.LogFile, "stream", c.Capture.String(), "error", err)
		return res, err
	}
	res.LogFile = c.LogFile
	inv.Log.Info("tool done", "tool", c.Name, "duration", res.Duration.String(), "log_file", c.LogFile)
	return res, nil
}

// persist writes the captured stream verbatim. An empty capture means the
// tool produced no diagnostics, which is treated as a truncated run.
func persist(path string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s: nothing captured", ErrEmptyToolLog, path)
	}
	if path == "" {
		return fmt.Errorf("%w: no log file configured", ErrEmptyToolLog)
	}
	if err := os.WriteFile(path, data, 0o664); err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyToolLog, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyToolLog, err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyToolLog, path)
	}
	return nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if err != nil {
		return -1
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return 0
}
