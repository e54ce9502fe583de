// Package logger provides structured logging setup using slog.
//
// A run has two channels: the operational log and a separate failure
// channel for alerts. Both start on the process streams and gain a file
// in the run's log directory once that directory exists.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// New creates a structured JSON logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// WithInvocation attaches the per-process invocation id and the run id.
func WithInvocation(base *slog.Logger, invocationID, runID string) *slog.Logger {
	return base.With("invocation_id", invocationID, "run_id", runID)
}

// ParseLevel maps a config string to a slog level; unknown values are info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Sink is an io.Writer that fans out to a growing set of writers.
type Sink struct {
	mu    sync.Mutex
	ws    []io.Writer
	files []*os.File
}

// NewSink returns a sink writing to ws.
func NewSink(ws ...io.Writer) *Sink {
	return &Sink{ws: ws}
}

// Write hands p to every writer. A failing writer does not starve the
// others; the first error is returned only when no writer took p.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	ok := false
	for _, w := range s.ws {
		if _, err := w.Write(p); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		ok = true
	}
	if ok || first == nil {
		return len(p), nil
	}
	return 0, first
}

// AttachFile appends to path (created if needed) in addition to the
// current writers.
func (s *Sink) AttachFile(path string) error {
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o664)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ws = append(s.ws, fh)
	s.files = append(s.files, fh)
	s.mu.Unlock()
	return nil
}

// Close syncs and closes attached files.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	kept := s.ws[:0]
	for _, w := range s.ws {
		if s.owns(w) {
			continue
		}
		kept = append(kept, w)
	}
	s.ws = kept
	for _, fh := range s.files {
		if err := fh.Sync(); err != nil && first == nil {
			first = err
		}
		if err := fh.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.files = nil
	return first
}

func (s *Sink) owns(w io.Writer) bool {
	for _, fh := range s.files {
		if w == io.Writer(fh) {
			return true
		}
	}
	return false
}

// Channels bundles the operational and failure loggers of one process.
type Channels struct {
	Log   *slog.Logger
	Alert *slog.Logger

	opSink    *Sink
	alertSink *Sink
}

// NewChannels builds both loggers: operational records go to op, alerts to alert.
func NewChannels(op, alert io.Writer, level slog.Level) *Channels {
	c := &Channels{opSink: NewSink(op), alertSink: NewSink(alert)}
	c.Log = New(c.opSink, level)
	c.Alert = New(c.alertSink, slog.LevelWarn).With("channel", "alert")
	return c
}

// Attach adds log files to both channels.
func (c *Channels) Attach(opPath, alertPath string) error {
	if err := c.opSink.AttachFile(opPath); err != nil {
		return err
	}
	return c.alertSink.AttachFile(alertPath)
}

// Scope returns a copy whose loggers carry the invocation and run ids.
func (c *Channels) Scope(invocationID, runID string) *Channels {
	return &Channels{
		Log:       WithInvocation(c.Log, invocationID, runID),
		Alert:     WithInvocation(c.Alert, invocationID, runID),
		opSink:    c.opSink,
		alertSink: c.alertSink,
	}
}

// Close flushes attached files of both channels.
func (c *Channels) Close() error {
	err := c.opSink.Close()
	if aerr := c.alertSink.Close(); err == nil {
		err = aerr
	}
	return err
}

// Discard returns channels that drop everything; useful in tests.
func Discard() *Channels {
	return NewChannels(io.Discard, io.Discard, slog.LevelDebug)
}
