// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"seqpack/internal/runctx"
)

// Stage is one named step of the run.
type Stage struct {
	Name string
	Run  func(context.Context, *runctx.Run) error
}

// StageTimer receives the wall time of each finished stage.
type StageTimer interface {
	ObserveStage(stage string, d time.Duration)
}

// StageError reports which stage stopped the run.
type StageError struct {
	Index int // 1-based
	Total int
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("task %d of %d (%s): %v", e.Index, e.Total, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator executes Stages in order.
type Orchestrator struct {
	Stages  []Stage
	Log     *slog.Logger
	Alert   *slog.Logger
	Metrics StageTimer // optional
}

// Execute runs every stage against run and returns the first failure.
// Failures are not logged here; the caller owns fatal reporting.
func (o *Orchestrator) Execute(ctx context.Context, run *runctx.Run) error {
	n := len(o.Stages)
	for i, s := range o.Stages {
		if err := ctx.Err(); err != nil {
			return &StageError{Index: i + 1, Total: n, Name: s.Name, Err: err}
		}
		o.Log.Info(fmt.Sprintf("task %d of %d", i+1, n), "stage", s.Name)
		start := time.Now()
		err := s.Run(ctx, run)
		d := time.Since(start)
		if o.Metrics != nil {
			o.Metrics.ObserveStage(s.Name, d)
		}
		if err != nil {
			return &StageError{Index: i + 1, Total: n, Name: s.Name, Err: err}
		}
		o.Log.Info("stage done", "stage", s.Name, "duration", d.String())
	}
	return nil
}

// Names lists the stage names in order.
func (o *Orchestrator) Names() []string {
	out := make([]string, len(o.Stages))
	for i, s := range o.Stages {
		out[i] = s.Name
	}
	return out
}
