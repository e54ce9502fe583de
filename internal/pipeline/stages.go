// internal/pipeline/stages.go
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"seqpack/internal/archive"
	"seqpack/internal/checksum"
	"seqpack/internal/layout"
	"seqpack/internal/manifest"
	"seqpack/internal/perms"
	"seqpack/internal/publish"
	"seqpack/internal/rename"
	"seqpack/internal/runctx"
	"seqpack/internal/runutil"
	"seqpack/internal/samplesheet"
	"seqpack/internal/toolexec"
	"seqpack/internal/verify"
)

// Log file names inside the run's log directory.
const (
	OpLogName    = "seqpack.log"
	AlertLogName = "seqpack.alerts.log"
)

// Recorder is the metrics surface the stages feed.
type Recorder interface {
	StageTimer
	AddChecksummed(n int)
	SetArchiveBytes(archive string, n int64)
}

// LogAttacher adds per-run log files once the log directory exists.
type LogAttacher interface {
	Attach(opPath, alertPath string) error
}

// Deps is everything the default stage list needs besides the run.
type Deps struct {
	Log     *slog.Logger
	Alert   *slog.Logger
	Logs    LogAttacher // optional
	Metrics Recorder    // optional

	Tools       toolexec.Tools
	Threads     int
	NofileLimit uint64

	Projects samplesheet.Rules
	Archives archive.Rules

	ChecksumWorkers int
	SidecarMaxBytes int64
	ProgressEvery   int

	UpstreamMarker   string
	CompletionMarker string

	Publisher *publish.Publisher // nil disables publication
	Now       func() time.Time
}

type stageFunc func(context.Context, *runctx.Run) error

// Default builds the ordered stage list of a full delivery run.
func Default(d Deps) *Orchestrator {
	if d.Now == nil {
		d.Now = time.Now
	}
	inv := &toolexec.Invoker{Log: d.Log, Alert: d.Alert}
	eng := &checksum.Engine{Workers: d.ChecksumWorkers, MaxSidecarBytes: d.SidecarMaxBytes, Log: d.Log, Alert: d.Alert}
	builder := archive.NewBuilder(d.Log, d.ProgressEvery)

	var stages []Stage
	add := func(name string, mk func(step int) stageFunc) {
		stages = append(stages, Stage{Name: name, Run: mk(len(stages) + 1)})
	}

	add("parse sample sheet", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			ps, err := samplesheet.ParseFile(run.SampleSheet, d.Projects)
			if err != nil {
				return err
			}
			if err := run.SetProjects(ps); err != nil {
				return err
			}
			run.Record("Run", run.ID)
			run.Record("Projects", projectList(ps, samplesheet.Standard))
			if c := projectList(ps, samplesheet.ControlNegative); c != "" {
				run.Record("Controls", c)
			}
			if f := projectList(ps, samplesheet.TestFixture); f != "" {
				run.Record("Test fixtures", f)
			}
			return nil
		}
	})
	add("create working tree", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			if err := layout.CreateWorkingTree(run, d.UpstreamMarker); err != nil {
				return err
			}
			if d.Logs != nil {
				if err := d.Logs.Attach(filepath.Join(run.LogDir, OpLogName), filepath.Join(run.LogDir, AlertLogName)); err != nil {
					return fmt.Errorf("attach run logs: %w", err)
				}
			}
			run.Record("Working directory", run.WorkDir)
			return nil
		}
	})
	add("demultiplex", func(step int) stageFunc {
		return func(ctx context.Context, run *runctx.Run) error {
			if d.NofileLimit > 0 {
				got, err := toolexec.RaiseOpenFileLimit(d.NofileLimit)
				if err != nil {
					d.Log.Warn("raise open file limit", "want", d.NofileLimit, "error", err)
				} else {
					d.Log.Info("open file limit", "limit", got)
				}
			}
			_, err := inv.Run(ctx, toolexec.Bcl2fastq(d.Tools.Bcl2fastq, run, runutil.DemuxThreads(d.Threads), step))
			return err
		}
	})
	add("rename", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			return rename.Normalize(run, d.Log)
		}
	})
	add("fastqc", func(step int) stageFunc {
		return func(ctx context.Context, run *runctx.Run) error {
			if len(run.QCInputs) == 0 {
				d.Log.Warn("fastqc skipped: no delivered read files")
				return nil
			}
			_, err := inv.Run(ctx, toolexec.FastQC(d.Tools.FastQC, run, runutil.Workers(d.Threads), run.QCInputs, step))
			return err
		}
	})
	add("multiqc", func(step int) stageFunc {
		return func(ctx context.Context, run *runctx.Run) error {
			_, err := inv.Run(ctx, toolexec.MultiQC(d.Tools.MultiQC, run, step))
			return err
		}
	})
	add("checksum working tree", func(int) stageFunc {
		return checksumStage(eng, d.Metrics, runctx.StageDeliverables, "Deliverables checksummed")
	})
	add("permissions working tree", func(int) stageFunc {
		return permsStage(d.Log, runctx.StageDeliverables)
	})
	add("create transfer tree", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			if err := layout.CreateTransferTree(run); err != nil {
				return err
			}
			run.Record("Transfer directory", run.TransferDir)
			return nil
		}
	})
	add("archive", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			for _, name := range archive.Worklist(run, d.Archives) {
				rec, err := builder.BuildProject(run, name)
				if err != nil {
					return err
				}
				stageArchive(run, d.Metrics, rec)
			}
			rec, err := builder.BuildQC(run, run.QCDir, run.AggregateQCDir)
			if err != nil {
				return err
			}
			stageArchive(run, d.Metrics, rec)
			run.Record("Archives", len(run.Archives))
			return nil
		}
	})
	add("checksum transfer tree", func(int) stageFunc {
		return checksumStage(eng, d.Metrics, runctx.StageTransfer, "Archives checksummed")
	})
	add("permissions transfer tree", func(int) stageFunc {
		return permsStage(d.Log, runctx.StageTransfer)
	})
	add("verify archives", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			if err := verify.Verify(run, run.Archives, d.Log); err != nil {
				return err
			}
			run.Record("Verified", fmt.Sprintf("%d archives", len(run.Archives)))
			return nil
		}
	})
	add("write manifest", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			m, err := manifest.Build(run, d.Now())
			if err != nil {
				return err
			}
			path := manifest.Path(run)
			if err := manifest.Write(path, m); err != nil {
				return err
			}
			run.Record("Manifest", path)
			return nil
		}
	})
	add("publish", func(int) stageFunc {
		return func(ctx context.Context, run *runctx.Run) error {
			if d.Publisher == nil {
				d.Log.Info("publication disabled")
				return nil
			}
			res, err := d.Publisher.Publish(ctx, run.ID, run.TransferDir)
			if err != nil {
				return err
			}
			run.Record("Published", fmt.Sprintf("%d objects to %s", len(res.Keys), d.Publisher.Bucket))
			return nil
		}
	})
	add("completion marker", func(int) stageFunc {
		return func(_ context.Context, run *runctx.Run) error {
			path, err := layout.WriteCompletionMarker(run, d.CompletionMarker)
			if err != nil {
				return err
			}
			d.Log.Info("run complete", "marker", path)
			return nil
		}
	})

	return &Orchestrator{Stages: stages, Log: d.Log, Alert: d.Alert, Metrics: d.Metrics}
}

func checksumStage(eng *checksum.Engine, m Recorder, st runctx.Stage, label string) stageFunc {
	return func(ctx context.Context, run *runctx.Run) error {
		run.Stage = st
		sum, err := eng.Run(ctx, run.TargetDir())
		if err != nil {
			return err
		}
		if m != nil {
			m.AddChecksummed(len(sum.Digests))
		}
		run.Record(label, len(sum.Digests))
		return nil
	}
}

func permsStage(log *slog.Logger, st runctx.Stage) stageFunc {
	return func(_ context.Context, run *runctx.Run) error {
		run.Stage = st
		files, dirs, err := perms.Normalize(run.TargetDir())
		if err != nil {
			return err
		}
		log.Info("permissions normalized", "root", run.TargetDir(), "files", files, "dirs", dirs)
		return nil
	}
}

func stageArchive(run *runctx.Run, m Recorder, rec runctx.ArchiveRecord) {
	run.AddArchive(rec)
	if m != nil {
		m.SetArchiveBytes(filepath.Base(rec.Path), rec.Bytes)
	}
}

func projectList(ps []samplesheet.Project, k samplesheet.Kind) string {
	var names []string
	for _, p := range ps {
		if p.Kind == k {
			names = append(names, p.RawName)
		}
	}
	return strings.Join(names, ", ")
}
