// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"seqpack/internal/config"
	"seqpack/internal/logger"
	"seqpack/internal/metrics"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// usageError marks bad arguments or configuration; it maps to ExitUsage.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usage(err error) error { return &usageError{err: err} }

// session carries what one invocation set up, so the single fatal handler
// in Run can report through it.
type session struct {
	stdout, stderr io.Writer

	configPath string
	logLevel   string

	cfg         *config.Config
	ch          *logger.Channels
	metrics     *metrics.Recorder
	metricsPath string
	now         func() time.Time
}

// Run executes seqpack with argv (without the program name) and returns
// the process exit code. It never calls os.Exit.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	s := &session{stdout: stdout, stderr: stderr, now: time.Now}
	root := newRootCmd(s)
	root.SetArgs(argv)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return s.finish(ctx, err)
}

func (s *session) finish(ctx context.Context, err error) int {
	if s.metrics != nil {
		s.metrics.Finish(err == nil, s.now())
		if werr := s.metrics.WriteTextfile(s.metricsPath); werr != nil && s.ch != nil {
			s.ch.Alert.Warn("metrics textfile", "path", s.metricsPath, "error", werr)
		}
	}
	defer func() {
		if s.ch != nil {
			_ = s.ch.Close()
		}
	}()

	if err == nil {
		return ExitOK
	}
	var ue *usageError
	if errors.As(err, &ue) || s.ch == nil {
		// Argument errors from cobra arrive before any command set up logging.
		_, _ = fmt.Fprintf(s.stderr, "Error: %v\nRun 'seqpack --help' for usage.\n", err)
		return ExitUsage
	}

	s.ch.Log.Error("run failed", "error", err)
	s.ch.Alert.Error("run failed", "error", err)
	if ctx.Err() != nil {
		return ExitInterrupted
	}
	return ExitFailure
}

// setup loads configuration and opens the log channels. needRoots is set
// by commands that touch the data roots.
func (s *session) setup(needRoots bool) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return usage(err)
	}
	if needRoots {
		if err := cfg.RequireRoots(); err != nil {
			return usage(err)
		}
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	s.cfg = cfg
	s.ch = logger.NewChannels(s.stdout, s.stderr, logger.ParseLevel(cfg.LogLevel))
	return nil
}

func newRootCmd(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "seqpack",
		Short: "seqpack turns a finished sequencer run into verified delivery archives",
		Long: `seqpack processes one sequencer run end to end: demultiplex with bcl2fastq,
rename reads per project, run fastqc and multiqc, write md5/sha512 sidecars,
pack each project into a tar in the transfer area, verify the tars by
extraction and mark the run complete.

Any failure stops the run; nothing is retried. A run directory that already
exists in the work or transfer root is refused.

Configuration:
  A YAML file given with --config, overridden by SEQPACK_* environment
  variables (SEQPACK_ROOTS_RAW, SEQPACK_ROOTS_WORK, SEQPACK_ROOTS_TRANSFER, ...).

Common workflows:

  Process a run:
    seqpack run 220314_M06578_0091_000000000-DFM6K --config /etc/seqpack.yaml

  Checksum a directory by hand:
    seqpack checksum /data/work/220314_M06578_0091_000000000-DFM6K

  Re-check delivered archives:
    seqpack verify /data/transfer/220314_M06578_0091_000000000-DFM6K/*.tar`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&s.configPath, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newRunCmd(s), newChecksumCmd(s), newVerifyCmd(s), newVersionCmd(s))
	return root
}
