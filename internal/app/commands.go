// internal/app/commands.go
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"seqpack/internal/archive"
	"seqpack/internal/checksum"
	"seqpack/internal/cliutil"
	"seqpack/internal/metrics"
	"seqpack/internal/pipeline"
	"seqpack/internal/publish"
	"seqpack/internal/report"
	"seqpack/internal/runctx"
	"seqpack/internal/samplesheet"
	"seqpack/internal/toolexec"
	"seqpack/internal/verify"
	"seqpack/internal/version"
)

func newRunCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "run <run-id>",
		Short: "Process one sequencer run from demultiplexing to delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.setup(true); err != nil {
				return err
			}
			cfg := s.cfg
			s.metrics = metrics.New()
			s.metricsPath = cfg.MetricsTextfile

			run, err := runctx.New(args[0], runctx.Roots{
				Raw: cfg.Roots.Raw, Work: cfg.Roots.Work, Transfer: cfg.Roots.Transfer,
			}, runctx.Names{
				SampleSheet:    cfg.Names.SampleSheet,
				LogDir:         cfg.Names.LogDir,
				QCDir:          cfg.Names.QCDir,
				AggregateQCDir: cfg.Names.AggregateQCDir,
				TempDir:        cfg.Names.TempDir,
			})
			if err != nil {
				return usage(err)
			}
			ch := s.ch.Scope(run.InvocationID, run.ID)
			s.ch = ch

			var pub *publish.Publisher
			if cfg.Publish.Enabled {
				store, err := publish.NewMinioStore(publish.Config{
					Endpoint:  cfg.Publish.Endpoint,
					AccessKey: cfg.Publish.AccessKey,
					SecretKey: cfg.Publish.SecretKey,
					Region:    cfg.Publish.Region,
					UseSSL:    cfg.Publish.UseSSL,
					Bucket:    cfg.Publish.Bucket,
					Prefix:    cfg.Publish.Prefix,
				})
				if err != nil {
					return usage(err)
				}
				pub = &publish.Publisher{Store: store, Bucket: cfg.Publish.Bucket, Prefix: cfg.Publish.Prefix, Log: ch.Log}
			}

			orch := pipeline.Default(pipeline.Deps{
				Log:     ch.Log,
				Alert:   ch.Alert,
				Logs:    ch,
				Metrics: s.metrics,
				Tools: toolexec.Tools{
					Bcl2fastq: cfg.Tools.Bcl2fastq,
					FastQC:    cfg.Tools.FastQC,
					MultiQC:   cfg.Tools.MultiQC,
				},
				Threads:          cfg.Threads,
				NofileLimit:      cfg.NofileLimit,
				Projects:         samplesheet.Rules{ControlMarkers: cfg.ControlMarkers, TestFixtures: cfg.TestFixtures},
				Archives:         archive.Rules{QCSuffix: cfg.QCSuffix, TempDir: cfg.Names.TempDir, LogDir: cfg.Names.LogDir, InstrumentTags: cfg.InstrumentTags},
				ChecksumWorkers:  cfg.ChecksumWorkers,
				SidecarMaxBytes:  cfg.SidecarMaxBytes,
				ProgressEvery:    cfg.ProgressEvery,
				UpstreamMarker:   cfg.Names.UpstreamMarker,
				CompletionMarker: cfg.Names.CompletionMarker,
				Publisher:        pub,
				Now:              s.now,
			})
			ch.Log.Info("run start", "version", version.Version, "raw_dir", run.RawDir, "stages", len(orch.Stages))
			if err := orch.Execute(cmd.Context(), run); err != nil {
				return err
			}
			return report.Print(cmd.OutOrStdout(), run.ID, run.Facts)
		},
	}
}

func newChecksumCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "checksum <dir>",
		Short: "Write md5/sha512 sidecars for every deliverable under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.setup(false); err != nil {
				return err
			}
			if st, err := os.Stat(args[0]); err != nil || !st.IsDir() {
				return usage(fmt.Errorf("not a directory: %s", args[0]))
			}
			eng := &checksum.Engine{
				Workers:         s.cfg.ChecksumWorkers,
				MaxSidecarBytes: s.cfg.SidecarMaxBytes,
				Log:             s.ch.Log,
				Alert:           s.ch.Alert,
			}
			sum, err := eng.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report.Print(cmd.OutOrStdout(), args[0], []runctx.Fact{
				{Label: "Files", Value: fmt.Sprint(len(sum.Digests))},
				{Label: "Sidecars written", Value: fmt.Sprint(sum.Written)},
				{Label: "Sidecars kept", Value: fmt.Sprint(sum.Skipped)},
				{Label: "Oversize sidecars", Value: fmt.Sprint(len(sum.Oversize))},
			})
		},
	}
}

func newVerifyCmd(s *session) *cobra.Command {
	var scratch string
	cmd := &cobra.Command{
		Use:   "verify <tar>...",
		Short: "Check that tar archives extract cleanly",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.setup(false); err != nil {
				return err
			}
			paths, err := cliutil.ExpandArchives(args)
			if err != nil {
				return usage(err)
			}
			if err := verify.Paths(scratch, paths, s.ch.Log); err != nil {
				return err
			}
			return report.Print(cmd.OutOrStdout(), "verify", []runctx.Fact{
				{Label: "Archives verified", Value: fmt.Sprint(len(paths))},
			})
		},
	}
	cmd.Flags().StringVar(&scratch, "scratch", "", "directory for temporary extraction (default: system temp dir)")
	return cmd
}

func newVersionCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the seqpack version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "seqpack version %s\n", version.Version)
			if report.IsBrokenPipe(err) {
				return nil
			}
			return err
		},
	}
}
