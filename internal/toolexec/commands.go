// internal/toolexec/commands.go
package toolexec

import (
	"path/filepath"
	"strconv"

	"seqpack/internal/runctx"
	"seqpack/internal/runutil"
)

// Tools are the executables of the external collaborators.
type Tools struct {
	Bcl2fastq string
	FastQC    string
	MultiQC   string
}

// Bcl2fastq demultiplexes RawDir into WorkDir. bcl2fastq writes its
// diagnostics to stderr even on success.
func Bcl2fastq(exe string, run *runctx.Run, thr runutil.Threads, step int) Command {
	return Command{
		Name: "bcl2fastq",
		Path: exe,
		Args: []string{
			"--runfolder-dir", run.RawDir,
			"--output-dir", run.WorkDir,
			"--sample-sheet", run.SampleSheet,
			"--reports-dir", filepath.Join(run.QCDir, "Reports"),
			"--stats-dir", filepath.Join(run.QCDir, "Stats"),
			"--no-lane-splitting",
			"--loading-threads", strconv.Itoa(thr.Loading),
			"--processing-threads", strconv.Itoa(thr.Processing),
			"--writing-threads", strconv.Itoa(thr.Writing),
		},
		Dir:     run.WorkDir,
		Capture: Stderr,
		LogFile: run.LogFile(step, "bcl2fastq"),
	}
}

// FastQC checks each read file; results land next to the inputs and the
// log goes to stdout.
func FastQC(exe string, run *runctx.Run, threads int, files []string, step int) Command {
	args := append([]string{"-t", strconv.Itoa(threads)}, files...)
	return Command{
		Name:    "fastqc",
		Path:    exe,
		Args:    args,
		Dir:     run.WorkDir,
		Capture: Stdout,
		LogFile: run.LogFile(step, "fastqc"),
	}
}

// MultiQC aggregates QC output of the working tree. It logs to stderr.
func MultiQC(exe string, run *runctx.Run, step int) Command {
	return Command{
		Name:    "multiqc",
		Path:    exe,
		Args:    []string{run.WorkDir, "-o", run.AggregateQCDir},
		Dir:     run.WorkDir,
		Capture: Stderr,
		LogFile: run.LogFile(step, "multiqc"),
	}
}
