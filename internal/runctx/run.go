// Package runctx holds the paths, naming conventions and accumulated state
// of one sequencer run. A Run is built once per process and passed by
// pointer to every stage.
package runctx

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"seqpack/internal/samplesheet"
)

// Stage selects which directory tree a cross-cutting stage targets.
type Stage int

const (
	StageDeliverables Stage = iota
	StageTransfer
)

func (s Stage) String() string {
	if s == StageTransfer {
		return "transfer"
	}
	return "deliverables"
}

var (
	ErrBadRunID    = errors.New("runctx: run id needs at least two '_' separated tokens")
	ErrProjectsSet = errors.New("runctx: projects already set")
	ErrNoProjects  = errors.New("runctx: no projects")
)

// Roots are the fixed parents of the per-run directories.
type Roots struct {
	Raw      string
	Work     string
	Transfer string
}

// Names are the fixed file and directory names inside a run.
type Names struct {
	SampleSheet    string // in RawDir
	LogDir         string // in WorkDir
	QCDir          string // in WorkDir
	AggregateQCDir string // in WorkDir
	TempDir        string // in WorkDir
}

// Fact is one labelled value recorded by a stage for the run summary.
type Fact struct {
	Label string
	Value string
}

// ArchiveRecord describes one tar file staged for transfer.
type ArchiveRecord struct {
	Path        string
	MemberCount int
	SourceDirs  []string
	Bytes       int64
}

// Run is the aggregate root for one RunID.
type Run struct {
	ID           string
	Short        string
	Instrument   string
	InvocationID string

	RawDir      string
	WorkDir     string
	TransferDir string

	SampleSheet    string
	LogDir         string
	QCDir          string
	AggregateQCDir string
	TempDirName    string

	Projects []samplesheet.Project
	Stage    Stage

	QCInputs []string
	Archives []ArchiveRecord
	Facts    []Fact
}

// New derives every path of the run from id and the configured roots.
func New(id string, roots Roots, names Names) (*Run, error) {
	id = strings.TrimSpace(id)
	if filepath.Base(id) != id {
		return nil, fmt.Errorf("%w: %q", ErrBadRunID, id)
	}
	tok := strings.Split(id, "_")
	if len(tok) < 2 || tok[0] == "" || tok[1] == "" {
		return nil, fmt.Errorf("%w: %q", ErrBadRunID, id)
	}
	raw, err := filepath.Abs(roots.Raw)
	if err != nil {
		return nil, err
	}
	work, err := filepath.Abs(roots.Work)
	if err != nil {
		return nil, err
	}
	transfer, err := filepath.Abs(roots.Transfer)
	if err != nil {
		return nil, err
	}
	r := &Run{
		ID:           id,
		Short:        tok[0] + "_" + tok[1],
		Instrument:   tok[1],
		InvocationID: uuid.NewString(),
		RawDir:       filepath.Join(raw, id),
		WorkDir:      filepath.Join(work, id),
		TransferDir:  filepath.Join(transfer, id),
		TempDirName:  names.TempDir,
	}
	r.SampleSheet = filepath.Join(r.RawDir, names.SampleSheet)
	r.LogDir = filepath.Join(r.WorkDir, names.LogDir)
	r.QCDir = filepath.Join(r.WorkDir, names.QCDir)
	r.AggregateQCDir = filepath.Join(r.WorkDir, names.AggregateQCDir)
	return r, nil
}

// SetProjects stores the parsed projects. It may be called once.
func (r *Run) SetProjects(ps []samplesheet.Project) error {
	if r.Projects != nil {
		return ErrProjectsSet
	}
	if len(ps) == 0 {
		return ErrNoProjects
	}
	r.Projects = append([]samplesheet.Project(nil), ps...)
	return nil
}

// TargetDir is the tree checksum and permission stages work on.
func (r *Run) TargetDir() string {
	if r.Stage == StageTransfer {
		return r.TransferDir
	}
	return r.WorkDir
}

// ProjectDir is the raw (pre-rename) output directory of a project.
func (r *Run) ProjectDir(p samplesheet.Project) string {
	return filepath.Join(r.WorkDir, p.RawName)
}

// CanonicalDir is the renamed output directory of a project.
func (r *Run) CanonicalDir(p samplesheet.Project) string {
	return filepath.Join(r.WorkDir, p.Canonical(r.Short))
}

// LogFile returns a stage-numbered log path, e.g. 03_bcl2fastq.log.
func (r *Run) LogFile(step int, tool string) string {
	return filepath.Join(r.LogDir, fmt.Sprintf("%02d_%s.log", step, tool))
}

// Record appends a labelled fact in the order stages produce them.
func (r *Run) Record(label string, value any) {
	r.Facts = append(r.Facts, Fact{Label: label, Value: fmt.Sprint(value)})
}

// AddArchive marks an archive for transfer.
func (r *Run) AddArchive(a ArchiveRecord) {
	for i := range r.Archives {
		if r.Archives[i].Path == a.Path {
			r.Archives[i] = a
			return
		}
	}
	r.Archives = append(r.Archives, a)
}
