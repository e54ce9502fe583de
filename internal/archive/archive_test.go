package archive

import (
	"archive/tar"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"seqpack/internal/runctx"
	"seqpack/internal/samplesheet"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRun(t *testing.T, projects ...samplesheet.Project) *runctx.Run {
	t.Helper()
	root := t.TempDir()
	run, err := runctx.New("220314_M06578_0091_000000000-DFM6K",
		runctx.Roots{Raw: filepath.Join(root, "raw"), Work: filepath.Join(root, "work"), Transfer: filepath.Join(root, "transfer")},
		runctx.Names{SampleSheet: "SampleSheet.csv", LogDir: "logs", QCDir: "QC", AggregateQCDir: "multiqc", TempDir: "Temp"})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{run.WorkDir, run.TransferDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if len(projects) > 0 {
		if err := run.SetProjects(projects); err != nil {
			t.Fatal(err)
		}
	}
	return run
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, data := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// readTar returns regular-file contents keyed by member name.
func readTar(t *testing.T, path string) (map[string]string, int) {
	t.Helper()
	fh, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	tr := tar.NewReader(fh)
	files := map[string]string{}
	n := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		n++
		if hdr.Typeflag == tar.TypeReg {
			b, _ := io.ReadAll(tr)
			files[hdr.Name] = string(b)
		}
	}
	return files, n
}

func TestWorklist_ScenarioExcludesNegative(t *testing.T) {
	run := newRun(t,
		samplesheet.Project{RawName: "SAV-amplicon-MJH"},
		samplesheet.Project{RawName: "Negativ", Kind: samplesheet.ControlNegative},
	)
	got := Worklist(run, Rules{QCSuffix: "QC", TempDir: "Temp", LogDir: "logs"})
	if len(got) != 1 || got[0] != "220314_M06578.SAV-amplicon-MJH" {
		t.Fatalf("worklist: %v", got)
	}
	if ProjectTar(run, got[0]) != filepath.Join(run.TransferDir, "220314_M06578.SAV-amplicon-MJH.tar") {
		t.Fatalf("tar path: %s", ProjectTar(run, got[0]))
	}
}

func TestWorklist_Exclusions(t *testing.T) {
	run := newRun(t,
		samplesheet.Project{RawName: "A"},
		samplesheet.Project{RawName: "Test", Kind: samplesheet.TestFixture},
		samplesheet.Project{RawName: "Temp"},
		samplesheet.Project{RawName: "logs"},
		samplesheet.Project{RawName: "MiSeqQC"},
		samplesheet.Project{RawName: "B"},
	)
	got := Worklist(run, Rules{QCSuffix: "QC", TempDir: "Temp", LogDir: "logs"})
	if strings.Join(got, ",") != "220314_M06578.A,220314_M06578.B" {
		t.Fatalf("worklist: %v", got)
	}
	if got := Worklist(run, Rules{InstrumentTags: []string{"NB551"}}); len(got) != 0 {
		t.Fatalf("unrecognised instrument should drop all: %v", got)
	}
}

func TestBuildProject_RoundTrip(t *testing.T) {
	run := newRun(t)
	canon := "220314_M06578.P1"
	tree := map[string]string{
		"220314_M06578.S1_R1_001.fastq.gz":          "reads-1",
		"220314_M06578.S1_R1_001.fastq.gz.md5":      "abc  220314_M06578.S1_R1_001.fastq.gz\n",
		"fastqc/220314_M06578.S1_R1_001_fastqc.zip": "zip",
	}
	writeTree(t, filepath.Join(run.WorkDir, canon), tree)

	rec, err := NewBuilder(quiet, 1).BuildProject(run, canon)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	files, n := readTar(t, rec.Path)
	if n != rec.MemberCount {
		t.Fatalf("member count: tar %d record %d", n, rec.MemberCount)
	}
	if len(files) != len(tree) {
		t.Fatalf("files: %v", files)
	}
	for rel, data := range tree {
		name := canon + "/" + rel
		if files[name] != data {
			t.Fatalf("%s: got %q want %q", name, files[name], data)
		}
	}
	for name := range files {
		if filepath.IsAbs(name) {
			t.Fatalf("absolute member %s", name)
		}
	}
	if rec.Bytes <= 0 || len(rec.SourceDirs) != 1 || rec.SourceDirs[0] != canon {
		t.Fatalf("record: %+v", rec)
	}
}

func TestBuildProject_RefusesExistingTarget(t *testing.T) {
	run := newRun(t)
	canon := "220314_M06578.P1"
	writeTree(t, filepath.Join(run.WorkDir, canon), map[string]string{"a.fastq.gz": "a"})
	target := ProjectTar(run, canon)
	if err := os.WriteFile(target, []byte("previous delivery"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewBuilder(quiet, 0).BuildProject(run, canon)
	if !errors.Is(err, ErrArchiveExists) {
		t.Fatalf("want ErrArchiveExists, got %v", err)
	}
	b, _ := os.ReadFile(target)
	if string(b) != "previous delivery" {
		t.Fatalf("existing archive modified: %q", b)
	}
}

func TestBuildQC_AppendWithinProcess(t *testing.T) {
	run := newRun(t)
	writeTree(t, run.QCDir, map[string]string{"Stats/Stats.json": "{}"})
	writeTree(t, run.AggregateQCDir, map[string]string{"multiqc_report.html": "<html>"})

	b := NewBuilder(quiet, 0)
	first, err := b.BuildQC(run, run.QCDir)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := b.BuildQC(run, run.AggregateQCDir)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.Path != first.Path || second.MemberCount <= first.MemberCount {
		t.Fatalf("records: %+v %+v", first, second)
	}
	files, n := readTar(t, second.Path)
	if n != second.MemberCount {
		t.Fatalf("count: %d vs %d", n, second.MemberCount)
	}
	if files["QC/Stats/Stats.json"] != "{}" || files["multiqc/multiqc_report.html"] != "<html>" {
		t.Fatalf("members: %v", files)
	}
	if !reflect.DeepEqual(second.SourceDirs, []string{"QC", "multiqc"}) {
		t.Fatalf("appended record should list every source, got %v", second.SourceDirs)
	}

	// a fresh builder is a new process as far as the archive is concerned
	if _, err := NewBuilder(quiet, 0).BuildQC(run, run.QCDir); !errors.Is(err, ErrArchiveExists) {
		t.Fatalf("want ErrArchiveExists from new builder, got %v", err)
	}
}

func TestBuildQC_RefusesSourceAlreadyArchived(t *testing.T) {
	run := newRun(t)
	writeTree(t, run.QCDir, map[string]string{"Stats/Stats.json": "{}", "Reports/index.html": "<html>"})

	b := NewBuilder(quiet, 0)
	first, err := b.BuildQC(run, run.QCDir)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	before, _ := os.ReadFile(first.Path)

	for _, src := range []string{run.QCDir, filepath.Join(run.QCDir, "Stats")} {
		if _, err := b.BuildQC(run, src); !errors.Is(err, ErrSourceArchived) {
			t.Fatalf("%s: want ErrSourceArchived, got %v", src, err)
		}
	}
	after, _ := os.ReadFile(first.Path)
	if string(before) != string(after) {
		t.Fatal("archive modified by a refused append")
	}
	_, n := readTar(t, first.Path)
	if n != first.MemberCount {
		t.Fatalf("count: %d vs %d", n, first.MemberCount)
	}
}

func TestBuild_MissingSource(t *testing.T) {
	run := newRun(t)
	if _, err := NewBuilder(quiet, 0).BuildProject(run, "220314_M06578.nope"); err == nil {
		t.Fatal("expected error for missing project directory")
	}
	if _, err := os.Stat(ProjectTar(run, "220314_M06578.nope")); !os.IsNotExist(err) {
		t.Fatal("no tar should be created for a missing source")
	}
}
