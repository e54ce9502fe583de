// internal/archive/builder.go
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"seqpack/internal/runctx"
)

// trailerSize is the two zero blocks that end a tar stream.
const trailerSize = 2 * 512

var (
	ErrArchiveExists  = errors.New("archive: target already exists")
	ErrSourceArchived = errors.New("archive: source already in archive")
)

// Builder writes uncompressed tar archives into the run's transfer
// directory. It remembers which archives it created so the QC archive can
// be appended to within one process, while a tar left by an earlier
// process is always refused.
type Builder struct {
	Log           *slog.Logger
	ProgressEvery int // log every N members; <=0 disables progress lines

	created map[string]*written
}

// written is what this Builder has put into one archive so far.
type written struct {
	count   int
	sources []string // relative to the working tree, in order added
}

// NewBuilder returns a Builder logging to log.
func NewBuilder(log *slog.Logger, progressEvery int) *Builder {
	return &Builder{Log: log, ProgressEvery: progressEvery, created: map[string]*written{}}
}

// ProjectTar is the archive path of a canonical project.
func ProjectTar(run *runctx.Run, canonical string) string {
	return filepath.Join(run.TransferDir, canonical+".tar")
}

// QCTar is the archive path of the run's QC bundle.
func QCTar(run *runctx.Run) string {
	return filepath.Join(run.TransferDir, run.Short+".QC.tar")
}

// BuildProject archives {WorkDir}/{canonical} to {TransferDir}/{canonical}.tar.
func (b *Builder) BuildProject(run *runctx.Run, canonical string) (runctx.ArchiveRecord, error) {
	return b.build(run.WorkDir, ProjectTar(run, canonical), []string{filepath.Join(run.WorkDir, canonical)}, false)
}

// BuildQC archives the given directories (absolute, inside WorkDir) into
// the QC tar, appending when this Builder already created it.
func (b *Builder) BuildQC(run *runctx.Run, sources ...string) (runctx.ArchiveRecord, error) {
	target := QCTar(run)
	_, mine := b.created[target]
	return b.build(run.WorkDir, target, sources, mine)
}

func (b *Builder) build(base, target string, sources []string, appendMode bool) (runctx.ArchiveRecord, error) {
	if b.created == nil {
		b.created = map[string]*written{}
	}
	prev := b.created[target]
	if prev == nil {
		prev = &written{}
	}
	seen := append([]string(nil), prev.sources...)
	var rels []string
	for _, src := range sources {
		if _, err := os.Stat(src); err != nil {
			return runctx.ArchiveRecord{}, fmt.Errorf("archive source: %w", err)
		}
		rel, err := filepath.Rel(base, src)
		if err != nil {
			return runctx.ArchiveRecord{}, err
		}
		rel = filepath.ToSlash(rel)
		if overlaps(seen, rel) {
			return runctx.ArchiveRecord{}, fmt.Errorf("%w: %s in %s", ErrSourceArchived, rel, target)
		}
		seen = append(seen, rel)
		rels = append(rels, rel)
	}

	var (
		fh  *os.File
		err error
	)
	if appendMode {
		fh, err = openForAppend(target)
	} else {
		fh, err = os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o664)
		if errors.Is(err, os.ErrExist) {
			return runctx.ArchiveRecord{}, fmt.Errorf("%w: %s", ErrArchiveExists, target)
		}
	}
	if err != nil {
		return runctx.ArchiveRecord{}, err
	}

	count := prev.count
	tw := tar.NewWriter(fh)
	for _, src := range sources {
		var err error
		if count, err = b.addTree(tw, base, src, target, count); err != nil {
			fh.Close()
			return runctx.ArchiveRecord{}, err
		}
	}
	if err := tw.Close(); err != nil {
		fh.Close()
		return runctx.ArchiveRecord{}, fmt.Errorf("close tar %s: %w", target, err)
	}
	if err := fh.Close(); err != nil {
		return runctx.ArchiveRecord{}, err
	}
	all := append(append([]string(nil), prev.sources...), rels...)
	b.created[target] = &written{count: count, sources: all}

	fi, err := os.Stat(target)
	if err != nil {
		return runctx.ArchiveRecord{}, err
	}
	b.Log.Info("archive written", "archive", target, "members", count, "bytes", fi.Size(), "appended", appendMode)
	return runctx.ArchiveRecord{Path: target, MemberCount: count, SourceDirs: all, Bytes: fi.Size()}, nil
}

// overlaps reports whether rel equals, contains or lies inside one of the
// slash-separated paths in have.
func overlaps(have []string, rel string) bool {
	for _, h := range have {
		if h == rel || strings.HasPrefix(rel, h+"/") || strings.HasPrefix(h, rel+"/") {
			return true
		}
	}
	return false
}

// openForAppend positions fh over the end-of-archive trailer so a new
// writer continues the stream.
func openForAppend(target string) (*os.File, error) {
	fh, err := os.OpenFile(target, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	fi, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, err
	}
	if fi.Size() < trailerSize {
		fh.Close()
		return nil, fmt.Errorf("archive: %s too short to append", target)
	}
	if _, err := fh.Seek(-trailerSize, io.SeekEnd); err != nil {
		fh.Close()
		return nil, err
	}
	return fh, nil
}

// addTree walks src and adds each entry individually with a name relative
// to base, logging progress for large trees.
func (b *Builder) addTree(tw *tar.Writer, base, src, target string, count int) (int, error) {
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := addEntry(tw, base, path); err != nil {
			return err
		}
		count++
		if b.ProgressEvery > 0 && count%b.ProgressEvery == 0 {
			b.Log.Info("archive progress", "archive", target, "members", count, "current", path)
		}
		return nil
	})
	return count, err
}

func addEntry(tw *tar.Writer, base, path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}
	link := ""
	if fi.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return fmt.Errorf("tar header %s: %w", path, err)
	}
	hdr.Name = filepath.ToSlash(rel)
	if fi.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar header %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	if _, err := io.Copy(tw, fh); err != nil {
		return fmt.Errorf("tar copy %s: %w", path, err)
	}
	return nil
}
