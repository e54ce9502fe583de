// Package rename moves demultiplexer output into the canonical
// {short}.{name} form: read files first, then their project directory.
package rename

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"seqpack/internal/runctx"
	"seqpack/internal/samplesheet"
)

// ReadGlob selects compressed read files inside a project directory.
const ReadGlob = "*.fastq.gz"

var ErrNoReads = errors.New("rename: project has no read files")

// Normalize renames every Standard project's read files and then its
// directory. Controls and fixtures are visited for logging only.
// Renamed file paths are appended to run.QCInputs.
func Normalize(run *runctx.Run, log *slog.Logger) error {
	for _, p := range run.Projects {
		if !p.Delivered() {
			log.Info("rename skipped", "project", p.RawName, "kind", p.Kind.String())
			continue
		}
		n, err := renameFiles(run, p)
		if err != nil {
			return err
		}
		moved, err := renameDir(run, p)
		if err != nil {
			return err
		}
		log.Info("renamed project", "project", p.RawName, "canonical", p.Canonical(run.Short),
			"files", n, "dir_moved", moved)
	}
	run.Record("QC input files", len(run.QCInputs))
	return nil
}

// renameFiles prefixes each read file with "{short}.". It works on the raw
// directory or, after a partial earlier pass, on the canonical one.
func renameFiles(run *runctx.Run, p samplesheet.Project) (int, error) {
	dir := run.ProjectDir(p)
	if !isDir(dir) && isDir(run.CanonicalDir(p)) {
		dir = run.CanonicalDir(p)
	}
	matches, err := filepath.Glob(filepath.Join(dir, ReadGlob))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("%w: %s (%s)", ErrNoReads, p.RawName, dir)
	}
	sort.Strings(matches)
	prefix := run.Short + "."
	seen := make(map[string]bool, len(matches))
	track := func(path string) {
		if !seen[path] {
			seen[path] = true
			run.QCInputs = append(run.QCInputs, path)
		}
	}
	for _, src := range matches {
		base := filepath.Base(src)
		if strings.HasPrefix(base, prefix) {
			track(src)
			continue
		}
		dst := filepath.Join(dir, prefix+base)
		if _, err := move(src, dst); err != nil {
			return 0, err
		}
		track(dst)
	}
	return len(seen), nil
}

// renameDir moves {WorkDir}/{raw} to {WorkDir}/{short}.{raw} and rebases
// the project's tracked QC inputs.
func renameDir(run *runctx.Run, p samplesheet.Project) (bool, error) {
	src, dst := run.ProjectDir(p), run.CanonicalDir(p)
	moved, err := move(src, dst)
	if err != nil || !moved {
		return moved, err
	}
	prefix := src + string(filepath.Separator)
	for i, f := range run.QCInputs {
		if strings.HasPrefix(f, prefix) {
			run.QCInputs[i] = filepath.Join(dst, strings.TrimPrefix(f, prefix))
		}
	}
	return true, nil
}

// move renames src to dst. A missing source or an existing destination is
// a skip, not an error.
func move(src, dst string) (bool, error) {
	if _, err := os.Lstat(src); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if _, err := os.Lstat(dst); err == nil {
		return false, nil
	}
	if err := os.Rename(src, dst); err != nil {
		return false, fmt.Errorf("rename %s: %w", src, err)
	}
	return true, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
