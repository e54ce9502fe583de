// internal/layout/layout.go
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"seqpack/internal/runctx"
)

// DirMode is owner/group rwx, other rx.
const DirMode os.FileMode = 0o775

var (
	ErrRunNotComplete   = errors.New("layout: upstream run not complete")
	ErrMissingRoot      = errors.New("layout: root directory missing")
	ErrAlreadyProcessed = errors.New("layout: run already processed")
	ErrMarkerExists     = errors.New("layout: completion marker already exists")
)

// CreateWorkingTree creates WorkDir with its log and QC subdirectories.
// All preconditions are checked before anything is written.
func CreateWorkingTree(run *runctx.Run, upstreamMarker string) error {
	marker := filepath.Join(run.RawDir, upstreamMarker)
	if _, err := os.Stat(marker); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRunNotComplete, marker, err)
	}
	if err := requireDir(filepath.Dir(run.WorkDir)); err != nil {
		return err
	}
	if err := requireAbsent(run.WorkDir); err != nil {
		return err
	}
	return mkdirAll(run.WorkDir, run.LogDir, run.QCDir)
}

// CreateTransferTree creates the per-run transfer directory. The transfer
// root is provisioned by infrastructure, never by this program.
func CreateTransferTree(run *runctx.Run) error {
	root := filepath.Dir(run.TransferDir)
	if err := requireDir(root); err != nil {
		return fmt.Errorf("%w (transfer root must be provisioned by infrastructure)", err)
	}
	if err := requireAbsent(run.TransferDir); err != nil {
		return err
	}
	return mkdirAll(run.TransferDir)
}

// WriteCompletionMarker creates the zero-byte marker that signals a fully
// processed run. An existing marker is an error.
func WriteCompletionMarker(run *runctx.Run, name string) (string, error) {
	path := filepath.Join(run.WorkDir, name)
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o664)
	if errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrMarkerExists, path)
	}
	if err != nil {
		return "", err
	}
	return path, fh.Close()
}

func requireDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMissingRoot, path, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMissingRoot, path)
	}
	return nil
}

func requireAbsent(path string) error {
	_, err := os.Lstat(path)
	if err == nil {
		return fmt.Errorf("%w: %s exists", ErrAlreadyProcessed, path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// mkdirAll creates dirs in order; on failure it removes the ones it made so
// the caller never sees a partial tree.
func mkdirAll(dirs ...string) error {
	var made []string
	for _, d := range dirs {
		if err := os.Mkdir(d, DirMode); err != nil {
			rollback(made)
			return err
		}
		made = append(made, d)
		// explicit chmod: Mkdir is subject to umask
		if err := os.Chmod(d, DirMode); err != nil {
			rollback(made)
			return err
		}
	}
	return nil
}

func rollback(made []string) {
	for i := len(made) - 1; i >= 0; i-- {
		_ = os.Remove(made[i])
	}
}
