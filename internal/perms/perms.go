// internal/perms/perms.go
package perms

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	FileMode os.FileMode = 0o664 // owner/group rw, other r
	DirMode  os.FileMode = 0o775 // rx for all, w for owner/group
)

// ErrVanished means a path disappeared between discovery and chmod. The
// tree is assumed to be owned exclusively by this process.
var ErrVanished = errors.New("perms: path vanished during normalization")

// Normalize sets every regular file under root to FileMode, then every
// directory (root included) to DirMode. It returns the counts touched.
func Normalize(root string) (files, dirs int, err error) {
	if files, err = apply(root, func(d fs.DirEntry) bool { return d.Type().IsRegular() }, FileMode); err != nil {
		return 0, 0, err
	}
	if dirs, err = apply(root, func(d fs.DirEntry) bool { return d.IsDir() }, DirMode); err != nil {
		return files, 0, err
	}
	return files, dirs, nil
}

func apply(root string, want func(fs.DirEntry) bool, mode os.FileMode) (int, error) {
	paths, err := discover(root, want)
	if err != nil {
		return 0, err
	}
	if err := chmodAll(paths, mode); err != nil {
		return 0, err
	}
	return len(paths), nil
}

// discover lists the paths under root selected by want.
func discover(root string, want func(fs.DirEntry) bool) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return vanished(path, err)
		}
		if want(d) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func chmodAll(paths []string, mode os.FileMode) error {
	for _, p := range paths {
		if err := os.Chmod(p, mode); err != nil {
			return vanished(p, err)
		}
	}
	return nil
}

func vanished(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrVanished, path)
	}
	return fmt.Errorf("chmod %s: %w", path, err)
}
