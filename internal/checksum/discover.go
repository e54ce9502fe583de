// internal/checksum/discover.go
package checksum

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Deliverable name fragments. Matching is "contains", so names like
// x.fastq.gz.partial never appear in practice but would be selected.
var Suffixes = []string{".fastq.gz", ".zip", ".tar"}

// Sidecar extensions, appended to the deliverable's full name.
const (
	ExtMD5    = ".md5"
	ExtSHA512 = ".sha512"
)

var ErrNotRegular = errors.New("checksum: not a regular file")

// IsSidecar reports whether name is a checksum sidecar.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, ExtMD5) || strings.HasSuffix(name, ExtSHA512)
}

// IsDeliverable reports whether name is selected for checksumming.
func IsDeliverable(name string) bool {
	if IsSidecar(name) {
		return false
	}
	for _, s := range Suffixes {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Discover walks root and returns the deliverable files in lexical order.
// A selected entry that is not a regular file, or cannot be stat'd, fails
// the whole discovery.
func Discover(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsDeliverable(d.Name()) {
			return nil
		}
		fi, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%w: %s (%s)", ErrNotRegular, path, fi.Mode().Type())
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
