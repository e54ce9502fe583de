// Package verify proves staged archives extract cleanly. It says nothing
// about tampering after creation; a local tar carries no signature.
package verify

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"seqpack/internal/runctx"
)

var ErrCorruptArchive = errors.New("verify: archive failed extraction")

// Verify extracts every record into a scratch directory beneath
// run.TransferDir and removes the scratch directory afterwards. Any
// failure is returned; there is no recovery.
func Verify(run *runctx.Run, records []runctx.ArchiveRecord, log *slog.Logger) error {
	return verifyIn(run.TransferDir, records, log)
}

// Paths checks stand-alone tar files, extracting under scratchParent
// (the system temp dir when empty). Member counts are not compared.
func Paths(scratchParent string, paths []string, log *slog.Logger) error {
	records := make([]runctx.ArchiveRecord, len(paths))
	for i, p := range paths {
		records[i] = runctx.ArchiveRecord{Path: p}
	}
	return verifyIn(scratchParent, records, log)
}

func verifyIn(parent string, records []runctx.ArchiveRecord, log *slog.Logger) error {
	scratch, err := os.MkdirTemp(parent, ".verify-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	for i, rec := range records {
		dst := filepath.Join(scratch, fmt.Sprintf("%03d", i))
		n, err := Extract(rec.Path, dst)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, rec.Path, err)
		}
		if rec.MemberCount > 0 && n != rec.MemberCount {
			return fmt.Errorf("%w: %s: %d members, expected %d", ErrCorruptArchive, rec.Path, n, rec.MemberCount)
		}
		log.Info("archive verified", "archive", rec.Path, "members", n)
	}
	if err := os.RemoveAll(scratch); err != nil {
		return fmt.Errorf("remove scratch %s: %w", scratch, err)
	}
	return nil
}

// Extract unpacks the tar at path into dst and returns the member count.
func Extract(path, dst string) (int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	if err := os.MkdirAll(dst, 0o775); err != nil {
		return 0, err
	}

	tr := tar.NewReader(fh)
	n := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		target, err := within(dst, hdr.Name)
		if err != nil {
			return n, err
		}
		if err := extractOne(tr, hdr, target); err != nil {
			return n, err
		}
		n++
	}
	if n == 0 {
		return 0, errors.New("empty archive")
	}
	return n, nil
}

func extractOne(tr *tar.Reader, hdr *tar.Header, target string) error {
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o775)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o775); err != nil {
			return err
		}
		// A repeated member replaces the earlier one, as tar -x does.
		if err := replace(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o664)
		if err != nil {
			return err
		}
		n, err := io.Copy(out, tr)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%s: %w", hdr.Name, err)
		}
		if n != hdr.Size {
			return fmt.Errorf("%s: short member %d/%d", hdr.Name, n, hdr.Size)
		}
		return nil
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o775); err != nil {
			return err
		}
		if err := replace(target); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	default:
		return fmt.Errorf("%s: unsupported member type %q", hdr.Name, hdr.Typeflag)
	}
}

// replace removes a file or link left by an earlier member of the same name.
func replace(target string) error {
	fi, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s: member replaces a directory", target)
	}
	return os.Remove(target)
}

// within resolves name under dst, refusing members that escape it.
func within(dst, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("member %q escapes extraction directory", name)
	}
	return filepath.Join(dst, clean), nil
}
