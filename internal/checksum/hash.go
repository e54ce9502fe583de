// internal/checksum/hash.go
package checksum

import (
	"crypto/md5"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Digest is a deliverable file with its digests.
type Digest struct {
	Path   string
	Size   int64
	MD5    string
	SHA512 string
}

// HashFile reads path once and feeds both hashes.
func HashFile(path string) (Digest, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer fh.Close()
	m, s := md5.New(), sha512.New()
	n, err := io.Copy(io.MultiWriter(m, s), fh)
	if err != nil {
		return Digest{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return Digest{
		Path:   path,
		Size:   n,
		MD5:    hex.EncodeToString(m.Sum(nil)),
		SHA512: hex.EncodeToString(s.Sum(nil)),
	}, nil
}

// FormatSidecar renders one sidecar line: hex digest, two spaces, base name.
func FormatSidecar(hexDigest, base string) string {
	return hexDigest + "  " + base + "\n"
}

// ParseSidecar returns the digest and file name recorded in a sidecar.
func ParseSidecar(data []byte) (hexDigest, name string, err error) {
	line := strings.TrimRight(string(data), "\n")
	i := strings.Index(line, "  ")
	if i <= 0 || strings.Contains(line, "\n") {
		return "", "", fmt.Errorf("checksum: malformed sidecar %q", line)
	}
	return line[:i], line[i+2:], nil
}

// ReadSidecar reads the digest recorded for file with the given extension.
func ReadSidecar(file, ext string) (string, error) {
	b, err := os.ReadFile(file + ext)
	if err != nil {
		return "", err
	}
	d, name, err := ParseSidecar(b)
	if err != nil {
		return "", err
	}
	if name != filepath.Base(file) {
		return "", fmt.Errorf("checksum: sidecar %s names %q", file+ext, name)
	}
	return d, nil
}
