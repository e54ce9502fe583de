// internal/samplesheet/parser.go
package samplesheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// HeaderLabel is the column that names a sample's project.
const HeaderLabel = "Sample_Project"

var (
	ErrEmptyInput         = errors.New("samplesheet: no projects found")
	ErrInvalidProjectName = errors.New("samplesheet: invalid project name")
	utf8BOM               = []byte{0xEF, 0xBB, 0xBF}
)

// ParseFile opens path and parses it with Parse.
func ParseFile(path string, rules Rules) ([]Project, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	ps, err := Parse(fh, rules)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ps, nil
}

// Parse returns the ordered, de-duplicated projects named below the
// Sample_Project header row. Rows above the header are metadata and ignored.
func Parse(r io.Reader, rules Rules) ([]Project, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.FieldsPerRecord = -1 // sections have different widths
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	col := -1
	seen := map[string]struct{}{}
	var out []Project
	ln := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ln++
		if col < 0 {
			col = headerIndex(rec)
			continue
		}
		if col >= len(rec) {
			continue
		}
		name := strings.TrimSpace(rec[col])
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		if err := validName(name); err != nil {
			return nil, fmt.Errorf("row %d: %w", ln, err)
		}
		seen[name] = struct{}{}
		out = append(out, Project{RawName: name, Kind: rules.Classify(name)})
	}
	if len(out) == 0 {
		return nil, ErrEmptyInput
	}
	return out, nil
}

func headerIndex(rec []string) int {
	for i, c := range rec {
		if strings.TrimSpace(c) == HeaderLabel {
			return i
		}
	}
	return -1
}

// validName enforces the character-set policy: project names become
// directory and file names, so ASCII printable only and no path elements.
func validName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
	}
	for _, r := range name {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
		}
	}
	return nil
}
