// internal/cliutil/cliutil.go
package cliutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNoArchive reports a verify pattern that matched no file.
var ErrNoArchive = errors.New("no archive matched")

func hasGlobMeta(s string) bool { return strings.ContainsAny(s, "*?[") }

// ExpandArchives turns the verify positionals into archive paths. Globs
// are expanded in lexical order and a glob that matches nothing is an
// error. Plain paths pass through so that a missing file surfaces as a
// verify failure naming it. An archive named twice is checked once.
func ExpandArchives(args []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		key := filepath.Clean(p)
		if !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}
	for _, a := range args {
		if !hasGlobMeta(a) {
			add(a)
			continue
		}
		m, err := filepath.Glob(a)
		if err != nil {
			return nil, fmt.Errorf("bad archive pattern %q: %v", a, err)
		}
		if len(m) == 0 {
			return nil, fmt.Errorf("%w %q", ErrNoArchive, a)
		}
		for _, p := range m {
			add(p)
		}
	}
	return out, nil
}
