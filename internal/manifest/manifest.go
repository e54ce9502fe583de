// Package manifest writes the delivery manifest of a verified run.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"seqpack/internal/checksum"
	"seqpack/internal/runctx"
)

var ErrManifestExists = errors.New("manifest: already written")

type Project struct {
	Name      string `yaml:"name"`
	Canonical string `yaml:"canonical"`
	Kind      string `yaml:"kind"`
}

type Archive struct {
	Name    string   `yaml:"name"`
	Members int      `yaml:"members"`
	Bytes   int64    `yaml:"bytes"`
	MD5     string   `yaml:"md5"`
	SHA512  string   `yaml:"sha512"`
	Sources []string `yaml:"sources,omitempty"`
}

// Manifest is the YAML document handed to the receiving side.
type Manifest struct {
	RunID        string    `yaml:"run_id"`
	InvocationID string    `yaml:"invocation_id"`
	Created      time.Time `yaml:"created"`
	Projects     []Project `yaml:"projects"`
	Archives     []Archive `yaml:"archives"`
}

// Path is {WorkDir}/{short}.delivery.yaml.
func Path(run *runctx.Run) string {
	return filepath.Join(run.WorkDir, run.Short+".delivery.yaml")
}

// Build assembles the manifest, reading digests back from each archive's sidecars.
func Build(run *runctx.Run, now time.Time) (*Manifest, error) {
	m := &Manifest{RunID: run.ID, InvocationID: run.InvocationID, Created: now.UTC()}
	for _, p := range run.Projects {
		m.Projects = append(m.Projects, Project{Name: p.RawName, Canonical: p.Canonical(run.Short), Kind: p.Kind.String()})
	}
	for _, a := range run.Archives {
		md5hex, err := checksum.ReadSidecar(a.Path, checksum.ExtMD5)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		shahex, err := checksum.ReadSidecar(a.Path, checksum.ExtSHA512)
		if err != nil {
			return nil, fmt.Errorf("manifest: %w", err)
		}
		var srcs []string
		for _, s := range a.SourceDirs {
			if rel, err := filepath.Rel(run.WorkDir, s); err == nil {
				s = rel
			}
			srcs = append(srcs, filepath.ToSlash(s))
		}
		m.Archives = append(m.Archives, Archive{
			Name:    filepath.Base(a.Path),
			Members: a.MemberCount,
			Bytes:   a.Bytes,
			MD5:     md5hex,
			SHA512:  shahex,
			Sources: srcs,
		})
	}
	return m, nil
}

// Write marshals m to path; an existing file is never replaced.
func Write(path string, m *Manifest) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o664)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrManifestExists, path)
		}
		return err
	}
	if _, err := fh.Write(b); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

// Read loads a manifest written by Write.
func Read(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}
