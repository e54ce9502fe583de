// internal/archive/worklist.go
package archive

import (
	"strings"

	"seqpack/internal/runctx"
)

// Rules select which projects get a delivery archive.
type Rules struct {
	QCSuffix       string   // names ending in this are QC bundles, not projects
	TempDir        string   // scratch directory name inside the working tree
	LogDir         string   // log directory name inside the working tree
	InstrumentTags []string // a kept name carries one of these; empty means the run's instrument
}

// Worklist returns the canonical names to archive, in project order.
func Worklist(run *runctx.Run, r Rules) []string {
	tags := r.InstrumentTags
	if len(tags) == 0 {
		tags = []string{run.Instrument}
	}
	var out []string
	for _, p := range run.Projects {
		if !p.Delivered() {
			continue
		}
		if p.RawName == r.TempDir || p.RawName == r.LogDir {
			continue
		}
		name := p.Canonical(run.Short)
		if r.QCSuffix != "" && strings.HasSuffix(name, r.QCSuffix) {
			continue
		}
		if !carriesTag(name, tags) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func carriesTag(name string, tags []string) bool {
	for _, t := range tags {
		if t != "" && strings.Contains(name, t) {
			return true
		}
	}
	return false
}
