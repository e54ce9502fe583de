// internal/samplesheet/project.go
package samplesheet

// Kind classifies a project for archiving and QC aggregation.
type Kind int

const (
	Standard Kind = iota
	ControlNegative
	TestFixture
)

func (k Kind) String() string {
	switch k {
	case ControlNegative:
		return "control-negative"
	case TestFixture:
		return "test-fixture"
	default:
		return "standard"
	}
}

// Project is one Sample_Project group of a run.
type Project struct {
	RawName string
	Kind    Kind
}

// Canonical returns the delivery name {short}.{raw}.
func (p Project) Canonical(short string) string {
	return short + "." + p.RawName
}

// Delivered reports whether the project takes part in file movement and archiving.
func (p Project) Delivered() bool { return p.Kind == Standard }

// Rules drive project classification. Matching is exact.
type Rules struct {
	ControlMarkers []string
	TestFixtures   []string
}

// Classify decides the kind of a project name once.
func (r Rules) Classify(name string) Kind {
	for _, m := range r.ControlMarkers {
		if name == m {
			return ControlNegative
		}
	}
	for _, f := range r.TestFixtures {
		if name == f {
			return TestFixture
		}
	}
	return Standard
}
