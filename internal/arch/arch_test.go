// ./internal/arch/arch_test.go
package arch

import (
	"bytes"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"testing"
)

type pkg struct {
	ImportPath string
	Imports    []string
	Standard   bool
}

const module = "seqpack/"

// stages are the domain packages the orchestrator composes.
var stages = []string{
	"seqpack/internal/samplesheet", "seqpack/internal/runctx", "seqpack/internal/layout",
	"seqpack/internal/toolexec", "seqpack/internal/rename", "seqpack/internal/checksum",
	"seqpack/internal/perms", "seqpack/internal/archive", "seqpack/internal/verify",
	"seqpack/internal/manifest", "seqpack/internal/publish", "seqpack/internal/report",
	"seqpack/internal/metrics", "seqpack/internal/logger", "seqpack/internal/runutil",
}

var outer = []string{
	"seqpack/internal/pipeline", "seqpack/internal/app", "seqpack/internal/appshell",
	"seqpack/internal/config", "seqpack/cmd/",
}

func TestImportBoundaries(t *testing.T) {
	cmd := exec.Command("go", "list", "-json", module+"...")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		t.Fatalf("go list: %v", err)
	}
	dec := json.NewDecoder(&out)

	bans := map[string][]string{
		"seqpack/internal/samplesheet": {module},
		"seqpack/internal/pipeline": {
			"seqpack/internal/app", "seqpack/internal/appshell", "seqpack/internal/config",
			"seqpack/internal/logger", "seqpack/internal/metrics", "seqpack/cmd/",
		},
	}
	for _, s := range stages {
		if _, ok := bans[s]; !ok {
			bans[s] = outer
		}
	}

	var violations []string
	for {
		var p pkg
		if err := dec.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("decode: %v", err)
		}
		forbidden, ok := bans[p.ImportPath]
		if !ok {
			continue
		}
		for _, dep := range p.Imports {
			if !strings.HasPrefix(dep, module) {
				continue
			}
			for _, ban := range forbidden {
				if dep == ban || (strings.HasSuffix(ban, "/") && strings.HasPrefix(dep, ban)) {
					violations = append(violations, p.ImportPath+" → "+dep)
				}
			}
		}
	}

	if len(violations) > 0 {
		t.Fatalf("import boundary violations:\n  %s", strings.Join(violations, "\n  "))
	}
}
