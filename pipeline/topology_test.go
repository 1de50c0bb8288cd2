// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/bootsign/stage"
)

func TestBuiltin(t *testing.T) {
	topologies, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}

	native := topologies["native"]
	if native == nil {
		t.Fatal("no native topology")
	}
	var modules []string
	for _, spec := range native.Stages {
		modules = append(modules, spec.Module)
	}
	if got := strings.Join(modules, ","); got != "get-raw-image,imgheaderinsert,sprd-sign" {
		t.Errorf("native modules = %s", got)
	}
	if len(native.Requires) != 0 {
		t.Errorf("native requires %v", native.Requires)
	}
	if native.Package == nil || native.Package.Archive != "boot-sign.zip" || native.Package.Entry != "boot-sign.img" {
		t.Errorf("native package = %+v", native.Package)
	}
	sign := native.Stages[2]
	if sign.Inputs[1].Source != stage.SourceResource || sign.Inputs[1].Name != "sprd_sign.pem" {
		t.Errorf("sign stage inputs = %+v", sign.Inputs)
	}

	interpreted := topologies["interpreted"]
	if interpreted == nil {
		t.Fatal("no interpreted topology")
	}
	if len(interpreted.Requires) != 1 || interpreted.Requires[0] != "backend" {
		t.Errorf("interpreted requires %v", interpreted.Requires)
	}
	if len(interpreted.Stages) != 1 || interpreted.Package != nil {
		t.Errorf("interpreted = %+v", interpreted)
	}
}

func TestParseTopologyErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "unknown field",
			input:   `{"name": "x", "stagez": []}`,
			wantErr: "unknown field",
		},
		{
			name:    "no stages",
			input:   `{"name": "x", "stages": []}`,
			wantErr: "at least one stage",
		},
		{
			name: "forward stage reference",
			input: `{"name": "x", "stages": [
				{"name": "a", "module": "m", "workingDirectory": "/w", "expectedOutput": "/w/o",
				 "inputs": [{"source": "stage", "stage": 0, "path": "/in"}]},
			]}`,
			wantErr: "does not run before stage 0",
		},
		{
			name: "duplicate names",
			input: `{"name": "x", "stages": [
				{"name": "a", "module": "m", "workingDirectory": "/w", "expectedOutput": "/w/o"},
				{"name": "a", "module": "m", "workingDirectory": "/w", "expectedOutput": "/w/o"},
			]}`,
			wantErr: `duplicate stage name "a"`,
		},
		{
			name: "incomplete package",
			input: `{"name": "x", "package": {"archive": "a.zip"}, "stages": [
				{"name": "a", "module": "m", "workingDirectory": "/w", "expectedOutput": "/w/o"},
			]}`,
			wantErr: "archive and an entry",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ParseTopology([]byte(test.input))
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error = %v, want %q", err, test.wantErr)
			}
		})
	}
}

func TestReadTopology(t *testing.T) {
	file := filepath.Join(t.TempDir(), "copy.jsonc")
	content := `// single stage
{
  "name": "copy",
  "stages": [
    {"name": "copy", "module": "copy", "args": ["in", "out"],
     "inputs": [{"source": "job", "name": "boot", "path": "/w/in"}],
     "workingDirectory": "/w", "expectedOutput": "/w/out"},
  ],
}`
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	topology, err := ReadTopology(file)
	if err != nil {
		t.Fatalf("ReadTopology: %v", err)
	}
	if topology.Name != "copy" || topology.Stages[0].Inputs[0].Name != "boot" {
		t.Errorf("topology = %+v", topology)
	}

	if _, err := ReadTopology(filepath.Join(t.TempDir(), "missing.jsonc")); err == nil {
		t.Error("missing file accepted")
	}
}
