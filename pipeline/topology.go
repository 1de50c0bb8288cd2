// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/bootsign/stage"
)

//go:embed topologies/*.jsonc
var embedded embed.FS

// Topology is an ordered stage list and its prerequisites.
type Topology struct {
	Name string `json:"name"`

	// Requires names prerequisites awaited before the first stage.
	Requires []string `json:"requires,omitempty"`

	Stages []stage.Spec `json:"stages"`

	// Package zips the final output. Without it the final output is
	// the artifact, named after its file.
	Package *Package `json:"package,omitempty"`
}

// Package describes how the final stage output is archived.
type Package struct {
	// Archive is the artifact name.
	Archive string `json:"archive"`

	// Entry is the name of the output inside the archive.
	Entry string `json:"entry"`
}

// Validate checks the topology's structure.
func (t *Topology) Validate() error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(t.Stages) == 0 {
		errs = append(errs, errors.New("at least one stage is required"))
	}
	names := make(map[string]bool, len(t.Stages))
	for index := range t.Stages {
		spec := &t.Stages[index]
		if err := spec.Validate(index); err != nil {
			errs = append(errs, err)
		}
		if names[spec.Name] {
			errs = append(errs, fmt.Errorf("duplicate stage name %q", spec.Name))
		}
		names[spec.Name] = true
	}
	if t.Package != nil && (t.Package.Archive == "" || t.Package.Entry == "") {
		errs = append(errs, errors.New("package needs an archive and an entry name"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("topology %q: %w", t.Name, err)
	}
	return nil
}

// ParseTopology decodes a JSONC topology and validates it.
func ParseTopology(data []byte) (*Topology, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	var topology Topology
	if err := decoder.Decode(&topology); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	return &topology, nil
}

// ReadTopology reads a JSONC topology file.
func ReadTopology(filePath string) (*Topology, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	topology, err := ParseTopology(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return topology, nil
}

// Builtin returns the embedded topologies keyed by name.
func Builtin() (map[string]*Topology, error) {
	entries, err := embedded.ReadDir("topologies")
	if err != nil {
		return nil, err
	}
	topologies := make(map[string]*Topology, len(entries))
	for _, entry := range entries {
		data, err := embedded.ReadFile(path.Join("topologies", entry.Name()))
		if err != nil {
			return nil, err
		}
		topology, err := ParseTopology(data)
		if err != nil {
			return nil, fmt.Errorf("embedded %s: %w", entry.Name(), err)
		}
		topologies[topology.Name] = topology
	}
	return topologies, nil
}

func topologyNames(topologies map[string]*Topology) []string {
	names := make([]string, 0, len(topologies))
	for name := range topologies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
