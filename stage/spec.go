// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"errors"
	"fmt"
	"path"

	"github.com/bureau-foundation/bootsign/vfs"
)

// Source says where an input mount's content comes from.
type Source string

const (
	// SourceJob copies a job input file to Path.
	SourceJob Source = "job"

	// SourceResource mounts a resource read-only as Path/Name.
	SourceResource Source = "resource"

	// SourceStage mounts an earlier stage's namespace subtree Root at
	// Path.
	SourceStage Source = "stage"
)

// Mount is one input of a stage.
type Mount struct {
	Source Source `json:"source"`

	// Name is the job input name (SourceJob) or the resource name
	// (SourceResource).
	Name string `json:"name,omitempty"`

	// Stage is the index of the producing stage (SourceStage).
	Stage int `json:"stage,omitempty"`

	// Root is the subtree of the producing stage's namespace to
	// expose (SourceStage). Defaults to "/".
	Root string `json:"root,omitempty"`

	// Path is the destination. For SourceJob it is the file path; for
	// the other sources it is the mount point directory.
	Path string `json:"path"`

	// Mode applies to SourceStage mounts. Defaults to read-only.
	Mode string `json:"mode,omitempty"`
}

// Spec describes one stage.
type Spec struct {
	Name   string   `json:"name"`
	Module string   `json:"module"`
	Args   []string `json:"args,omitempty"`
	Inputs []Mount  `json:"inputs,omitempty"`

	// WorkingDirectory is the module's initial directory. Relative
	// args and ExpectedOutput resolve against it.
	WorkingDirectory string `json:"workingDirectory"`

	// ExpectedOutput is the file whose presence marks success and
	// whose bytes become the stage output.
	ExpectedOutput string `json:"expectedOutput"`
}

// Validate checks the spec's structure. index is the spec's position
// in its pipeline: stage mounts must refer to an earlier stage.
func (s *Spec) Validate(index int) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Module == "" {
		errs = append(errs, errors.New("module is required"))
	}
	if s.ExpectedOutput == "" {
		errs = append(errs, errors.New("expectedOutput is required"))
	}
	if s.WorkingDirectory != "" && !path.IsAbs(s.WorkingDirectory) {
		errs = append(errs, fmt.Errorf("workingDirectory %q must be absolute", s.WorkingDirectory))
	}
	for position, mount := range s.Inputs {
		if err := mount.validate(index); err != nil {
			errs = append(errs, fmt.Errorf("inputs[%d]: %w", position, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("stage %d (%s): %w", index, s.Name, err)
	}
	return nil
}

func (m *Mount) validate(index int) error {
	if m.Path == "" {
		return errors.New("path is required")
	}
	switch m.Source {
	case SourceJob, SourceResource:
		if m.Name == "" {
			return fmt.Errorf("%s mount needs a name", m.Source)
		}
	case SourceStage:
		if m.Stage < 0 || m.Stage >= index {
			return fmt.Errorf("stage mount refers to stage %d, which does not run before stage %d", m.Stage, index)
		}
		if m.Mode != "" {
			if _, err := vfs.ParseMode(m.Mode); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown source %q", m.Source)
	}
	return nil
}

// mode returns the parsed mount mode, read-only by default.
func (m *Mount) mode() vfs.Mode {
	if m.Mode == "" {
		return vfs.ReadOnly
	}
	mode, err := vfs.ParseMode(m.Mode)
	if err != nil {
		return vfs.ReadOnly
	}
	return mode
}
