// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Backend selects the signing pipeline.
type Backend string

const (
	// BackendNative runs the three-stage raw-extract, header-insert,
	// sprd-sign chain.
	BackendNative Backend = "native"

	// BackendInterpreted runs the avbtool-based vbmeta re-signing flow.
	BackendInterpreted Backend = "interpreted"
)

// Backends lists the known backends.
var Backends = []Backend{BackendNative, BackendInterpreted}

// PlatformVersions are the Android versions the interpreted backend
// can pad vbmeta for.
var PlatformVersions = []int{8, 9, 10, 11, 13}

// Input names the pipelines read.
const (
	InputBoot   = "boot"
	InputVBMeta = "vbmeta"
)

// Parameters are the per-job signing parameters.
type Parameters struct {
	ImageType       string  `json:"imageType"`
	PartitionSize   int64   `json:"partitionSize"`
	PlatformVersion int     `json:"platformVersion"`
	Backend         Backend `json:"backend"`
}

// InputFile is one named input of a submission.
type InputFile struct {
	Name  string `json:"name"`
	Bytes []byte `json:"bytes"`
}

// Submission is a signing job sent by a controller.
type Submission struct {
	ID         string      `json:"id"`
	InputFiles []InputFile `json:"inputFiles"`
	Parameters Parameters  `json:"parameters"`
}

// Input returns the bytes of the named input file.
func (s *Submission) Input(name string) ([]byte, bool) {
	for _, file := range s.InputFiles {
		if file.Name == name {
			return file.Bytes, true
		}
	}
	return nil, false
}

// Validate checks that the submission can be run by its backend.
func (s *Submission) Validate() error {
	var errs []error
	switch {
	case s.ID == "":
		errs = append(errs, errors.New("id is required"))
	case s.ID == "." || s.ID == ".." || strings.ContainsAny(s.ID, "/\\\x00"):
		errs = append(errs, fmt.Errorf("id %q is not usable as a path segment", s.ID))
	}
	if len(s.InputFiles) == 0 {
		errs = append(errs, errors.New("at least one input file is required"))
	}
	seen := make(map[string]bool, len(s.InputFiles))
	for index, file := range s.InputFiles {
		switch {
		case file.Name == "":
			errs = append(errs, fmt.Errorf("inputFiles[%d]: name is required", index))
		case seen[file.Name]:
			errs = append(errs, fmt.Errorf("inputFiles[%d]: duplicate name %q", index, file.Name))
		}
		seen[file.Name] = true
	}

	parameters := s.Parameters
	switch parameters.Backend {
	case BackendNative:
		if !seen[InputBoot] {
			errs = append(errs, fmt.Errorf("native jobs require a %q input", InputBoot))
		}
	case BackendInterpreted:
		for _, name := range []string{InputBoot, InputVBMeta} {
			if !seen[name] {
				errs = append(errs, fmt.Errorf("interpreted jobs require a %q input", name))
			}
		}
		if parameters.ImageType == "" {
			errs = append(errs, errors.New("interpreted jobs require an imageType"))
		}
		if !slices.Contains(PlatformVersions, parameters.PlatformVersion) {
			errs = append(errs, fmt.Errorf("platformVersion %d is not one of %v", parameters.PlatformVersion, PlatformVersions))
		}
		if parameters.PartitionSize <= 0 {
			errs = append(errs, fmt.Errorf("partitionSize must be positive, got %d", parameters.PartitionSize))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want one of %v)", parameters.Backend, Backends))
	}
	return errors.Join(errs...)
}

// EventType discriminates events.
type EventType string

const (
	EventTypeLog     EventType = "log"
	EventTypeSuccess EventType = "success"
	EventTypeError   EventType = "error"
)

// Event is one message of a job's event stream. A stream carries any
// number of log events followed by exactly one success or error event.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// Log events.
	Message string `json:"message,omitempty"`

	// Success events.
	ArtifactURL  string `json:"artifactUrl,omitempty"`
	ArtifactName string `json:"artifactName,omitempty"`

	// Error events. Stage is -1 for failures before any stage ran.
	Stage  *int   `json:"stage,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Log returns a log event.
func Log(id, message string) Event {
	return Event{ID: id, Type: EventTypeLog, Message: message}
}

// Success returns a success event.
func Success(id, artifactURL, artifactName string) Event {
	return Event{ID: id, Type: EventTypeSuccess, ArtifactURL: artifactURL, ArtifactName: artifactName}
}

// Failure returns an error event.
func Failure(id string, stage int, reason string) Event {
	return Event{ID: id, Type: EventTypeError, Stage: &stage, Reason: reason}
}

// Terminal reports whether the event ends its job's stream.
func (e Event) Terminal() bool {
	return e.Type == EventTypeSuccess || e.Type == EventTypeError
}

// StageIndex returns the error event's stage, or -1 when absent.
func (e Event) StageIndex() int {
	if e.Stage == nil {
		return -1
	}
	return *e.Stage
}

// Sink receives a job's events in order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(event Event) { f(event) }

// Status is a snapshot of the daemon's job pool.
type Status struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Running   int   `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
