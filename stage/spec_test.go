// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"reflect"
	"strings"
	"testing"
)

func TestSpecValidate(t *testing.T) {
	valid := Spec{Name: "sign", Module: "sprd-sign", WorkingDirectory: "/home/web_user", ExpectedOutput: "boot-sign.img"}

	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{"valid", func(*Spec) {}, ""},
		{"no name", func(s *Spec) { s.Name = "" }, "name is required"},
		{"no module", func(s *Spec) { s.Module = "" }, "module is required"},
		{"no output", func(s *Spec) { s.ExpectedOutput = "" }, "expectedOutput is required"},
		{"relative working directory", func(s *Spec) { s.WorkingDirectory = "home" }, "must be absolute"},
		{"unknown source", func(s *Spec) { s.Inputs = []Mount{{Source: "disk", Path: "/x"}} }, `unknown source "disk"`},
		{"no path", func(s *Spec) { s.Inputs = []Mount{{Source: SourceJob, Name: "boot"}} }, "path is required"},
		{"job without name", func(s *Spec) { s.Inputs = []Mount{{Source: SourceJob, Path: "/boot.img"}} }, "job mount needs a name"},
		{"forward stage", func(s *Spec) { s.Inputs = []Mount{{Source: SourceStage, Stage: 2, Path: "/input"}} }, "does not run before stage 2"},
		{"bad mode", func(s *Spec) { s.Inputs = []Mount{{Source: SourceStage, Stage: 0, Path: "/input", Mode: "wo"}} }, "unknown mount mode"},
		{"earlier stage", func(s *Spec) { s.Inputs = []Mount{{Source: SourceStage, Stage: 1, Path: "/input", Mode: "rw"}} }, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec := valid
			test.mutate(&spec)
			err := spec.Validate(2)
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate = %v, want mention of %q", err, test.wantErr)
			}
		})
	}
}

func TestExpand(t *testing.T) {
	variables := map[string]string{"jobId": "42", "imageType": "recovery"}
	tests := []struct {
		input   string
		want    string
		wantErr string
	}{
		{"vbmeta.img", "vbmeta.img", ""},
		{"/jobs/${jobId}/boot.img", "/jobs/42/boot.img", ""},
		{"${imageType}-${jobId}", "recovery-42", ""},
		{"$jobId", "$jobId", ""},
		{"${missing} ${other}", "", "unresolved variables: missing, other"},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := Expand(test.input, variables)
			if test.wantErr != "" {
				if err == nil || err.Error() != test.wantErr {
					t.Errorf("error = %v, want %q", err, test.wantErr)
				}
				return
			}
			if err != nil || got != test.want {
				t.Errorf("Expand = %q, %v; want %q", got, err, test.want)
			}
		})
	}
}

func TestExpandSpecLeavesOriginal(t *testing.T) {
	original := Spec{
		Name:             "avb-sign",
		Args:             []string{"vbmeta.img", "${imageType}"},
		Inputs:           []Mount{{Source: SourceJob, Name: "boot", Path: "/jobs/${jobId}/boot.img"}},
		WorkingDirectory: "/jobs/${jobId}",
		ExpectedOutput:   "/jobs/${jobId}/SignedImages.zip",
	}
	expanded, err := ExpandSpec(original, map[string]string{"jobId": "7", "imageType": "boot"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(expanded.Args, []string{"vbmeta.img", "boot"}) ||
		expanded.Inputs[0].Path != "/jobs/7/boot.img" ||
		expanded.WorkingDirectory != "/jobs/7" ||
		expanded.ExpectedOutput != "/jobs/7/SignedImages.zip" {
		t.Errorf("expanded = %+v", expanded)
	}
	if original.Args[1] != "${imageType}" || original.Inputs[0].Path != "/jobs/${jobId}/boot.img" {
		t.Error("original spec modified")
	}

	_, err = ExpandSpec(original, map[string]string{"jobId": "7"})
	if err == nil || !strings.Contains(err.Error(), "args[1]") {
		t.Errorf("error = %v, want args[1] unresolved", err)
	}
}
