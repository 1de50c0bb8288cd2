// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/bootsign/backend"
	"github.com/bureau-foundation/bootsign/sandbox"
	"github.com/bureau-foundation/bootsign/stage"
	"github.com/bureau-foundation/bootsign/vfs"
)

func TestReason(t *testing.T) {
	initFailure := &backend.InitializationError{Err: errors.New("no avbtool")}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "initialization",
			err:  initFailure,
			want: "InitializationError: interpreted backend initialization failed: no avbtool",
		},
		{
			name: "initialization inside module init",
			err: &stage.StageError{Index: 0, Name: "avb-sign", Err: &sandbox.ModuleInitError{
				Module: "avb-sign", Err: initFailure,
			}},
			want: "InitializationError: ",
		},
		{
			name: "missing output",
			err:  &stage.StageError{Index: 1, Name: "insert-header", Err: &stage.MissingOutputError{StageIndex: 1, Path: "/w/out"}},
			want: "MissingOutputError: stage 1 did not produce /w/out",
		},
		{
			name: "timeout",
			err:  &stage.StageError{Index: 0, Name: "a", Err: &stage.TimeoutError{StageIndex: 0, After: time.Minute}},
			want: "Timeout: ",
		},
		{
			name: "entry point",
			err:  &stage.StageError{Index: 0, Name: "a", Err: &sandbox.EntryPointError{Module: "m", ExitCode: 1, Err: errors.New("bad")}},
			want: "EntryPointError: ",
		},
		{
			name: "module load",
			err:  &sandbox.ModuleLoadError{Module: "m", Err: errors.New("not found")},
			want: "ModuleLoadError: ",
		},
		{
			name: "mount conflict",
			err:  fmt.Errorf("binding: %w", &fs.PathError{Op: "mount", Path: "/in", Err: vfs.ErrMountConflict}),
			want: "MountConflict: ",
		},
		{
			name: "path not found",
			err:  &fs.PathError{Op: "open", Path: "/x", Err: vfs.ErrPathNotFound},
			want: "PathNotFound: ",
		},
		{
			name: "other",
			err:  errors.New("storage offline"),
			want: "Error: storage offline",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := Reason(test.err)
			if !strings.HasPrefix(got, test.want) {
				t.Errorf("Reason = %q, want prefix %q", got, test.want)
			}
		})
	}
}
