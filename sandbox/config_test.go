// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultProfileValid(t *testing.T) {
	t.Parallel()

	profile := DefaultProfile()
	if err := profile.Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
	if !profile.Namespaces.Net {
		t.Error("default profile shares the network namespace")
	}
	for _, mount := range profile.Filesystem {
		if mount.Type == MountTypeBind && mount.Mode != MountModeRO {
			t.Errorf("default profile binds %s writable", mount.Dest)
		}
	}
}

func TestProfileClone(t *testing.T) {
	t.Parallel()

	original := DefaultProfile()
	clone := original.Clone()
	clone.Filesystem[0].Dest = "/changed"
	clone.Environment["PATH"] = "/changed"

	if original.Filesystem[0].Dest == "/changed" {
		t.Error("clone shares Filesystem with original")
	}
	if original.Environment["PATH"] == "/changed" {
		t.Error("clone shares Environment with original")
	}
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mount   Mount
		wantErr string
	}{
		{"missing dest", Mount{Source: "/usr"}, "dest is required"},
		{"bind without source", Mount{Dest: "/usr"}, "source is required"},
		{"bad mode", Mount{Source: "/usr", Dest: "/usr", Mode: "rx"}, "invalid mode"},
		{"unknown type", Mount{Dest: "/x", Type: "overlay"}, "unknown type"},
		{"tmpfs", Mount{Dest: "/tmp", Type: MountTypeTmpfs}, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := (&Profile{Name: "p", Filesystem: []Mount{test.mount}}).Validate()
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error = %v, want containing %q", err, test.wantErr)
			}
		})
	}
}

func TestLoadProfile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "signer.yaml")
	content := `name: signer
filesystem:
  - source: /usr
    dest: /usr
    mode: ro
  - dest: /tmp
    type: tmpfs
namespaces:
  pid: true
  net: true
environment:
  PATH: /usr/bin
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if profile.Name != "signer" || len(profile.Filesystem) != 2 || !profile.Namespaces.Net {
		t.Errorf("unexpected profile: %+v", profile)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("filesystem:\n  - source: /usr\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(bad); err == nil {
		t.Error("expected validation error")
	}
}
