// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMaterializeAndSyncBack(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	guest.Chdir("/home/web_user")
	if err := host.WriteFile("/out/boot.img", []byte("prior")); err != nil {
		t.Fatal(err)
	}
	if err := guest.WriteFile("/home/web_user/keep.txt", []byte("keep")); err != nil {
		t.Fatal(err)
	}
	if err := guest.WriteFile("/home/web_user/gone.txt", []byte("gone")); err != nil {
		t.Fatal(err)
	}
	if err := Mount(host, guest, "/out", "/input", ReadOnly); err != nil {
		t.Fatal(err)
	}

	directory := t.TempDir()
	snapshot, err := Materialize(guest, directory)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if snapshot.Len() != 3 {
		t.Errorf("snapshot has %d files, want 3", snapshot.Len())
	}
	data, err := os.ReadFile(filepath.Join(directory, "input", "boot.img"))
	if err != nil || string(data) != "prior" {
		t.Fatalf("materialized mount file = %q, %v", data, err)
	}

	// Simulate a module run: create one file, delete another.
	work := filepath.Join(directory, "home", "web_user")
	if err := os.WriteFile(filepath.Join(work, "boot-sign.img"), []byte("out"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(work, "gone.txt")); err != nil {
		t.Fatal(err)
	}

	changed, err := SyncBack(guest, snapshot)
	if err != nil {
		t.Fatalf("SyncBack: %v", err)
	}
	want := []string{"/home/web_user/boot-sign.img", "/home/web_user/gone.txt"}
	if !reflect.DeepEqual(changed, want) {
		t.Errorf("changed = %v, want %v", changed, want)
	}
	if got, _ := guest.ReadFile("boot-sign.img"); string(got) != "out" {
		t.Errorf("synced file = %q", got)
	}
	if guest.Exists("gone.txt") {
		t.Error("deleted file still present")
	}
}

func TestSyncBackRejectsReadOnlyChanges(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	if err := host.WriteFile("/out/boot.img", []byte("prior")); err != nil {
		t.Fatal(err)
	}
	if err := Mount(host, guest, "/out", "/input", ReadOnly); err != nil {
		t.Fatal(err)
	}

	directory := t.TempDir()
	snapshot, err := Materialize(guest, directory)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(directory, "input", "boot.img"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := SyncBack(guest, snapshot); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("SyncBack error = %v, want ErrReadOnly", err)
	}
	if got, _ := host.ReadFile("/out/boot.img"); string(got) != "prior" {
		t.Errorf("host data changed to %q", got)
	}
}
