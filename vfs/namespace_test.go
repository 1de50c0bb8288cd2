// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vfs

import (
	"bytes"
	"errors"
	"io/fs"
	"reflect"
	"testing"
)

func TestWriteReadRoundtrip(t *testing.T) {
	ns := NewNamespace("ctx")
	payload := []byte{0x44, 0x48, 0x54, 0x42, 0, 1, 2, 3}

	if err := WriteFile(ns, "/home/web_user/boot.img", payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(ns, "/home/web_user/boot.img")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFile = %x, want %x", got, payload)
	}

	// Neither the caller's buffer nor the returned one aliases storage.
	payload[0] = 0xFF
	got[1] = 0xFF
	again, _ := ReadFile(ns, "/home/web_user/boot.img")
	if again[0] != 0x44 || again[1] != 0x48 {
		t.Errorf("stored bytes were mutated through an alias: %x", again)
	}
}

func TestReadNeverWritten(t *testing.T) {
	ns := NewNamespace("ctx")
	_, err := ns.ReadFile("/missing")
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("ReadFile error = %v, want ErrPathNotFound", err)
	}
	var pathError *fs.PathError
	if !errors.As(err, &pathError) || pathError.Path != "/missing" {
		t.Errorf("error is not a PathError for /missing: %v", err)
	}
}

func TestRelativePathsUseWorkingDirectory(t *testing.T) {
	ns := NewNamespace("ctx")
	ns.Chdir("/home/web_user")
	if err := ns.WriteFile("boot.img", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if !ns.Exists("/home/web_user/boot.img") {
		t.Error("relative write did not land under the working directory")
	}
	if !ns.Exists("../web_user/./boot.img") {
		t.Error("unclean relative path did not resolve")
	}
}

func TestStatDirectories(t *testing.T) {
	ns := NewNamespace("ctx")
	if err := ns.WriteFile("/a/b/c.img", []byte("12345")); err != nil {
		t.Fatal(err)
	}

	info, err := ns.Stat("/a/b/c.img")
	if err != nil || info.IsDir || info.Size != 5 {
		t.Errorf("Stat(file) = %+v, %v", info, err)
	}
	info, err = ns.Stat("/a")
	if err != nil || !info.IsDir {
		t.Errorf("Stat(dir) = %+v, %v", info, err)
	}
	if ns.Exists("/a") {
		t.Error("Exists reports a directory as a file")
	}
	if err := ns.WriteFile("/a/b", []byte("clash")); err == nil {
		t.Error("writing a file over a directory succeeded")
	}
	if err := ns.WriteFile("/a/b/c.img/d", []byte("clash")); err == nil {
		t.Error("writing below a file succeeded")
	}
}

func TestMountReadThrough(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	if err := host.WriteFile("/home/web_user/boot.img", []byte("raw")); err != nil {
		t.Fatal(err)
	}

	if err := Mount(host, guest, "/home/web_user", "/input", ReadOnly); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	got, err := guest.ReadFile("/input/boot.img")
	if err != nil || string(got) != "raw" {
		t.Fatalf("guest read = %q, %v", got, err)
	}

	// Host writes after the mount are visible without copying.
	if err := host.WriteFile("/home/web_user/later.img", []byte("new")); err != nil {
		t.Fatal(err)
	}
	if !guest.Exists("/input/later.img") {
		t.Error("host write after mount not visible in guest")
	}

	info, err := guest.Stat("/input")
	if err != nil || !info.IsDir {
		t.Errorf("Stat(mount point) = %+v, %v", info, err)
	}
}

func TestReadOnlyMountRejectsWrites(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	original := []byte("original")
	if err := host.WriteFile("/data/boot.img", original); err != nil {
		t.Fatal(err)
	}
	if err := Mount(host, guest, "/data", "/mnt", ReadOnly); err != nil {
		t.Fatal(err)
	}

	err := guest.WriteFile("/mnt/boot.img", []byte("tampered"))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("write error = %v, want ErrReadOnly", err)
	}
	if !errors.Is(err, ErrMountConflict) {
		t.Errorf("ErrReadOnly does not match ErrMountConflict: %v", err)
	}
	if err := guest.Remove("/mnt/boot.img"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("remove error = %v, want ErrReadOnly", err)
	}
	if err := guest.WriteFile("/mnt/new.img", []byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("create error = %v, want ErrReadOnly", err)
	}

	got, _ := host.ReadFile("/data/boot.img")
	if !bytes.Equal(got, original) {
		t.Errorf("host data changed to %q", got)
	}
	if host.Exists("/data/new.img") {
		t.Error("rejected create reached the host")
	}
}

func TestReadWriteMountReflectsIntoHost(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	if err := Mount(host, guest, "/home/web_user", "/home/web_user", ReadWrite); err != nil {
		t.Fatal(err)
	}

	if err := guest.WriteFile("/home/web_user/boot-sign.img", []byte("signed")); err != nil {
		t.Fatalf("guest write: %v", err)
	}
	got, err := host.ReadFile("/home/web_user/boot-sign.img")
	if err != nil || string(got) != "signed" {
		t.Errorf("host read = %q, %v", got, err)
	}
	if own, _ := guest.root.List("/"); len(own) != 0 {
		t.Errorf("guest private store received the write: %v", own)
	}
}

func TestMountConflicts(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, host, guest *Namespace) error
	}{
		{
			name: "mount point already mounted",
			setup: func(t *testing.T, host, guest *Namespace) error {
				if err := Mount(host, guest, "/", "/mnt", ReadOnly); err != nil {
					t.Fatal(err)
				}
				return Mount(NewNamespace("other"), guest, "/", "/mnt", ReadOnly)
			},
		},
		{
			name: "mount point holds files",
			setup: func(t *testing.T, host, guest *Namespace) error {
				if err := guest.WriteFile("/mnt/existing", []byte("x")); err != nil {
					t.Fatal(err)
				}
				return Mount(host, guest, "/", "/mnt", ReadOnly)
			},
		},
		{
			name: "mount point is a file",
			setup: func(t *testing.T, host, guest *Namespace) error {
				if err := guest.WriteFile("/mnt", []byte("x")); err != nil {
					t.Fatal(err)
				}
				return Mount(host, guest, "/", "/mnt", ReadOnly)
			},
		},
		{
			name: "nested inside existing mount",
			setup: func(t *testing.T, host, guest *Namespace) error {
				if err := Mount(host, guest, "/", "/mnt", ReadOnly); err != nil {
					t.Fatal(err)
				}
				return Mount(NewNamespace("other"), guest, "/", "/mnt/deeper", ReadOnly)
			},
		},
		{
			name: "self mount",
			setup: func(t *testing.T, host, guest *Namespace) error {
				return Mount(guest, guest, "/", "/mnt", ReadOnly)
			},
		},
		{
			name: "cycle",
			setup: func(t *testing.T, host, guest *Namespace) error {
				if err := Mount(guest, host, "/", "/from-guest", ReadOnly); err != nil {
					t.Fatal(err)
				}
				return Mount(host, guest, "/", "/from-host", ReadOnly)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.setup(t, NewNamespace("host"), NewNamespace("guest"))
			if !errors.Is(err, ErrMountConflict) {
				t.Fatalf("error = %v, want ErrMountConflict", err)
			}
		})
	}
}

func TestMountChainsThroughHostMounts(t *testing.T) {
	first := NewNamespace("stage-0")
	second := NewNamespace("stage-1")
	third := NewNamespace("stage-2")
	if err := first.WriteFile("/out/boot.img", []byte("zero")); err != nil {
		t.Fatal(err)
	}
	if err := Mount(first, second, "/out", "/prev", ReadOnly); err != nil {
		t.Fatal(err)
	}
	if err := Mount(second, third, "/", "/chain", ReadWrite); err != nil {
		t.Fatal(err)
	}

	got, err := third.ReadFile("/chain/prev/boot.img")
	if err != nil || string(got) != "zero" {
		t.Fatalf("chained read = %q, %v", got, err)
	}
	// A read-write mount does not lift a read-only mount further down.
	if err := third.WriteFile("/chain/prev/boot.img", []byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("write through ro link = %v, want ErrReadOnly", err)
	}
}

func TestListIncludesMounts(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	for _, name := range []string{"/work/a.img", "/work/sub/b.img", "/elsewhere/c"} {
		if err := host.WriteFile(name, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := guest.WriteFile("/home/own.txt", []byte("own")); err != nil {
		t.Fatal(err)
	}
	if err := Mount(host, guest, "/work", "/input", ReadOnly); err != nil {
		t.Fatal(err)
	}

	all, err := guest.List("/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"/home/own.txt", "/input/a.img", "/input/sub/b.img"}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("List(/) = %v, want %v", all, want)
	}

	inside, err := guest.List("/input/sub")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(inside, []string{"/input/sub/b.img"}) {
		t.Errorf("List(/input/sub) = %v", inside)
	}
}

func TestUnmount(t *testing.T) {
	host := NewNamespace("host")
	guest := NewNamespace("guest")
	if err := host.WriteFile("/f", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := Mount(host, guest, "/", "/mnt", ReadOnly); err != nil {
		t.Fatal(err)
	}
	if got := guest.Mounts(); !reflect.DeepEqual(got, []string{"/mnt"}) {
		t.Errorf("Mounts = %v", got)
	}
	if err := Unmount(guest, "/mnt"); err != nil {
		t.Fatalf("Unmount: %v", err)
	}
	if guest.Exists("/mnt/f") {
		t.Error("file still visible after Unmount")
	}
	if err := Unmount(guest, "/mnt"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("second Unmount = %v, want ErrPathNotFound", err)
	}
}

func TestParseMode(t *testing.T) {
	for input, want := range map[string]Mode{"": ReadOnly, "ro": ReadOnly, "rw": ReadWrite} {
		got, err := ParseMode(input)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseMode("rx"); err == nil {
		t.Error("ParseMode(rx) succeeded")
	}
}
