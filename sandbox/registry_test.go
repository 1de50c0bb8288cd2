// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/bootsign/lib/testutil"
	"github.com/bureau-foundation/bootsign/vfs"
)

// copyMain copies Args[0] to Args[1] and reports progress on stdout.
func copyMain(ctx context.Context, invocation *Invocation) error {
	if len(invocation.Args) != 2 {
		return fmt.Errorf("usage: copy <input> <output>")
	}
	data, err := invocation.FS.ReadFile(invocation.Args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(invocation.Stdout, "copying %d bytes\n", len(data))
	fmt.Fprint(invocation.Stderr, "partial")
	return invocation.FS.WriteFile(invocation.Args[1], data)
}

func TestBuiltinCallMain(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterFunc("copy", copyMain); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var stdout, stderr []string
	execution, err := registry.Instantiate(context.Background(), "copy", Options{
		ID:               "stage-0",
		NoAutoRun:        true,
		WorkingDirectory: "/home/web_user",
		OnStdout:         func(line string) { mu.Lock(); stdout = append(stdout, line); mu.Unlock() },
		OnStderr:         func(line string) { mu.Lock(); stderr = append(stderr, line); mu.Unlock() },
	})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer execution.Close()

	if execution.FS().ID() != "stage-0" {
		t.Errorf("namespace id = %q", execution.FS().ID())
	}
	if err := execution.FS().WriteFile("boot.img", []byte("image")); err != nil {
		t.Fatal(err)
	}
	if err := execution.CallMain(context.Background(), []string{"boot.img", "out.img"}); err != nil {
		t.Fatalf("CallMain: %v", err)
	}

	got, err := execution.FS().ReadFile("/home/web_user/out.img")
	if err != nil || string(got) != "image" {
		t.Errorf("output = %q, %v", got, err)
	}
	if !reflect.DeepEqual(stdout, []string{"copying 5 bytes"}) {
		t.Errorf("stdout = %q", stdout)
	}
	if !reflect.DeepEqual(stderr, []string{"partial"}) {
		t.Errorf("stderr = %q (trailing partial line should be flushed)", stderr)
	}
}

func TestContextsAreIsolated(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterFunc("copy", copyMain); err != nil {
		t.Fatal(err)
	}
	first, err := registry.Instantiate(context.Background(), "copy", Options{NoAutoRun: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := registry.Instantiate(context.Background(), "copy", Options{NoAutoRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.FS().WriteFile("/a", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if second.FS().Exists("/a") {
		t.Error("file written in one context is visible in another")
	}
}

func TestEntryPointError(t *testing.T) {
	registry := NewRegistry()
	if err := registry.RegisterFunc("copy", copyMain); err != nil {
		t.Fatal(err)
	}
	execution, err := registry.Instantiate(context.Background(), "copy", Options{NoAutoRun: true})
	if err != nil {
		t.Fatal(err)
	}
	defer execution.Close()

	err = execution.CallMain(context.Background(), []string{"missing.img", "out.img"})
	var entryErr *EntryPointError
	if !errors.As(err, &entryErr) {
		t.Fatalf("error = %v, want EntryPointError", err)
	}
	if entryErr.Module != "copy" || entryErr.ExitCode != 1 {
		t.Errorf("EntryPointError = %+v", entryErr)
	}
	if !errors.Is(err, vfs.ErrPathNotFound) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestBuiltinExitStatusAndPanic(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("exit7", func(context.Context, *Invocation) error {
		return &ExitStatus{Code: 7}
	})
	registry.RegisterFunc("panics", func(context.Context, *Invocation) error {
		panic("boom")
	})

	for _, test := range []struct {
		ref      string
		wantCode int
		wantText string
	}{
		{"exit7", 7, "exit status 7"},
		{"panics", 1, "panic: boom"},
	} {
		t.Run(test.ref, func(t *testing.T) {
			execution, err := registry.Instantiate(context.Background(), test.ref, Options{NoAutoRun: true})
			if err != nil {
				t.Fatal(err)
			}
			defer execution.Close()
			err = execution.CallMain(context.Background(), nil)
			var entryErr *EntryPointError
			if !errors.As(err, &entryErr) || entryErr.ExitCode != test.wantCode {
				t.Fatalf("error = %v, want exit code %d", err, test.wantCode)
			}
			if !strings.Contains(err.Error(), test.wantText) {
				t.Errorf("error %q does not mention %q", err, test.wantText)
			}
		})
	}
}

func TestAutoRun(t *testing.T) {
	registry := NewRegistry()
	var calls [][]string
	registry.RegisterFunc("record", func(_ context.Context, invocation *Invocation) error {
		calls = append(calls, invocation.Args)
		if len(invocation.Args) > 0 && invocation.Args[0] == "fail" {
			return errors.New("refused")
		}
		return nil
	})

	execution, err := registry.Instantiate(context.Background(), "record", Options{AutoRunArgs: []string{"warmup"}})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	execution.Close()
	if !reflect.DeepEqual(calls, [][]string{{"warmup"}}) {
		t.Errorf("calls = %v", calls)
	}

	_, err = registry.Instantiate(context.Background(), "record", Options{AutoRunArgs: []string{"fail"}})
	var initErr *ModuleInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want ModuleInitError", err)
	}
	var entryErr *EntryPointError
	if !errors.As(err, &entryErr) {
		t.Errorf("ModuleInitError does not wrap the run failure: %v", err)
	}
}

func TestBuiltinSetupFailure(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Builtin{
		ModuleName: "needs-key",
		Main:       func(context.Context, *Invocation) error { return nil },
		Setup: func(_ context.Context, ns *vfs.Namespace) error {
			_, err := ns.ReadFile("/resource/key.pem")
			return err
		},
	})

	_, err := registry.Instantiate(context.Background(), "needs-key", Options{NoAutoRun: true})
	var initErr *ModuleInitError
	if !errors.As(err, &initErr) || initErr.Module != "needs-key" {
		t.Fatalf("error = %v, want ModuleInitError", err)
	}
}

func TestRegisterRejectsDuplicatesAndPrefixes(t *testing.T) {
	registry := NewRegistry()
	main := func(context.Context, *Invocation) error { return nil }
	if err := registry.RegisterFunc("a", main); err != nil {
		t.Fatal(err)
	}
	if err := registry.RegisterFunc("a", main); err == nil {
		t.Error("duplicate registration succeeded")
	}
	if err := registry.RegisterFunc("wasm:a", main); err == nil {
		t.Error("prefixed name accepted")
	}
	if err := registry.RegisterFunc("", main); err == nil {
		t.Error("empty name accepted")
	}
}

func TestUnknownModule(t *testing.T) {
	registry := NewRegistry(WithModuleDirectory(t.TempDir()))
	for _, ref := range []string{"nonexistent", "wasm:nonexistent.wasm", "exec:nonexistent"} {
		_, err := registry.Instantiate(context.Background(), ref, Options{})
		var loadErr *ModuleLoadError
		if !errors.As(err, &loadErr) || loadErr.Module != ref {
			t.Errorf("%s: error = %v, want ModuleLoadError", ref, err)
		}
	}
	_, err := registry.Load(context.Background(), "nonexistent")
	if !errors.Is(err, ErrUnknownModule) {
		t.Errorf("error = %v, want ErrUnknownModule", err)
	}
}

func TestClosedContext(t *testing.T) {
	registry := NewRegistry()
	registry.RegisterFunc("noop", func(context.Context, *Invocation) error { return nil })
	execution, err := registry.Instantiate(context.Background(), "noop", Options{NoAutoRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := execution.Close(); err != nil {
		t.Fatal(err)
	}
	if err := execution.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := execution.CallMain(context.Background(), nil); !errors.Is(err, ErrContextClosed) {
		t.Errorf("CallMain after Close = %v, want ErrContextClosed", err)
	}
}

func TestCloseCancelsInFlightCall(t *testing.T) {
	registry := NewRegistry()
	started := make(chan struct{})
	registry.RegisterFunc("block", func(ctx context.Context, _ *Invocation) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	execution, err := registry.Instantiate(context.Background(), "block", Options{NoAutoRun: true})
	if err != nil {
		t.Fatal(err)
	}

	result := make(chan error, 1)
	go func() { result <- execution.CallMain(context.Background(), nil) }()
	testutil.RequireClosed(t, started, 5*time.Second, "entry point did not start")

	execution.Close()
	err = testutil.RequireReceive(t, result, 5*time.Second, "CallMain did not return after Close")
	if !errors.Is(err, ErrContextClosed) {
		t.Errorf("CallMain = %v, want ErrContextClosed", err)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	path := filepath.Join(t.TempDir(), "module.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExecModule(t *testing.T) {
	script := writeScript(t, `echo "reading $(basename "$1")"
cat "$1" > signed.img
printf 'trailer' >> signed.img
echo "done" >&2
`)
	registry := NewRegistry()

	var stdout, stderr []string
	execution, err := registry.Instantiate(context.Background(), "exec:"+script, Options{
		NoAutoRun:        true,
		WorkingDirectory: "/home/web_user",
		OnStdout:         func(line string) { stdout = append(stdout, line) },
		OnStderr:         func(line string) { stderr = append(stderr, line) },
	})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer execution.Close()

	if err := execution.FS().WriteFile("/input/boot.img", []byte("image-")); err != nil {
		t.Fatal(err)
	}
	if err := execution.CallMain(context.Background(), []string{"/input/boot.img"}); err != nil {
		t.Fatalf("CallMain: %v", err)
	}

	got, err := execution.FS().ReadFile("/home/web_user/signed.img")
	if err != nil || string(got) != "image-trailer" {
		t.Errorf("signed.img = %q, %v", got, err)
	}
	if !reflect.DeepEqual(stdout, []string{"reading boot.img"}) {
		t.Errorf("stdout = %q", stdout)
	}
	if !reflect.DeepEqual(stderr, []string{"done"}) {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestExecModuleExitCode(t *testing.T) {
	script := writeScript(t, "exit 3\n")
	registry := NewRegistry()
	execution, err := registry.Instantiate(context.Background(), "exec:"+script, Options{NoAutoRun: true})
	if err != nil {
		t.Fatal(err)
	}
	defer execution.Close()

	err = execution.CallMain(context.Background(), nil)
	var entryErr *EntryPointError
	if !errors.As(err, &entryErr) || entryErr.ExitCode != 3 {
		t.Fatalf("error = %v, want exit code 3", err)
	}
}

func TestExecModuleNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewRegistry().Instantiate(context.Background(), "exec:"+path, Options{NoAutoRun: true})
	var initErr *ModuleInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("error = %v, want ModuleInitError", err)
	}
}

func TestExecModuleInBwrap(t *testing.T) {
	caps := DetectCapabilities("")
	if !caps.CanRunSandbox() {
		t.Skip(caps.SkipReason())
	}
	script := writeScript(t, "cp boot.img copy.img\n")
	registry := NewRegistry(WithBwrap(caps.BwrapPath, nil))

	execution, err := registry.Instantiate(context.Background(), "exec:"+script, Options{
		NoAutoRun:        true,
		WorkingDirectory: "/home/web_user",
	})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer execution.Close()
	if err := execution.FS().WriteFile("boot.img", []byte("image")); err != nil {
		t.Fatal(err)
	}
	if err := execution.CallMain(context.Background(), nil); err != nil {
		t.Fatalf("CallMain: %v", err)
	}
	if got, _ := execution.FS().ReadFile("copy.img"); string(got) != "image" {
		t.Errorf("copy.img = %q", got)
	}
}

// Minimal hand-assembled WASM binaries.
var (
	wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// One function of type () -> () exported as _start.
	wasmStartPrefix = []byte{
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type section
		0x03, 0x02, 0x01, 0x00, // function section
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00, // export section
	}
	wasmReturnBody      = []byte{0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b}
	wasmUnreachableBody = []byte{0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b}
)

func writeWasm(t *testing.T, dir, name string, parts ...[]byte) string {
	t.Helper()
	var binary []byte
	for _, part := range parts {
		binary = append(binary, part...)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, binary, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWasmModules(t *testing.T) {
	dir := t.TempDir()
	writeWasm(t, dir, "ok.wasm", wasmHeader, wasmStartPrefix, wasmReturnBody)
	writeWasm(t, dir, "trap.wasm", wasmHeader, wasmStartPrefix, wasmUnreachableBody)
	writeWasm(t, dir, "library.wasm", wasmHeader)
	writeWasm(t, dir, "garbage.wasm", []byte("not a wasm module"))

	ctx := context.Background()
	registry := NewRegistry(WithModuleDirectory(dir))
	defer registry.Close(ctx)

	t.Run("bare name resolves to module directory", func(t *testing.T) {
		execution, err := registry.Instantiate(ctx, "ok", Options{NoAutoRun: true})
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		defer execution.Close()
		if err := execution.FS().WriteFile("/keep.txt", []byte("kept")); err != nil {
			t.Fatal(err)
		}
		if err := execution.CallMain(ctx, []string{"a"}); err != nil {
			t.Fatalf("CallMain: %v", err)
		}
		// A second run gets a fresh instance.
		if err := execution.CallMain(ctx, nil); err != nil {
			t.Fatalf("second CallMain: %v", err)
		}
		if got, _ := execution.FS().ReadFile("/keep.txt"); string(got) != "kept" {
			t.Errorf("namespace lost data across runs: %q", got)
		}
	})

	t.Run("trap is an entry point error", func(t *testing.T) {
		execution, err := registry.Instantiate(ctx, "wasm:trap.wasm", Options{NoAutoRun: true})
		if err != nil {
			t.Fatalf("Instantiate: %v", err)
		}
		defer execution.Close()
		var entryErr *EntryPointError
		if err := execution.CallMain(ctx, nil); !errors.As(err, &entryErr) {
			t.Errorf("CallMain = %v, want EntryPointError", err)
		}
	})

	t.Run("missing _start is an init error", func(t *testing.T) {
		_, err := registry.Instantiate(ctx, "library", Options{NoAutoRun: true})
		var initErr *ModuleInitError
		if !errors.As(err, &initErr) {
			t.Errorf("error = %v, want ModuleInitError", err)
		}
	})

	t.Run("invalid binary is a load error", func(t *testing.T) {
		_, err := registry.Instantiate(ctx, "garbage", Options{NoAutoRun: true})
		var loadErr *ModuleLoadError
		if !errors.As(err, &loadErr) {
			t.Errorf("error = %v, want ModuleLoadError", err)
		}
	})
}
