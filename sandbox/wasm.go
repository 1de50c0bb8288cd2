// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/bureau-foundation/bootsign/vfs"
)

// wasmModule is a compiled WASI command module. Every entry point run
// instantiates it afresh, so runs share no linear memory.
type wasmModule struct {
	name     string
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// loadWasmLocked compiles the module at path. r.mu must be held.
func (r *Registry) loadWasmLocked(ctx context.Context, ref, path string) (Module, error) {
	binary, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if r.runtime == nil {
		runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
			runtime.Close(ctx)
			return nil, fmt.Errorf("instantiating WASI: %w", err)
		}
		r.runtime = runtime
	}

	compiled, err := r.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("compiling %s: %w", path, err)
	}
	return &wasmModule{name: ref, runtime: r.runtime, compiled: compiled}, nil
}

func (m *wasmModule) Name() string { return m.name }

func (m *wasmModule) Instantiate(_ context.Context, ns *vfs.Namespace) (Instance, error) {
	if _, ok := m.compiled.ExportedFunctions()["_start"]; !ok {
		return nil, fmt.Errorf("module does not export _start")
	}
	return &wasmInstance{module: m, ns: ns}, nil
}

type wasmInstance struct {
	module *wasmModule
	ns     *vfs.Namespace
}

func (i *wasmInstance) Main(ctx context.Context, invocation *Invocation) error {
	dir, err := os.MkdirTemp("", "bootsign-wasm-*")
	if err != nil {
		return fmt.Errorf("creating wasm directory: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot, err := vfs.Materialize(i.ns, dir)
	if err != nil {
		return err
	}

	config := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{i.module.name}, invocation.Args...)...).
		WithEnv("PWD", i.ns.WorkingDirectory()).
		WithStdout(invocation.Stdout).
		WithStderr(invocation.Stderr).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(dir, "/")).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	instance, runErr := i.module.runtime.InstantiateModule(ctx, i.module.compiled, config)
	if instance != nil {
		instance.Close(ctx)
	}
	runErr = exitResult(runErr)

	if _, syncErr := vfs.SyncBack(i.ns, snapshot); syncErr != nil && runErr == nil {
		return fmt.Errorf("syncing module output: %w", syncErr)
	}
	return runErr
}

// exitResult maps a WASI exit to the package's exit status. proc_exit
// with code 0 is success.
func exitResult(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return &ExitStatus{Code: int(exitErr.ExitCode())}
	}
	return err
}

func (i *wasmInstance) Close(context.Context) error { return nil }
