// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/bureau-foundation/bootsign/vfs"
)

// Reference prefixes selecting a module kind.
const (
	WasmPrefix = "wasm:"
	ExecPrefix = "exec:"
)

// Registry resolves module references and creates execution contexts.
// Loaded modules are cached by reference for the registry's lifetime.
type Registry struct {
	logger          *slog.Logger
	moduleDirectory string
	bwrap           *bwrapSettings

	mu       sync.Mutex
	builtins map[string]Module
	loaded   map[string]Module
	runtime  wazero.Runtime
}

// bwrapSettings confines exec modules.
type bwrapSettings struct {
	configured string
	profile    *Profile

	once sync.Once
	caps *Capabilities
}

func (s *bwrapSettings) capabilities() *Capabilities {
	s.once.Do(func() { s.caps = DetectCapabilities(s.configured) })
	return s.caps
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithModuleDirectory sets where bare names are looked up as
// <name>.wasm and relative wasm:/exec: paths are resolved.
func WithModuleDirectory(dir string) RegistryOption {
	return func(r *Registry) { r.moduleDirectory = dir }
}

// WithBwrap runs exec modules inside bubblewrap under profile. A nil
// profile selects DefaultProfile.
func WithBwrap(bwrapPath string, profile *Profile) RegistryOption {
	return func(r *Registry) {
		if profile == nil {
			profile = DefaultProfile()
		}
		r.bwrap = &bwrapSettings{configured: bwrapPath, profile: profile}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		builtins: make(map[string]Module),
		loaded:   make(map[string]Module),
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Register adds a module under its name. Names are unique and may not
// carry a kind prefix.
func (r *Registry) Register(module Module) error {
	name := module.Name()
	if name == "" {
		return fmt.Errorf("module name is required")
	}
	if strings.HasPrefix(name, WasmPrefix) || strings.HasPrefix(name, ExecPrefix) {
		return fmt.Errorf("module name %q uses a reserved prefix", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	r.builtins[name] = module
	return nil
}

// RegisterFunc registers a builtin whose entry point is main.
func (r *Registry) RegisterFunc(name string, main MainFunc) error {
	return r.Register(&Builtin{ModuleName: name, Main: main})
}

// Names returns the registered builtin names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	return names
}

// Load resolves ref to a Module. Failures are *ModuleLoadError.
func (r *Registry) Load(ctx context.Context, ref string) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if module, ok := r.builtins[ref]; ok {
		return module, nil
	}
	if module, ok := r.loaded[ref]; ok {
		return module, nil
	}

	var module Module
	var err error
	switch {
	case strings.HasPrefix(ref, WasmPrefix):
		module, err = r.loadWasmLocked(ctx, ref, r.resolve(strings.TrimPrefix(ref, WasmPrefix)))
	case strings.HasPrefix(ref, ExecPrefix):
		module, err = r.loadExec(ref, r.resolve(strings.TrimPrefix(ref, ExecPrefix)))
	default:
		candidate := ""
		if r.moduleDirectory != "" && !strings.ContainsRune(ref, '/') {
			candidate = filepath.Join(r.moduleDirectory, ref+".wasm")
		}
		if candidate == "" {
			return nil, &ModuleLoadError{Module: ref, Err: ErrUnknownModule}
		}
		if _, statErr := os.Stat(candidate); statErr != nil {
			return nil, &ModuleLoadError{Module: ref, Err: ErrUnknownModule}
		}
		module, err = r.loadWasmLocked(ctx, ref, candidate)
	}
	if err != nil {
		return nil, &ModuleLoadError{Module: ref, Err: err}
	}

	r.loaded[ref] = module
	r.logger.Debug("module loaded", "module", ref)
	return module, nil
}

func (r *Registry) resolve(path string) string {
	if filepath.IsAbs(path) || r.moduleDirectory == "" {
		return path
	}
	return filepath.Join(r.moduleDirectory, path)
}

// Instantiate loads ref and returns a Context bound to a fresh
// namespace. Unless options.NoAutoRun is set, the entry point runs
// once with options.AutoRunArgs before Instantiate returns, and a
// failure of that run is a *ModuleInitError.
func (r *Registry) Instantiate(ctx context.Context, ref string, options Options) (*Context, error) {
	module, err := r.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	id := options.ID
	if id == "" {
		id = module.Name()
	}
	ns := vfs.NewNamespace(id)
	if options.WorkingDirectory != "" {
		ns.Chdir(options.WorkingDirectory)
	}

	instance, err := module.Instantiate(ctx, ns)
	if err != nil {
		return nil, &ModuleInitError{Module: module.Name(), Err: err}
	}
	execution := newContext(module.Name(), instance, ns, options)

	if !options.NoAutoRun {
		if err := execution.CallMain(ctx, options.AutoRunArgs); err != nil {
			execution.Close()
			return nil, &ModuleInitError{Module: module.Name(), Err: err}
		}
	}
	return execution, nil
}

// Close releases compiled WASM modules. Contexts created earlier must
// already be closed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runtime == nil {
		return nil
	}
	err := r.runtime.Close(ctx)
	r.runtime = nil
	r.loaded = make(map[string]Module)
	return err
}
