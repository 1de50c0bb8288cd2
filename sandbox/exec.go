// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/bureau-foundation/bootsign/vfs"
)

// execModule runs a host executable against a materialized copy of
// the namespace.
type execModule struct {
	name   string
	path   string
	bwrap  *bwrapSettings
	logger *slog.Logger
}

func (r *Registry) loadExec(ref, path string) (Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &execModule{name: ref, path: path, bwrap: r.bwrap, logger: r.logger}, nil
}

func (m *execModule) Name() string { return m.name }

func (m *execModule) Instantiate(_ context.Context, ns *vfs.Namespace) (Instance, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%s is not executable", m.path)
	}
	if m.bwrap != nil {
		if caps := m.bwrap.capabilities(); !caps.CanRunSandbox() {
			return nil, fmt.Errorf("sandboxing unavailable: %s", caps.SkipReason())
		}
	}
	return &execInstance{module: m, ns: ns}, nil
}

type execInstance struct {
	module *execModule
	ns     *vfs.Namespace
}

func (i *execInstance) Main(ctx context.Context, invocation *Invocation) error {
	dir, err := os.MkdirTemp("", "bootsign-exec-*")
	if err != nil {
		return fmt.Errorf("creating exec directory: %w", err)
	}
	defer os.RemoveAll(dir)

	snapshot, err := vfs.Materialize(i.ns, dir)
	if err != nil {
		return err
	}

	cmd, err := i.command(ctx, dir, invocation.Args)
	if err != nil {
		return err
	}
	cmd.Stdout = invocation.Stdout
	cmd.Stderr = invocation.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole process group.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	runErr := cmd.Run()
	changed, syncErr := vfs.SyncBack(i.ns, snapshot)
	i.module.logger.Debug("exec module finished",
		"module", i.module.name,
		"changed", len(changed),
		"error", runErr,
	)
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return exitErr
		}
		return fmt.Errorf("running %s: %w", i.module.path, runErr)
	}
	if syncErr != nil {
		return fmt.Errorf("syncing module output: %w", syncErr)
	}
	return nil
}

// command builds the process. Unconfined, absolute arguments are
// rebased into dir and the process starts in the working directory's
// host path. Under bwrap, the tree is bind-mounted at its guest paths.
func (i *execInstance) command(ctx context.Context, dir string, args []string) (*exec.Cmd, error) {
	workingDirectory := i.ns.WorkingDirectory()

	if i.module.bwrap == nil {
		rebased := make([]string, len(args))
		for index, arg := range args {
			if strings.HasPrefix(arg, "/") {
				arg = filepath.Join(dir, filepath.FromSlash(arg))
			}
			rebased[index] = arg
		}
		cmd := exec.CommandContext(ctx, i.module.path, rebased...)
		cmd.Dir = filepath.Join(dir, filepath.FromSlash(workingDirectory))
		cmd.Env = []string{
			"PATH=/usr/local/bin:/usr/bin:/bin",
			"HOME=" + dir,
			"PWD=" + cmd.Dir,
		}
		return cmd, nil
	}

	bwrapArgs, err := NewBwrapBuilder().Build(&BwrapOptions{
		Profile:          i.module.bwrap.profile,
		Root:             dir,
		WorkingDirectory: workingDirectory,
		Program:          i.module.path,
		Args:             args,
	})
	if err != nil {
		return nil, fmt.Errorf("building bwrap command: %w", err)
	}
	cmd := exec.CommandContext(ctx, i.module.bwrap.capabilities().BwrapPath, bwrapArgs...)
	// The bwrap process itself must not carry the daemon's
	// environment; the sandboxed one gets it through --setenv.
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
	return cmd, nil
}

func (i *execInstance) Close(context.Context) error { return nil }
