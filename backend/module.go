// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/sandbox"
	"github.com/bureau-foundation/bootsign/vfs"
)

// ModuleName is the interpreted signing module.
const ModuleName = "avb-sign"

// RegisterModule registers avb-sign bound to handle. Instantiating the
// module waits for the handle, so a failed initialization surfaces as
// a sandbox.ModuleInitError.
func RegisterModule(registry *sandbox.Registry, handle *Handle) error {
	module := &signModule{handle: handle}
	return registry.Register(&sandbox.Builtin{
		ModuleName: ModuleName,
		Main:       module.main,
		Setup: func(ctx context.Context, _ *vfs.Namespace) error {
			_, err := handle.Await(ctx)
			return err
		},
	})
}

type signModule struct {
	handle *Handle
}

// main: avb-sign <vbmeta> <imageType> <platformVersion> <boot> <partitionSize> [output]
func (m *signModule) main(ctx context.Context, invocation *sandbox.Invocation) error {
	args := invocation.Args
	if len(args) < 5 || len(args) > 6 {
		fmt.Fprintln(invocation.Stderr, "usage: avb-sign <vbmeta> <imageType> <platformVersion> <boot> <partitionSize> [output]")
		return &sandbox.ExitStatus{Code: 2}
	}
	platformVersion, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("platform version %q: %w", args[2], err)
	}
	partitionSize, err := strconv.ParseInt(args[4], 10, 64)
	if err != nil {
		return fmt.Errorf("partition size %q: %w", args[4], err)
	}
	output := avb.SignedImagesArchive
	if len(args) == 6 {
		output = args[5]
	}

	environment, err := m.handle.Await(ctx)
	if err != nil {
		return err
	}

	ns := invocation.FS
	jobDir, err := jobDirectory(environment.Root, ns.WorkingDirectory())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(jobDir, 0o700); err != nil {
		return fmt.Errorf("creating job directory: %w", err)
	}
	// Job ids come from the caller, so each run stages into its own
	// directory below the job's.
	dir, err := os.MkdirTemp(jobDir, "run-")
	if err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	defer func() {
		os.RemoveAll(dir)
		os.Remove(jobDir) // fails while another run of the same id is active
	}()

	request := &avb.SignRequest{
		VBMeta:          path.Base(args[0]),
		Boot:            path.Base(args[3]),
		ImageType:       args[1],
		PlatformVersion: platformVersion,
		PartitionSize:   partitionSize,
		Output:          avb.SignedImagesArchive,
	}
	if err := request.Validate(); err != nil {
		return err
	}

	copies := map[string][]byte{}
	for name, data := range environment.Files {
		copies[name] = data
	}
	for _, input := range []struct{ guest, host string }{
		{args[0], request.VBMeta},
		{args[3], request.Boot},
	} {
		data, err := ns.ReadFile(input.guest)
		if err != nil {
			return err
		}
		copies[input.host] = data
	}
	for name, data := range copies {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return fmt.Errorf("staging %s: %w", name, err)
		}
	}

	if err := avb.SignImages(ctx, dir, request, environment.Signer, invocation.Stdout); err != nil {
		return err
	}
	archive, err := os.ReadFile(filepath.Join(dir, request.Output))
	if err != nil {
		return err
	}
	return ns.WriteFile(output, archive)
}

// jobDirectory maps the namespace working directory onto root. The
// result must stay below root.
func jobDirectory(root, workingDirectory string) (string, error) {
	relative := strings.TrimPrefix(path.Clean(workingDirectory), "/")
	if relative == "" {
		return "", fmt.Errorf("avb-sign needs a job working directory, got %q", workingDirectory)
	}
	return filepath.Join(root, filepath.FromSlash(relative)), nil
}
