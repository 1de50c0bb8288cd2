// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/bootsign/vfs"
)

// Builtin is a module implemented in Go that operates on the namespace
// directly.
type Builtin struct {
	ModuleName string

	// Main is the entry point.
	Main MainFunc

	// Setup, if set, runs once per instance before any entry point
	// call. An error fails instantiation.
	Setup func(ctx context.Context, ns *vfs.Namespace) error
}

// Name returns ModuleName.
func (b *Builtin) Name() string { return b.ModuleName }

// Instantiate runs Setup against ns.
func (b *Builtin) Instantiate(ctx context.Context, ns *vfs.Namespace) (Instance, error) {
	if b.Main == nil {
		return nil, fmt.Errorf("builtin %s has no entry point", b.ModuleName)
	}
	if b.Setup != nil {
		if err := b.Setup(ctx, ns); err != nil {
			return nil, err
		}
	}
	return &builtinInstance{main: b.Main}, nil
}

type builtinInstance struct {
	main MainFunc
}

func (i *builtinInstance) Main(ctx context.Context, invocation *Invocation) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return i.main(ctx, invocation)
}

func (i *builtinInstance) Close(context.Context) error { return nil }
