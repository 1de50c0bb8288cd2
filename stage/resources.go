// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/bootsign/lib/sealed"
)

// ErrUnknownResource is returned for a resource name no provider
// holds.
var ErrUnknownResource = errors.New("unknown resource")

// Resources supplies the content of resource mounts.
type Resources interface {
	Resource(ctx context.Context, name string) ([]byte, error)
}

// MapResources serves resources from memory.
type MapResources map[string][]byte

// Resource returns a copy of the named entry.
func (m MapResources) Resource(_ context.Context, name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return append([]byte(nil), data...), nil
}

// DirResources serves resources from files in Dir. Files that are
// age-sealed are opened with Identity.
type DirResources struct {
	Dir      string
	Identity *sealed.Identity
}

// Resource reads Dir/name. Names must not leave Dir.
func (d *DirResources) Resource(_ context.Context, name string) ([]byte, error) {
	if name == "" || strings.Contains(name, "/") || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: invalid name %q", ErrUnknownResource, name)
	}
	buffer, err := sealed.LoadKey(filepath.Join(d.Dir, name), d.Identity)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading resource %s: %w", name, err)
	}
	defer buffer.Close()
	return append([]byte(nil), buffer.Bytes()...), nil
}
