// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/bootsign/lib/sealed"
	"github.com/bureau-foundation/bootsign/stage"
)

// keyResources serves configured key files by resource name and
// defers everything else to fallback.
type keyResources struct {
	files    map[string]string
	identity *sealed.Identity
	fallback stage.Resources
}

func (k *keyResources) Resource(ctx context.Context, name string) ([]byte, error) {
	path, ok := k.files[name]
	if !ok {
		return k.fallback.Resource(ctx, name)
	}
	buffer, err := sealed.LoadKey(path, k.identity)
	if err != nil {
		return nil, fmt.Errorf("loading resource %s from %s: %w", name, path, err)
	}
	defer buffer.Close()
	return append([]byte(nil), buffer.Bytes()...), nil
}

// chainResources tries each provider in order, moving on only when a
// provider does not know the name.
type chainResources []stage.Resources

func (c chainResources) Resource(ctx context.Context, name string) ([]byte, error) {
	for _, resources := range c {
		data, err := resources.Resource(ctx, name)
		if errors.Is(err, stage.ErrUnknownResource) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("%w: %s", stage.ErrUnknownResource, name)
}
