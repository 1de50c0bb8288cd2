// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/bureau-foundation/bootsign/sandbox"
)

// Builtin module names.
const (
	GetRawImageModule     = "get-raw-image"
	ImgHeaderInsertModule = "imgheaderinsert"
	SprdSignModule        = "sprd-sign"
)

// RegisterModules registers the native chain's builtin modules.
func RegisterModules(registry *sandbox.Registry) error {
	return errors.Join(
		registry.RegisterFunc(GetRawImageModule, getRawImageMain),
		registry.RegisterFunc(ImgHeaderInsertModule, imgHeaderInsertMain),
		registry.RegisterFunc(SprdSignModule, sprdSignMain),
	)
}

// getRawImageMain: get-raw-image <image> [output]
func getRawImageMain(_ context.Context, invocation *sandbox.Invocation) error {
	args := invocation.Args
	if len(args) < 1 || len(args) > 2 {
		return usage(invocation, "get-raw-image <image> [output]")
	}
	data, err := invocation.FS.ReadFile(args[0])
	if err != nil {
		return err
	}
	raw, offset, err := DumpRawImage(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(invocation.Stdout, "Dump boot image at offset: %d, size: %d\n", offset, len(raw))
	return invocation.FS.WriteFile(outputPath(args, 1, args[0]), raw)
}

// imgHeaderInsertMain: imgheaderinsert <input> <mode> [output]
//
// Mode 0 prepends a DHTB header. The default output is <stem>-sign.img
// in the working directory.
func imgHeaderInsertMain(_ context.Context, invocation *sandbox.Invocation) error {
	args := invocation.Args
	if len(args) < 2 || len(args) > 3 {
		return usage(invocation, "imgheaderinsert <input> <mode> [output]")
	}
	if args[1] != "0" {
		return fmt.Errorf("unsupported header mode %q", args[1])
	}
	data, err := invocation.FS.ReadFile(args[0])
	if err != nil {
		return err
	}
	base := path.Base(args[0])
	output := outputPath(args, 2, strings.TrimSuffix(base, path.Ext(base))+"-sign.img")
	fmt.Fprintf(invocation.Stdout, "Insert DHTB header into %s, payload size: %d\n", output, len(data))
	return invocation.FS.WriteFile(output, InsertHeader(data))
}

// sprdSignMain: sprd-sign <image> <resourceDir> [output]
func sprdSignMain(_ context.Context, invocation *sandbox.Invocation) error {
	args := invocation.Args
	if len(args) < 2 || len(args) > 3 {
		return usage(invocation, "sprd-sign <image> <resourceDir> [output]")
	}
	image, err := invocation.FS.ReadFile(args[0])
	if err != nil {
		return err
	}
	key, err := invocation.FS.ReadFile(path.Join(args[1], SprdKeyName))
	if err != nil {
		return fmt.Errorf("reading signing key: %w", err)
	}
	signed, err := SprdSign(image, key)
	if err != nil {
		return err
	}
	output := outputPath(args, 2, args[0])
	fmt.Fprintf(invocation.Stdout, "Signed %s, %d bytes\n", output, len(signed))
	return invocation.FS.WriteFile(output, signed)
}

func outputPath(args []string, index int, fallback string) string {
	if len(args) > index {
		return args[index]
	}
	return fallback
}

func usage(invocation *sandbox.Invocation, text string) error {
	fmt.Fprintf(invocation.Stderr, "usage: %s\n", text)
	return &sandbox.ExitStatus{Code: 2}
}
