// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// SignRequest describes one interpreted signing run. File names are
// relative to the run's directory.
type SignRequest struct {
	VBMeta          string
	Boot            string
	ImageType       string
	PlatformVersion int
	PartitionSize   int64

	// Output is the archive written on success. Defaults to
	// SignedImagesArchive.
	Output string
}

// Validate checks the request's parameters.
func (r *SignRequest) Validate() error {
	var errs []error
	if r.VBMeta == "" || r.Boot == "" {
		errs = append(errs, errors.New("vbmeta and boot images are required"))
	}
	if r.ImageType == "" {
		errs = append(errs, errors.New("image type is required"))
	}
	if !ValidPlatformVersion(r.PlatformVersion) {
		errs = append(errs, fmt.Errorf("invalid platform version %d (want one of %v)", r.PlatformVersion, PlatformVersions))
	}
	if r.PartitionSize <= 0 {
		errs = append(errs, fmt.Errorf("partition size must be positive, got %d", r.PartitionSize))
	}
	return errors.Join(errs...)
}

// SignImages re-signs a boot image and its vbmeta with custom keys.
// dir must hold the two images, the vbmeta private key for the plan's
// key size, HashFooterKey, and optionally CustomPublicKey.
//
// The steps, in order: dump the raw boot image, plan make_vbmeta_image
// from the vbmeta and extract the chained public keys, install the
// custom public key for the image type's chain, sign the vbmeta, pad
// it for the platform version, add the boot hash footer, and pack both
// images into the output archive.
func SignImages(ctx context.Context, dir string, request *SignRequest, signer Signer, log io.Writer) error {
	if err := request.Validate(); err != nil {
		return err
	}
	output := request.Output
	if output == "" {
		output = SignedImagesArchive
	}
	file := func(name string) string { return filepath.Join(dir, name) }

	fmt.Fprintln(log, "Dumping...")
	boot, err := os.ReadFile(file(request.Boot))
	if err != nil {
		return fmt.Errorf("reading boot image: %w", err)
	}
	raw, offset, err := DumpRawImage(boot)
	if err != nil {
		return err
	}
	fmt.Fprintf(log, "Dump boot image at offset: %d, size: %d\n", offset, len(raw))
	if err := os.WriteFile(file(request.Boot), raw, 0o644); err != nil {
		return fmt.Errorf("writing raw boot image: %w", err)
	}

	vbmeta, err := os.ReadFile(file(request.VBMeta))
	if err != nil {
		return fmt.Errorf("reading vbmeta image: %w", err)
	}
	plan, err := PlanVBMeta(vbmeta)
	if err != nil {
		return err
	}
	for _, chain := range plan.Chains {
		fmt.Fprintf(log, "extract %s\n", chain.KeyFile)
		if err := os.WriteFile(file(chain.KeyFile), chain.PublicKey, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", chain.KeyFile, err)
		}
	}
	fmt.Fprintf(log, "padding_size: %d\n", plan.PaddingSize)

	if err := installCustomKey(dir, PublicKeyFile(plan.Algorithm, request.ImageType), log); err != nil {
		return err
	}

	fmt.Fprintln(log, "Signing...")
	if err := signer.MakeVBMeta(ctx, dir, plan, log); err != nil {
		return err
	}

	fmt.Fprintln(log, "Padding...")
	signed, err := os.ReadFile(file(plan.Output))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("vbmeta signing produced no %s", plan.Output)
	}
	if err != nil {
		return err
	}
	padded, err := PadVBMeta(signed, request.PlatformVersion, plan.PaddingSize)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file(plan.Output), padded, 0o644); err != nil {
		return fmt.Errorf("writing padded vbmeta: %w", err)
	}
	fmt.Fprintln(log, "Vbmeta Signed!")

	fmt.Fprintf(log, "Sign %s image...\n", request.ImageType)
	footer := NewHashFooter(request.Boot, request.ImageType, request.PartitionSize)
	if err := signer.AddHashFooter(ctx, dir, footer, log); err != nil {
		return err
	}

	signedBoot, err := os.ReadFile(file(request.Boot))
	if err != nil {
		return fmt.Errorf("reading signed boot image: %w", err)
	}
	archive, err := PackZip([]ZipEntry{
		{Name: filepath.Base(request.Boot), Data: signedBoot},
		{Name: plan.Output, Data: padded},
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(file(output), archive, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(log, "Packed into %s\n", output)
	return nil
}

// installCustomKey replaces target with CustomPublicKey when the
// latter is present.
func installCustomKey(dir, target string, log io.Writer) error {
	custom, err := os.ReadFile(filepath.Join(dir, CustomPublicKey))
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(log, "%s not found, keeping %s\n", CustomPublicKey, target)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading custom public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, target), custom, 0o644); err != nil {
		return fmt.Errorf("installing custom public key: %w", err)
	}
	return nil
}
