// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// Key files the interpreted flow expects in its working directory.
const (
	// HashFooterKey signs the boot/recovery hash footer.
	HashFooterKey = "rsa4096_vbmeta.pem"

	// HashFooterAlgorithm matches HashFooterKey.
	HashFooterAlgorithm = "SHA256_RSA4096"

	// CustomPublicKey replaces the public key of the chained partition
	// being re-signed.
	CustomPublicKey = "rsa4096_custom_pub.bin"
)

// HashFooter is an add_hash_footer invocation.
type HashFooter struct {
	Image         string
	PartitionName string
	PartitionSize int64
	Key           string
	Algorithm     string
}

// NewHashFooter returns the footer for image in partition, signed with
// HashFooterKey.
func NewHashFooter(image, partition string, partitionSize int64) *HashFooter {
	return &HashFooter{
		Image:         image,
		PartitionName: partition,
		PartitionSize: partitionSize,
		Key:           HashFooterKey,
		Algorithm:     HashFooterAlgorithm,
	}
}

// Arguments returns the avbtool arguments, starting with the
// add_hash_footer subcommand.
func (f *HashFooter) Arguments() []string {
	return []string{
		"add_hash_footer",
		"--image", f.Image,
		"--partition_name", f.PartitionName,
		"--partition_size", strconv.FormatInt(f.PartitionSize, 10),
		"--key", f.Key,
		"--algorithm", f.Algorithm,
	}
}

// Signer performs the avbtool signing steps. Both operate on files in
// dir, the flow's host working directory, and write progress to log.
type Signer interface {
	// MakeVBMeta writes plan.Output.
	MakeVBMeta(ctx context.Context, dir string, plan *VBMetaPlan, log io.Writer) error

	// AddHashFooter rewrites footer.Image in place.
	AddHashFooter(ctx context.Context, dir string, footer *HashFooter, log io.Writer) error
}

// CommandRunner runs a command in dir with combined output to log.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command []string, log io.Writer) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes command[0] with the remaining arguments.
func (ExecRunner) Run(ctx context.Context, dir string, command []string, log io.Writer) error {
	if len(command) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Stdout = log
	cmd.Stderr = log
	return cmd.Run()
}

// CommandSigner runs avbtool through a Python interpreter.
type CommandSigner struct {
	// Python is the interpreter, e.g. "python3".
	Python string

	// Avbtool is the path to avbtool.py.
	Avbtool string

	// Runner defaults to ExecRunner.
	Runner CommandRunner
}

// MakeVBMeta runs make_vbmeta_image for plan.
func (s *CommandSigner) MakeVBMeta(ctx context.Context, dir string, plan *VBMetaPlan, log io.Writer) error {
	if err := s.run(ctx, dir, plan.Arguments(), log); err != nil {
		return fmt.Errorf("make_vbmeta_image: %w", err)
	}
	return nil
}

// AddHashFooter runs add_hash_footer for footer.
func (s *CommandSigner) AddHashFooter(ctx context.Context, dir string, footer *HashFooter, log io.Writer) error {
	if err := s.run(ctx, dir, footer.Arguments(), log); err != nil {
		return fmt.Errorf("add_hash_footer: %w", err)
	}
	return nil
}

// Version runs "avbtool version", confirming the interpreter and the
// tool are usable.
func (s *CommandSigner) Version(ctx context.Context, dir string, log io.Writer) error {
	return s.run(ctx, dir, []string{"version"}, log)
}

func (s *CommandSigner) run(ctx context.Context, dir string, args []string, log io.Writer) error {
	runner := s.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	command := append([]string{s.Python, s.Avbtool}, args...)
	return runner.Run(ctx, dir, command, log)
}
