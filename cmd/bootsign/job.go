// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bootsign/cmd/bootsign/cli"
	"github.com/bureau-foundation/bootsign/lib/config"
	"github.com/bureau-foundation/bootsign/protocol"
)

// jobFlags are the flags shared by submit and sign.
type jobFlags struct {
	id              string
	backend         string
	boot            string
	vbmeta          string
	imageType       string
	platformVersion int
	partitionSize   int64
	output          string
}

func (f *jobFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.id, "id", "", "job id (default: a random UUID)")
	flagSet.StringVar(&f.backend, "backend", string(protocol.BackendNative), "signing backend: native or interpreted")
	flagSet.StringVar(&f.boot, "boot", "", "boot image to sign (required)")
	flagSet.StringVar(&f.vbmeta, "vbmeta", "", "vbmeta image to re-sign (interpreted)")
	flagSet.StringVar(&f.imageType, "image-type", "boot", "partition the boot image belongs to (interpreted)")
	flagSet.IntVar(&f.platformVersion, "platform-version", 11, "Android platform version: 8, 9, 10, 11 or 13 (interpreted)")
	flagSet.Int64Var(&f.partitionSize, "partition-size", 0, "partition size in bytes for the hash footer (interpreted)")
	flagSet.StringVarP(&f.output, "output", "o", "", "write the artifact here; a directory keeps the artifact name")
}

// submission reads the input files and builds the job envelope.
func (f *jobFlags) submission() (*protocol.Submission, error) {
	if f.boot == "" {
		return nil, fmt.Errorf("--boot is required")
	}
	id := f.id
	if id == "" {
		id = uuid.NewString()
	}
	submission := &protocol.Submission{
		ID: id,
		Parameters: protocol.Parameters{
			ImageType:       f.imageType,
			PartitionSize:   f.partitionSize,
			PlatformVersion: f.platformVersion,
			Backend:         protocol.Backend(f.backend),
		},
	}
	inputs := []struct{ name, path string }{
		{protocol.InputBoot, f.boot},
		{protocol.InputVBMeta, f.vbmeta},
	}
	for _, input := range inputs {
		if input.path == "" {
			continue
		}
		data, err := os.ReadFile(input.path)
		if err != nil {
			return nil, err
		}
		submission.InputFiles = append(submission.InputFiles, protocol.InputFile{Name: input.name, Bytes: data})
	}
	if err := submission.Validate(); err != nil {
		return nil, err
	}
	return submission, nil
}

// writeArtifact writes data to output, or into output when it names a
// directory. An empty output writes into the current directory.
func writeArtifact(output, name string, data []byte) (string, error) {
	target := output
	if target == "" {
		target = "."
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, name)
	} else if len(output) > 0 && os.IsPathSeparator(output[len(output)-1]) {
		if err := os.MkdirAll(output, 0o755); err != nil {
			return "", err
		}
		target = filepath.Join(output, name)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	return target, nil
}

// loadConfig reads path, or the file named by BOOTSIGN_CONFIG when
// path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}

// printEvent writes a log event's message line.
func printEvent(w io.Writer, event protocol.Event) {
	fmt.Fprintln(w, event.Message)
}

// reportFailure prints an error event and returns the exit status for
// it.
func reportFailure(w io.Writer, event protocol.Event) error {
	if event.StageIndex() < 0 {
		fmt.Fprintf(w, "job %s failed before any stage ran: %s\n", event.ID, event.Reason)
	} else {
		fmt.Fprintf(w, "job %s failed at stage %d: %s\n", event.ID, event.StageIndex(), event.Reason)
	}
	return &cli.ExitError{Code: 1}
}
