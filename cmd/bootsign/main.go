// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// bootsign is the command-line client of the signing daemon. It
// submits jobs, fetches artifacts, runs jobs in-process, inspects
// images and manages sealed key files.
package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/bootsign/cmd/bootsign/cli"
	"github.com/bureau-foundation/bootsign/lib/process"
	"github.com/bureau-foundation/bootsign/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run(args []string) error {
	return root().Execute(args)
}

func root() *cli.Command {
	return &cli.Command{
		Name:        "bootsign",
		Description: "Sign Android boot and vbmeta images with the native sprd chain or avbtool.",
		Subcommands: []*cli.Command{
			submitCommand(),
			fetchCommand(),
			statusCommand(),
			signCommand(),
			inspectCommand(),
			eventsCommand(),
			keyCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Sign a boot image with the native chain through the daemon",
				Command:     "bootsign submit --boot boot.img --output out/",
			},
			{
				Description: "Re-sign vbmeta for Android 13 without a daemon",
				Command:     "bootsign sign --config bootsign.yaml --backend interpreted --boot boot.img --vbmeta vbmeta.img --image-type boot --platform-version 13 --partition-size 67108864",
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Printf("bootsign %s\n", version.Full())
			return nil
		},
	}
}
