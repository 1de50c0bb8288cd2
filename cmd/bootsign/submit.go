// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bootsign/cmd/bootsign/cli"
	"github.com/bureau-foundation/bootsign/lib/config"
	"github.com/bureau-foundation/bootsign/protocol"
)

func submitCommand() *cli.Command {
	var (
		job        jobFlags
		socketPath string
		quiet      bool
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "submit",
		Summary: "Submit a signing job to bootsignd",
		Description: `Submit a signing job to bootsignd and stream its log.

The job's log lines go to stderr. On success the artifact URL is
printed to stdout and, with --output, the artifact is downloaded.
A job that ends in an error event exits with status 1.`,
		Usage: "bootsign submit --boot <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("submit", pflag.ContinueOnError)
			job.register(flagSet)
			flagSet.StringVar(&socketPath, "socket", config.Default().Daemon.SocketPath, "bootsignd socket")
			flagSet.BoolVarP(&quiet, "quiet", "q", false, "do not print job log lines")
			flagSet.BoolVar(&jsonOutput, "json", false, "print the terminal event as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			submission, err := job.submission()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := protocol.NewClient(socketPath)
			final, err := client.Submit(ctx, submission, func(event protocol.Event) {
				if !quiet {
					printEvent(os.Stderr, event)
				}
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := cli.WriteJSON(os.Stdout, final); err != nil {
					return err
				}
			}
			if final.Type == protocol.EventTypeError {
				return reportFailure(os.Stderr, final)
			}
			if !jsonOutput {
				fmt.Println(final.ArtifactURL)
			}
			if job.output == "" {
				return nil
			}
			artifact, err := client.Fetch(ctx, final.ArtifactURL)
			if err != nil {
				return err
			}
			path, err := writeArtifact(job.output, artifact.Name, artifact.Bytes)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(artifact.Bytes))
			return nil
		},
	}
}

func fetchCommand() *cli.Command {
	var (
		socketPath string
		output     string
	)
	return &cli.Command{
		Name:    "fetch",
		Summary: "Download an artifact by URL",
		Usage:   "bootsign fetch <artifact-url> [--output path]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", config.Default().Daemon.SocketPath, "bootsignd socket")
			flagSet.StringVarP(&output, "output", "o", "", "write the artifact here; a directory keeps the artifact name")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one artifact URL")
			}
			artifact, err := protocol.NewClient(socketPath).Fetch(context.Background(), args[0])
			if err != nil {
				return err
			}
			path, err := writeArtifact(output, artifact.Name, artifact.Bytes)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	var (
		socketPath string
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Show bootsignd pool counters",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", config.Default().Daemon.SocketPath, "bootsignd socket")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			status, err := protocol.NewClient(socketPath).Status(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput {
				return cli.WriteJSON(os.Stdout, status)
			}
			fmt.Printf("workers:   %d\nqueued:    %d\nrunning:   %d\ncompleted: %d\nfailed:    %d\n",
				status.Workers, status.Queued, status.Running, status.Completed, status.Failed)
			return nil
		},
	}
}
