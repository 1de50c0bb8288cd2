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
	"github.com/bureau-foundation/bootsign/pipeline"
	"github.com/bureau-foundation/bootsign/protocol"
	"github.com/bureau-foundation/bootsign/service"
)

func signCommand() *cli.Command {
	var (
		job        jobFlags
		configPath string
		topology   string
	)
	return &cli.Command{
		Name:    "sign",
		Summary: "Run one signing job in-process",
		Description: `Run one signing job in-process, without bootsignd.

Keys, modules and the artifact store come from the configuration file
(--config, or BOOTSIGN_CONFIG). The artifact is also kept in the
configured artifact store.`,
		Usage: "bootsign sign --boot <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sign", pflag.ContinueOnError)
			job.register(flagSet)
			flagSet.StringVar(&configPath, "config", "", "bootsign.yaml (default: $BOOTSIGN_CONFIG)")
			flagSet.StringVar(&topology, "topology", "", "JSONC topology file replacing the backend's built-in one")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			level, err := cfg.SlogLevel()
			if err != nil {
				return err
			}
			submission, err := job.submission()
			if err != nil {
				return err
			}

			options := []service.Option{service.WithLogger(cli.NewCommandLogger(level).With("command", "sign"))}
			if topology != "" {
				custom, err := pipeline.ReadTopology(topology)
				if err != nil {
					return err
				}
				options = append(options, service.WithTopology(custom))
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			signing, err := service.New(cfg, options...)
			if err != nil {
				return err
			}
			defer signing.Close(context.Background())

			var final protocol.Event
			outcome, err := signing.Sign(ctx, submission, protocol.SinkFunc(func(event protocol.Event) {
				if event.Terminal() {
					final = event
					return
				}
				printEvent(os.Stderr, event)
			}))
			if err != nil {
				return err
			}
			success, ok := outcome.(*pipeline.Success)
			if !ok {
				return reportFailure(os.Stderr, final)
			}
			path, err := writeArtifact(job.output, success.ArtifactName, success.ArtifactBytes)
			if err != nil {
				return err
			}
			fmt.Println(success.ArtifactURL)
			fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(success.ArtifactBytes))
			return nil
		},
	}
}
