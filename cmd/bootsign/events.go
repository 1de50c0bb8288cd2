// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bootsign/cmd/bootsign/cli"
	"github.com/bureau-foundation/bootsign/protocol"
)

func eventsCommand() *cli.Command {
	var (
		configPath string
		logPath    string
		jobID      string
		terminal   bool
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "events",
		Summary: "Read the daemon's event log",
		Description: `Print entries of the JSONL event log bootsignd writes when
daemon.event_log is configured. The log file is --log, or the
event_log of the configuration file.`,
		Usage: "bootsign events [--log path | --config file] [--job id] [--terminal]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("events", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "bootsign.yaml (default: $BOOTSIGN_CONFIG)")
			flagSet.StringVar(&logPath, "log", "", "event log file")
			flagSet.StringVar(&jobID, "job", "", "only events of this job")
			flagSet.BoolVar(&terminal, "terminal", false, "only success and error events")
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			if logPath == "" {
				cfg, err := loadConfig(configPath)
				if err != nil {
					return err
				}
				if cfg.Daemon.EventLog == "" {
					return fmt.Errorf("no event log configured; pass --log")
				}
				logPath = cfg.Daemon.EventLog
			}
			file, err := os.Open(logPath)
			if err != nil {
				return err
			}
			defer file.Close()
			entries, err := protocol.ReadEventLog(file)
			if err != nil {
				return err
			}

			selected := filterEvents(entries, jobID, terminal)
			if jsonOutput {
				return cli.WriteJSON(os.Stdout, selected)
			}
			for _, entry := range selected {
				fmt.Println(formatEntry(entry))
			}
			return nil
		},
	}
}

func filterEvents(entries []protocol.EventLogEntry, jobID string, terminal bool) []protocol.EventLogEntry {
	selected := []protocol.EventLogEntry{}
	for _, entry := range entries {
		if jobID != "" && entry.ID != jobID {
			continue
		}
		if terminal && !entry.Terminal() {
			continue
		}
		selected = append(selected, entry)
	}
	return selected
}

func formatEntry(entry protocol.EventLogEntry) string {
	prefix := fmt.Sprintf("%s %s %-7s", entry.Time, entry.ID, entry.Type)
	switch entry.Type {
	case protocol.EventTypeSuccess:
		return fmt.Sprintf("%s %s %s", prefix, entry.ArtifactName, entry.ArtifactURL)
	case protocol.EventTypeError:
		return fmt.Sprintf("%s stage %d: %s", prefix, entry.StageIndex(), entry.Reason)
	default:
		return fmt.Sprintf("%s %s", prefix, entry.Message)
	}
}
