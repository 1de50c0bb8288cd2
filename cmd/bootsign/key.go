// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bootsign/cmd/bootsign/cli"
	"github.com/bureau-foundation/bootsign/lib/sealed"
)

func keyCommand() *cli.Command {
	return &cli.Command{
		Name:    "key",
		Summary: "Manage the age identity and sealed signing keys",
		Description: `Signing keys (the sprd key and the vbmeta key) may be stored
sealed to an age identity. bootsignd opens them with the identity
named by signing.identity_file.`,
		Subcommands: []*cli.Command{
			keyGenerateCommand(),
			keyRecipientCommand(),
			keySealCommand(),
		},
	}
}

func keyGenerateCommand() *cli.Command {
	var output string
	return &cli.Command{
		Name:    "generate",
		Summary: "Create an age identity",
		Description: `Create an age identity file and print its recipient. The file
is created with mode 0600 and is never overwritten.`,
		Usage: "bootsign key generate --output <identity-file>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("generate", pflag.ContinueOnError)
			flagSet.StringVarP(&output, "output", "o", "", "identity file to create (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			identity, err := sealed.GenerateIdentity()
			if err != nil {
				return err
			}
			defer identity.Close()

			file, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintf(file, "# recipient: %s\n%s\n", identity.Recipient, identity.Secret.Bytes())
			if err := file.Close(); writeErr == nil {
				writeErr = err
			}
			if writeErr != nil {
				return fmt.Errorf("writing %s: %w", output, writeErr)
			}
			fmt.Println(identity.Recipient)
			return nil
		},
	}
}

func keyRecipientCommand() *cli.Command {
	return &cli.Command{
		Name:    "recipient",
		Summary: "Print the recipient of an identity file",
		Usage:   "bootsign key recipient <identity-file>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected one identity file")
			}
			identity, err := sealed.ReadIdentity(args[0])
			if err != nil {
				return err
			}
			defer identity.Close()
			fmt.Println(identity.Recipient)
			return nil
		},
	}
}

func keySealCommand() *cli.Command {
	var recipients []string
	return &cli.Command{
		Name:    "seal",
		Summary: "Seal a key file to age recipients",
		Usage:   "bootsign key seal --recipient age1... <key.pem> <key.pem.age>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("seal", pflag.ContinueOnError)
			flagSet.StringArrayVarP(&recipients, "recipient", "r", nil, "age recipient (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected an input and an output file")
			}
			plaintext, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if sealed.IsSealed(plaintext) {
				return fmt.Errorf("%s is already sealed", args[0])
			}
			ciphertext, err := sealed.Seal(plaintext, recipients)
			clear(plaintext)
			if err != nil {
				return err
			}
			return os.WriteFile(args[1], ciphertext, 0o600)
		},
	}
}
