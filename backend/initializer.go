// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/lib/config"
	"github.com/bureau-foundation/bootsign/lib/sealed"
)

// ConfigInitializer prepares the backend from configuration: the
// vbmeta key (opened with the identity file when sealed) is installed
// under its key-size name and as the hash footer key, the custom public
// key is added when configured, and avbtool is checked with "version".
//
// The signer argument overrides the avbtool command signer; tests pass
// a fake.
func ConfigInitializer(cfg *config.Config, signer avb.Signer) Initializer {
	return func(ctx context.Context) (*Environment, error) {
		root := cfg.Paths.State
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}

		var identity *sealed.Identity
		if cfg.Signing.IdentityFile != "" {
			var err error
			identity, err = sealed.ReadIdentity(cfg.Signing.IdentityFile)
			if err != nil {
				return nil, fmt.Errorf("reading identity: %w", err)
			}
			defer identity.Close()
		}

		if cfg.Signing.VBMetaKey == "" {
			return nil, fmt.Errorf("signing.vbmeta_key is not configured")
		}
		vbmetaKey, err := loadKey(cfg.Signing.VBMetaKey, identity)
		if err != nil {
			return nil, fmt.Errorf("vbmeta key: %w", err)
		}
		parsed, err := avb.ParseRSAPrivateKey(vbmetaKey)
		if err != nil {
			return nil, fmt.Errorf("vbmeta key %s: %w", cfg.Signing.VBMetaKey, err)
		}
		files := map[string][]byte{
			fmt.Sprintf("rsa%d_vbmeta.pem", parsed.N.BitLen()): vbmetaKey,
			avb.HashFooterKey: vbmetaKey,
		}

		if cfg.Signing.CustomPublicKey != "" {
			custom, err := os.ReadFile(cfg.Signing.CustomPublicKey)
			if err != nil {
				return nil, fmt.Errorf("custom public key: %w", err)
			}
			files[avb.CustomPublicKey] = custom
		}

		if signer == nil {
			commandSigner := &avb.CommandSigner{Python: cfg.Signing.Python, Avbtool: cfg.Signing.Avbtool}
			var output bytes.Buffer
			if err := commandSigner.Version(ctx, root, &output); err != nil {
				return nil, fmt.Errorf("probing avbtool (%s %s): %w: %s",
					cfg.Signing.Python, cfg.Signing.Avbtool, err, bytes.TrimSpace(output.Bytes()))
			}
			signer = commandSigner
		}

		return &Environment{Root: filepath.Clean(root), Signer: signer, Files: files}, nil
	}
}

func loadKey(path string, identity *sealed.Identity) ([]byte, error) {
	buffer, err := sealed.LoadKey(path, identity)
	if err != nil {
		return nil, err
	}
	defer buffer.Close()
	return append([]byte(nil), buffer.Bytes()...), nil
}
