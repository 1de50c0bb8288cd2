// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed keeps signing keys encrypted at rest with age.
//
// A sealed key file is an ASCII-armored age file ("-----BEGIN AGE
// ENCRYPTED FILE-----") encrypted to one or more x25519 recipients. The
// daemon holds the matching identity and opens each key once at
// startup into a [secret.Buffer]. Key files that are not sealed are
// accepted unchanged by [LoadKey], so development setups can point the
// configuration at a plain PEM file.
//
// Identities and decrypted plaintext never live on the Go heap longer
// than the parse call that needs them.
package sealed

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/bootsign/lib/secret"
)

// Identity is an age x25519 identity held in secret memory together
// with its public recipient string.
type Identity struct {
	// Secret holds the AGE-SECRET-KEY-1... line.
	Secret *secret.Buffer

	// Recipient is the age1... public key. Safe to publish.
	Recipient string
}

// Close releases the identity's secret memory.
func (i *Identity) Close() error {
	if i.Secret == nil {
		return nil
	}
	return i.Secret.Close()
}

// GenerateIdentity creates a new x25519 identity.
func GenerateIdentity() (*Identity, error) {
	generated, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	buffer, err := secret.FromBytes([]byte(generated.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting identity: %w", err)
	}
	return &Identity{Secret: buffer, Recipient: generated.Recipient().String()}, nil
}

// ReadIdentity reads an age identity file. Comment lines and blank
// lines are skipped; the first AGE-SECRET-KEY line is used.
func ReadIdentity(path string) (*Identity, error) {
	contents, err := secret.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	defer contents.Close()

	scanner := bufio.NewScanner(bytes.NewReader(contents.Bytes()))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		parsed, err := age.ParseX25519Identity(string(line))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid identity: %w", path, err)
		}
		buffer, err := secret.FromBytes(bytes.Clone(line))
		if err != nil {
			return nil, fmt.Errorf("protecting identity: %w", err)
		}
		return &Identity{Secret: buffer, Recipient: parsed.Recipient().String()}, nil
	}
	return nil, fmt.Errorf("%s: no AGE-SECRET-KEY line", path)
}

// Seal encrypts plaintext to the given age1... recipients and returns
// an armored age file.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var output bytes.Buffer
	armored := armor.NewWriter(&output)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Open decrypts an armored age file with identity.
func Open(ciphertext []byte, identity *Identity) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(string(identity.Secret.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}

	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	buffer, err := secret.FromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting plaintext: %w", err)
	}
	return buffer, nil
}

// IsSealed reports whether data is an armored age file.
func IsSealed(data []byte) bool {
	return strings.HasPrefix(string(bytes.TrimSpace(data[:min(len(data), 64)])), armor.Header)
}

// LoadKey reads a key file. Sealed files are opened with identity,
// which may be nil only when the file is not sealed.
func LoadKey(path string, identity *Identity) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	if !IsSealed(data) {
		buffer, err := secret.FromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return buffer, nil
	}
	if identity == nil {
		return nil, fmt.Errorf("%s is sealed but no identity is configured", path)
	}
	buffer, err := Open(data, identity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buffer, nil
}
