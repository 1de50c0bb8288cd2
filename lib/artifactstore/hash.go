// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest identifying an artifact.
type Hash [32]byte

// artifactDomainKey keys the artifact hash so it never collides with a
// plain BLAKE3 digest of the same bytes.
var artifactDomainKey = [32]byte{
	'b', 'o', 'o', 't', 's', 'i', 'g', 'n', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashArtifact returns the artifact hash of data.
func HashArtifact(data []byte) Hash {
	hasher, err := blake3.NewKeyed(artifactDomainKey[:])
	if err != nil {
		panic("artifactstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 64-character hex hash.
func ParseHash(text string) (Hash, error) {
	var hash Hash
	if len(text) != hex.EncodedLen(len(hash)) {
		return Hash{}, fmt.Errorf("hash %q: want %d hex characters", text, hex.EncodedLen(len(hash)))
	}
	if _, err := hex.Decode(hash[:], []byte(text)); err != nil {
		return Hash{}, fmt.Errorf("hash %q: %w", text, err)
	}
	return hash, nil
}
