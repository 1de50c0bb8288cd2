// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/bootsign/lib/codec"
	"github.com/bureau-foundation/bootsign/protocol"
)

// Scheme is the URL scheme of stored artifacts.
const Scheme = "artifact://"

const (
	blobDir = "blobs"
	tmpDir  = "tmp"
)

// ErrNotFound is returned for URLs whose blob is not in the store.
var ErrNotFound = errors.New("artifact not found")

// Metadata describes a stored blob.
type Metadata struct {
	Hash        string      `json:"hash"`
	Size        int64       `json:"size"`
	StoredSize  int64       `json:"storedSize"`
	Compression Compression `json:"compression"`
	Created     time.Time   `json:"created"`
}

// Store is a content-addressed artifact directory. It is safe for
// concurrent use: writes stage in tmp/ and rename into place, and
// identical content renames onto identical bytes.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens the store at root, creating its directories.
func New(root string, options ...Option) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, blobDir), filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	store := &Store{root: root, now: time.Now}
	for _, option := range options {
		option(store)
	}
	if store.logger == nil {
		store.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return store, nil
}

// FormatURL returns the URL for hash under name.
func FormatURL(hash Hash, name string) string {
	return Scheme + hash.String() + "/" + name
}

// ParseURL splits an artifact URL into its hash and name.
func ParseURL(url string) (Hash, string, error) {
	rest, ok := strings.CutPrefix(url, Scheme)
	if !ok {
		return Hash{}, "", fmt.Errorf("artifact URL %q: want scheme %s", url, Scheme)
	}
	hexHash, name, ok := strings.Cut(rest, "/")
	if !ok {
		return Hash{}, "", fmt.Errorf("artifact URL %q: missing name", url)
	}
	if err := checkName(name); err != nil {
		return Hash{}, "", fmt.Errorf("artifact URL %q: %w", url, err)
	}
	hash, err := ParseHash(hexHash)
	if err != nil {
		return Hash{}, "", fmt.Errorf("artifact URL %q: %w", url, err)
	}
	return hash, name, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || path.Base(name) != name || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	return nil
}

// Put stores data and returns its URL.
func (s *Store) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	hash := HashArtifact(data)
	url := FormatURL(hash, name)

	if _, err := s.Stat(hash); err == nil {
		s.logger.Debug("artifact already stored", "url", url)
		return url, nil
	}

	stored, compression, err := compressAuto(data)
	if err != nil {
		return "", fmt.Errorf("compressing %s: %w", name, err)
	}
	metadata := &Metadata{
		Hash:        hash.String(),
		Size:        int64(len(data)),
		StoredSize:  int64(len(stored)),
		Compression: compression,
		Created:     s.now().UTC(),
	}
	encoded, err := codec.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	blobPath := s.blobPath(hash)
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
		return "", fmt.Errorf("creating shard directory: %w", err)
	}
	// The blob lands before its sidecar; Stat keys on the sidecar.
	if err := s.writeAtomic(blobPath, stored); err != nil {
		return "", err
	}
	if err := s.writeAtomic(blobPath+".cbor", encoded); err != nil {
		return "", err
	}

	s.logger.Info("artifact stored",
		"url", url,
		"size", metadata.Size,
		"stored_size", metadata.StoredSize,
		"compression", compression.String(),
	)
	return url, nil
}

// Get returns the bytes behind url, verifying their hash.
func (s *Store) Get(_ context.Context, url string) ([]byte, error) {
	hash, _, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	metadata, err := s.Stat(hash)
	if err != nil {
		return nil, err
	}
	stored, err := os.ReadFile(s.blobPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", hash, err)
	}
	data, err := Decompress(stored, metadata.Compression, int(metadata.Size))
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, err)
	}
	if HashArtifact(data) != hash {
		return nil, fmt.Errorf("blob %s: content hash mismatch", hash)
	}
	return data, nil
}

// Fetch returns the artifact behind url with its name.
func (s *Store) Fetch(ctx context.Context, url string) (*protocol.Artifact, error) {
	_, name, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	data, err := s.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	return &protocol.Artifact{Name: name, Bytes: data}, nil
}

// Stat returns the metadata of a stored blob, or an error wrapping
// ErrNotFound.
func (s *Store) Stat(hash Hash) (*Metadata, error) {
	encoded, err := os.ReadFile(s.blobPath(hash) + ".cbor")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata for %s: %w", hash, err)
	}
	var metadata Metadata
	if err := codec.Unmarshal(encoded, &metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", hash, err)
	}
	return &metadata, nil
}

// blobPath shards by the first two bytes of the hex hash:
// blobs/a3/f9/a3f9b2...
func (s *Store) blobPath(hash Hash) string {
	text := hash.String()
	return filepath.Join(s.root, blobDir, text[:2], text[2:4], text)
}

func (s *Store) writeAtomic(finalPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming to %s: %w", finalPath, err)
	}
	success = true
	return nil
}
