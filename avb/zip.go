// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// Archive names produced by the signing flows.
const (
	SignedImagesArchive = "SignedImages.zip"
	NativeArchive       = "boot-sign.zip"
)

// ZipEntry is one file to pack.
type ZipEntry struct {
	Name string
	Data []byte
}

// PackZip deflates entries into a zip archive, in order. Entries carry
// no modification time so equal inputs produce equal archives.
func PackZip(entries []ZipEntry) ([]byte, error) {
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for _, entry := range entries {
		file, err := writer.CreateHeader(&zip.FileHeader{
			Name:   entry.Name,
			Method: zip.Deflate,
		})
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", entry.Name, err)
		}
		if _, err := file.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", entry.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finishing archive: %w", err)
	}
	return buffer.Bytes(), nil
}

// UnpackZip returns the archive's entries in order.
func UnpackZip(data []byte) ([]ZipEntry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	entries := make([]ZipEntry, 0, len(reader.File))
	for _, file := range reader.File {
		handle, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(handle)
		handle.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file.Name, err)
		}
		entries = append(entries, ZipEntry{Name: file.Name, Data: content})
	}
	return entries, nil
}
