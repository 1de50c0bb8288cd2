// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("DHTB\x00\x00\x00\x00boot image payload "), 4096)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			compressed, err := Compress(data, c)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if c != CompressionNone && len(compressed) >= len(data) {
				t.Errorf("compressed %d bytes to %d", len(data), len(compressed))
			}
			got, err := Decompress(compressed, c, len(data))
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Error("round trip changed the data")
			}
			if _, err := Decompress(compressed, c, len(data)+1); err == nil {
				t.Error("size mismatch accepted")
			}
		})
	}
}

func TestIncompressible(t *testing.T) {
	random := make([]byte, 4096)
	rand.Read(random)
	for _, c := range []Compression{CompressionLZ4, CompressionZstd} {
		if _, err := Compress(random, c); !IsIncompressible(err) {
			t.Errorf("%s: error = %v, want incompressible", c, err)
		}
	}
	if SelectCompression(random) != CompressionNone {
		t.Error("random data selected for compression")
	}
	if SelectCompression(nil) != CompressionNone {
		t.Error("empty data selected for compression")
	}
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompression(c.String())
		if err != nil || parsed != c {
			t.Errorf("ParseCompression(%q) = %v, %v", c.String(), parsed, err)
		}
	}
	if _, err := ParseCompression("bg4_lz4"); err == nil {
		t.Error("unknown compression accepted")
	}
	if got := Compression(9).String(); got != "unknown(9)" {
		t.Errorf("String = %q", got)
	}
}
