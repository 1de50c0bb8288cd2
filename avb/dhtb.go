// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// DHTB header layout. The header occupies a 512-byte region; only the
// first dhtbFieldsLength bytes carry fields.
const (
	DHTBRegionSize = 512

	dhtbMagic        = "DHTB"
	dhtbMagicLE      = 0x42544844
	dhtbVersion      = 1
	dhtbDigestOffset = 8
	dhtbReserved     = 40
	dhtbSizeOffset   = 0x30
	dhtbFieldsLength = 52
)

// ErrNoDHTB is returned when no DHTB header is present where one is
// expected.
var ErrNoDHTB = errors.New("no DHTB header")

// DHTB is a decoded DHTB header.
type DHTB struct {
	Version  uint32
	Digest   [sha256.Size]byte
	Reserved [8]byte
	Size     uint32
}

// encode returns the dhtbFieldsLength header bytes.
func (h *DHTB) encode() []byte {
	out := make([]byte, dhtbFieldsLength)
	copy(out, dhtbMagic)
	binary.LittleEndian.PutUint32(out[4:], h.Version)
	copy(out[dhtbDigestOffset:], h.Digest[:])
	copy(out[dhtbReserved:], h.Reserved[:])
	binary.LittleEndian.PutUint32(out[dhtbSizeOffset:], h.Size)
	return out
}

// hasDHTBAt reports whether data carries the DHTB magic at offset.
func hasDHTBAt(data []byte, offset int) bool {
	return len(data) >= offset+4 && binary.LittleEndian.Uint32(data[offset:]) == dhtbMagicLE
}

// HasDHTB reports whether data starts with a DHTB header.
func HasDHTB(data []byte) bool { return hasDHTBAt(data, 0) }

// ParseDHTB decodes the DHTB header at offset.
func ParseDHTB(data []byte, offset int) (*DHTB, error) {
	if !hasDHTBAt(data, offset) {
		return nil, ErrNoDHTB
	}
	if len(data) < offset+dhtbFieldsLength {
		return nil, fmt.Errorf("DHTB header at %#x truncated", offset)
	}
	fields := data[offset:]
	header := &DHTB{
		Version: binary.LittleEndian.Uint32(fields[4:]),
		Size:    binary.LittleEndian.Uint32(fields[dhtbSizeOffset:]),
	}
	copy(header.Digest[:], fields[dhtbDigestOffset:])
	copy(header.Reserved[:], fields[dhtbReserved:])
	return header, nil
}

// InsertHeader prepends a DHTB header region covering payload. The
// size field records the payload length.
func InsertHeader(payload []byte) []byte {
	header := &DHTB{
		Version: dhtbVersion,
		Digest:  sha256.Sum256(payload),
		Size:    uint32(len(payload)),
	}
	out := make([]byte, DHTBRegionSize+len(payload))
	copy(out, header.encode())
	copy(out[DHTBRegionSize:], payload)
	return out
}

// VerifyHeader checks that a leading DHTB header's digest matches the
// payload that follows its region.
func VerifyHeader(data []byte) error {
	header, err := ParseDHTB(data, 0)
	if err != nil {
		return err
	}
	end := DHTBRegionSize + int(header.Size)
	if end > len(data) {
		return fmt.Errorf("DHTB size %d exceeds image length %d", header.Size, len(data)-DHTBRegionSize)
	}
	digest := sha256.Sum256(data[DHTBRegionSize:end])
	if !bytes.Equal(digest[:], header.Digest[:]) {
		return fmt.Errorf("DHTB digest mismatch")
	}
	return nil
}
