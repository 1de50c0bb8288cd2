// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Boot image header (version 0 layout, little-endian).
const (
	BootMagic = "ANDROID!"

	bootNameSize   = 16
	bootArgsSize   = 512
	bootHeaderSize = len(BootMagic) + 10*4 + bootNameSize + bootArgsSize + 8*4
)

// ErrNotBootImage is returned when the boot magic is missing.
var ErrNotBootImage = errors.New("input image is not a boot image")

// BootHeader holds the size-relevant fields of an Android boot image
// header.
type BootHeader struct {
	KernelSize  uint32
	KernelAddr  uint32
	RamdiskSize uint32
	RamdiskAddr uint32
	SecondSize  uint32
	SecondAddr  uint32
	TagsAddr    uint32
	PageSize    uint32

	// Unused1 carries the sprd DTB size when non-zero.
	Unused1 uint32
	Unused2 uint32

	Name    string
	Cmdline string
}

// ParseBootHeader decodes the boot header at offset.
func ParseBootHeader(data []byte, offset int) (*BootHeader, error) {
	if len(data) < offset+bootHeaderSize {
		return nil, fmt.Errorf("%w: header truncated", ErrNotBootImage)
	}
	raw := data[offset : offset+bootHeaderSize]
	if string(raw[:len(BootMagic)]) != BootMagic {
		return nil, ErrNotBootImage
	}

	words := raw[len(BootMagic):]
	word := func(index int) uint32 { return binary.LittleEndian.Uint32(words[index*4:]) }
	header := &BootHeader{
		KernelSize:  word(0),
		KernelAddr:  word(1),
		RamdiskSize: word(2),
		RamdiskAddr: word(3),
		SecondSize:  word(4),
		SecondAddr:  word(5),
		TagsAddr:    word(6),
		PageSize:    word(7),
		Unused1:     word(8),
		Unused2:     word(9),
	}
	strings := words[10*4:]
	header.Name = cString(strings[:bootNameSize])
	header.Cmdline = cString(strings[bootNameSize : bootNameSize+bootArgsSize])

	if header.PageSize == 0 {
		return nil, fmt.Errorf("%w: page size is zero", ErrNotBootImage)
	}
	return header, nil
}

// ImageSize is the length of the header page plus every page-aligned
// section the header declares.
func (h *BootHeader) ImageSize() int64 {
	page := int64(h.PageSize)
	blocks := func(n uint32) int64 {
		return (int64(n) + page - 1) / page * page
	}
	size := page + blocks(h.KernelSize) + blocks(h.RamdiskSize) + blocks(h.SecondSize)
	if h.Unused1 != 0 {
		size += blocks(h.Unused1)
	}
	return size
}

// RawImageOffset is where the boot header starts: past the DHTB
// region when one leads the file.
func RawImageOffset(data []byte) int {
	if HasDHTB(data) {
		return DHTBRegionSize
	}
	return 0
}

// DumpRawImage strips a leading DHTB region and any trailing data
// beyond the size the boot header declares. It returns the raw image
// and the offset it was found at. An image shorter than its declared
// size is returned whole.
func DumpRawImage(data []byte) ([]byte, int, error) {
	offset := RawImageOffset(data)
	header, err := ParseBootHeader(data, offset)
	if err != nil {
		return nil, offset, err
	}
	end := int64(offset) + header.ImageSize()
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return append([]byte(nil), data[offset:end]...), offset, nil
}

func cString(field []byte) string {
	if index := bytes.IndexByte(field, 0); index >= 0 {
		field = field[:index]
	}
	return string(field)
}
