// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"crypto/sha256"
	"fmt"
	"slices"
)

// paddedVBMetaSize is the length of a vbmeta padded for platform
// versions 9 and later.
const paddedVBMetaSize = 1 << 20

// PlatformVersions are the Android versions vbmeta padding supports.
var PlatformVersions = []int{8, 9, 10, 11, 13}

// PaddingSizes are the make_vbmeta_image padding sizes accepted.
var PaddingSizes = []uint32{12288, 16384, 20480}

// ValidPlatformVersion reports whether version is in PlatformVersions.
func ValidPlatformVersion(version int) bool {
	return slices.Contains(PlatformVersions, version)
}

// padLayout is the per-version arrangement of a padded vbmeta.
type padLayout struct {
	// leading puts the DHTB region before the data; otherwise it sits
	// at the end of the first MiB and the result is exactly one MiB.
	leading  bool
	size     uint32
	reserved [8]byte
	patches  map[int][]byte
}

var padLayouts = map[int]padLayout{
	8:  {leading: true, size: 0x3000},
	9:  {size: 0x4000},
	10: {size: 0x5000},
	11: {size: 0x5000, patches: map[int][]byte{0xFFE3D: {0x50}}},
	13: {
		size:     0x5000,
		reserved: [8]byte{0xCC, 0xCC, 0xCC, 0xCC, 0xAA, 0xAA, 0xAA, 0xAA},
		patches:  map[int][]byte{0xFFE4D: {0x50}, 0xFFE50: {0x60, 0x52}},
	},
}

// PadVBMeta wraps a freshly signed vbmeta in the DHTB layout the sprd
// bootloader for platformVersion expects. paddingSize is the value the
// image was built with and must be one of PaddingSizes; the header's
// size field is fixed per version.
func PadVBMeta(vbmeta []byte, platformVersion int, paddingSize uint32) ([]byte, error) {
	layout, ok := padLayouts[platformVersion]
	if !ok {
		return nil, fmt.Errorf("invalid platform version %d (want one of %v)", platformVersion, PlatformVersions)
	}
	if !slices.Contains(PaddingSizes, paddingSize) {
		return nil, fmt.Errorf("invalid padding size %d (want one of %v)", paddingSize, PaddingSizes)
	}

	header := (&DHTB{
		Version:  dhtbVersion,
		Digest:   sha256.Sum256(vbmeta),
		Reserved: layout.reserved,
		Size:     layout.size,
	}).encode()

	if layout.leading {
		out := make([]byte, DHTBRegionSize+len(vbmeta))
		copy(out, header)
		copy(out[DHTBRegionSize:], vbmeta)
		return out, nil
	}

	out := make([]byte, paddedVBMetaSize)
	copy(out, vbmeta)
	copy(out[trailingDHTBOffset:], header)
	for offset, patch := range layout.patches {
		copy(out[offset:], patch)
	}
	return out, nil
}
