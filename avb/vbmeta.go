// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/cryptobyte"
)

// vbmeta layout constants. All vbmeta integers are big-endian.
const (
	VBMetaMagic = "AVB0"

	vbmetaHeaderSize       = 256
	vbmetaReleaseSize      = 48
	vbmetaReservedSize     = 80
	chainDescriptorSize    = 92
	chainPartitionTag      = 4
	chainDescriptorReserve = 60

	// DefaultPaddingSize applies when the vbmeta carries no DHTB
	// header to read the padding from.
	DefaultPaddingSize = 0x1000

	// trailingDHTBOffset is where padded vbmeta images keep their DHTB
	// header: the last 512 bytes of the first MiB.
	trailingDHTBOffset = paddedVBMetaSize - DHTBRegionSize

	// VBMetaOutput is the file make_vbmeta_image writes.
	VBMetaOutput = "vbmeta-sign-custom.img"

	// vbmetaKeyPattern names the private key make_vbmeta_image signs
	// with, by key size.
	vbmetaKeyPattern = "rsa%d_vbmeta.pem"
)

// ErrNotVBMeta is returned when the vbmeta magic is missing.
var ErrNotVBMeta = errors.New("input image is not a vbmeta image")

// VBMetaHeader is the fixed 256-byte vbmeta image header.
type VBMetaHeader struct {
	RequiredMajor uint32
	RequiredMinor uint32

	AuthenticationBlockSize uint64
	AuxiliaryBlockSize      uint64

	AlgorithmType uint32

	HashOffset              uint64
	HashSize                uint64
	SignatureOffset         uint64
	SignatureSize           uint64
	PublicKeyOffset         uint64
	PublicKeySize           uint64
	PublicKeyMetadataOffset uint64
	PublicKeyMetadataSize   uint64
	DescriptorsOffset       uint64
	DescriptorsSize         uint64
	RollbackIndex           uint64

	Flags                 uint32
	RollbackIndexLocation uint32

	ReleaseString string
}

// ChainPartition is one chain partition descriptor with its embedded
// public key.
type ChainPartition struct {
	Tag                   uint64
	RollbackIndexLocation uint32
	Flags                 uint32
	Name                  string
	PublicKey             []byte
}

// Algorithm is an AVB signing algorithm.
type Algorithm struct {
	Type    uint32
	Hash    int // SHA digest bits
	RSABits int

	// Name is the avbtool --algorithm value, e.g. SHA256_RSA4096.
	Name string

	// KeyLabel prefixes key file names, e.g. rsa4096.
	KeyLabel string
}

// algorithms maps vbmeta algorithm types to avbtool names.
var algorithms = map[uint32]Algorithm{
	1: {Type: 1, Hash: 256, RSABits: 2048},
	2: {Type: 2, Hash: 256, RSABits: 4096},
	3: {Type: 3, Hash: 256, RSABits: 8192},
	4: {Type: 4, Hash: 512, RSABits: 2048},
	5: {Type: 5, Hash: 512, RSABits: 4096},
	6: {Type: 6, Hash: 512, RSABits: 8192},
}

// LookupAlgorithm returns the algorithm for a vbmeta algorithm type.
// Type 0 (unsigned) has no signing algorithm.
func LookupAlgorithm(algorithmType uint32) (Algorithm, error) {
	algorithm, ok := algorithms[algorithmType]
	if !ok {
		return Algorithm{}, fmt.Errorf("unsupported vbmeta algorithm type %d", algorithmType)
	}
	algorithm.Name = fmt.Sprintf("SHA%d_RSA%d", algorithm.Hash, algorithm.RSABits)
	algorithm.KeyLabel = fmt.Sprintf("rsa%d", algorithm.RSABits)
	return algorithm, nil
}

// VBMetaImage is a parsed vbmeta image.
type VBMetaImage struct {
	// Offset is where the header starts (past a leading DHTB region).
	Offset int
	Header VBMetaHeader
	Chains []ChainPartition

	// PaddingSize comes from a DHTB header at the start of the file or
	// at the end of its first MiB. PaddingFound is false when neither
	// exists and DefaultPaddingSize applies.
	PaddingSize  uint32
	PaddingFound bool
}

// ParseVBMeta decodes a vbmeta image and its chain partition
// descriptors.
//
// Chain descriptors are read contiguously from the start of the
// auxiliary block, which must open with a chain partition descriptor.
// Reading stops at the first descriptor whose tag differs, or at the
// end of the data.
func ParseVBMeta(data []byte) (*VBMetaImage, error) {
	image := &VBMetaImage{Offset: RawImageOffset(data)}
	if len(data) < image.Offset+vbmetaHeaderSize {
		return nil, fmt.Errorf("%w: header truncated", ErrNotVBMeta)
	}

	header, err := parseVBMetaHeader(data[image.Offset : image.Offset+vbmetaHeaderSize])
	if err != nil {
		return nil, err
	}
	image.Header = *header

	if header.AuthenticationBlockSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: authentication block size %d exceeds image", ErrNotVBMeta, header.AuthenticationBlockSize)
	}
	start := uint64(image.Offset) + vbmetaHeaderSize + header.AuthenticationBlockSize
	for start+chainDescriptorSize <= uint64(len(data)) {
		chain, next, err := parseChainDescriptor(data, start)
		if err != nil {
			if len(image.Chains) == 0 {
				return nil, err
			}
			break
		}
		if chain.Tag != chainPartitionTag {
			break
		}
		image.Chains = append(image.Chains, *chain)
		start = next
	}
	if len(image.Chains) == 0 {
		return nil, fmt.Errorf("vbmeta has no chain partition descriptors")
	}

	image.PaddingSize, image.PaddingFound = DetectPaddingSize(data)
	return image, nil
}

func parseVBMetaHeader(raw []byte) (*VBMetaHeader, error) {
	input := cryptobyte.String(raw)
	var magic []byte
	if !input.ReadBytes(&magic, len(VBMetaMagic)) || string(magic) != VBMetaMagic {
		return nil, ErrNotVBMeta
	}

	header := &VBMetaHeader{}
	var release []byte
	ok := input.ReadUint32(&header.RequiredMajor) &&
		input.ReadUint32(&header.RequiredMinor) &&
		input.ReadUint64(&header.AuthenticationBlockSize) &&
		input.ReadUint64(&header.AuxiliaryBlockSize) &&
		input.ReadUint32(&header.AlgorithmType) &&
		input.ReadUint64(&header.HashOffset) &&
		input.ReadUint64(&header.HashSize) &&
		input.ReadUint64(&header.SignatureOffset) &&
		input.ReadUint64(&header.SignatureSize) &&
		input.ReadUint64(&header.PublicKeyOffset) &&
		input.ReadUint64(&header.PublicKeySize) &&
		input.ReadUint64(&header.PublicKeyMetadataOffset) &&
		input.ReadUint64(&header.PublicKeyMetadataSize) &&
		input.ReadUint64(&header.DescriptorsOffset) &&
		input.ReadUint64(&header.DescriptorsSize) &&
		input.ReadUint64(&header.RollbackIndex) &&
		input.ReadUint32(&header.Flags) &&
		input.ReadUint32(&header.RollbackIndexLocation) &&
		input.ReadBytes(&release, vbmetaReleaseSize) &&
		input.Skip(vbmetaReservedSize)
	if !ok {
		return nil, fmt.Errorf("%w: header truncated", ErrNotVBMeta)
	}
	header.ReleaseString = cString(release)
	return header, nil
}

// parseChainDescriptor decodes the descriptor at start and returns the
// offset of the next one (descriptors are 8-byte aligned).
func parseChainDescriptor(data []byte, start uint64) (*ChainPartition, uint64, error) {
	input := cryptobyte.String(data[start:])
	chain := &ChainPartition{}
	var bytesFollowing uint64
	var nameLength, keyLength uint32
	ok := input.ReadUint64(&chain.Tag) &&
		input.ReadUint64(&bytesFollowing) &&
		input.ReadUint32(&chain.RollbackIndexLocation) &&
		input.ReadUint32(&nameLength) &&
		input.ReadUint32(&keyLength) &&
		input.ReadUint32(&chain.Flags) &&
		input.Skip(chainDescriptorReserve)
	if !ok {
		return nil, 0, fmt.Errorf("chain descriptor at %#x truncated", start)
	}

	var name, key []byte
	if !input.ReadBytes(&name, int(nameLength)) || !input.ReadBytes(&key, int(keyLength)) {
		return nil, 0, fmt.Errorf("chain descriptor at %#x: name or key exceeds image", start)
	}
	chain.Name = string(name)
	chain.PublicKey = append([]byte(nil), key...)

	length := (uint64(chainDescriptorSize) + uint64(nameLength) + uint64(keyLength) + 7) &^ 7
	return chain, start + length, nil
}

// DetectPaddingSize reads the padding size from a DHTB header at the
// start of data or at the end of its first MiB.
func DetectPaddingSize(data []byte) (uint32, bool) {
	for _, offset := range []int{0, trailingDHTBOffset} {
		if hasDHTBAt(data, offset) && len(data) >= offset+dhtbSizeOffset+4 {
			return binary.LittleEndian.Uint32(data[offset+dhtbSizeOffset:]), true
		}
	}
	return DefaultPaddingSize, false
}

// VBMetaPlan is a make_vbmeta_image invocation reproducing a vbmeta
// image's chain layout under new keys.
type VBMetaPlan struct {
	Algorithm   Algorithm
	Key         string
	Chains      []PlannedChain
	PaddingSize uint32
	Output      string
}

// PlannedChain is one --chain_partition argument and the public key
// file it refers to.
type PlannedChain struct {
	Name                  string
	RollbackIndexLocation uint32
	KeyFile               string
	PublicKey             []byte
}

// PlanVBMeta builds the signing plan for a vbmeta image.
func PlanVBMeta(data []byte) (*VBMetaPlan, error) {
	image, err := ParseVBMeta(data)
	if err != nil {
		return nil, err
	}
	algorithm, err := LookupAlgorithm(image.Header.AlgorithmType)
	if err != nil {
		return nil, err
	}

	plan := &VBMetaPlan{
		Algorithm:   algorithm,
		Key:         fmt.Sprintf(vbmetaKeyPattern, algorithm.RSABits),
		PaddingSize: image.PaddingSize,
		Output:      VBMetaOutput,
	}
	for _, chain := range image.Chains {
		plan.Chains = append(plan.Chains, PlannedChain{
			Name:                  chain.Name,
			RollbackIndexLocation: chain.RollbackIndexLocation,
			KeyFile:               PublicKeyFile(algorithm, chain.Name),
			PublicKey:             chain.PublicKey,
		})
	}
	return plan, nil
}

// PublicKeyFile names the public key file for a chained partition.
func PublicKeyFile(algorithm Algorithm, partition string) string {
	return fmt.Sprintf("%s_%s_pub.bin", algorithm.KeyLabel, partition)
}

// Arguments returns the avbtool arguments, starting with the
// make_vbmeta_image subcommand.
func (p *VBMetaPlan) Arguments() []string {
	args := []string{
		"make_vbmeta_image",
		"--key", p.Key,
		"--algorithm", p.Algorithm.Name,
	}
	for _, chain := range p.Chains {
		args = append(args, "--chain_partition",
			fmt.Sprintf("%s:%d:%s", chain.Name, chain.RollbackIndexLocation, chain.KeyFile))
	}
	return append(args,
		"--padding_size", strconv.FormatUint(uint64(p.PaddingSize), 10),
		"--output", p.Output,
	)
}
