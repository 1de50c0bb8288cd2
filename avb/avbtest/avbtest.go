// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package avbtest builds synthetic boot and vbmeta images, RSA keys,
// and a deterministic Signer for tests.
package avbtest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/cryptobyte"

	"github.com/bureau-foundation/bootsign/avb"
)

// Boot describes a synthetic Android boot image.
type Boot struct {
	PageSize    uint32
	KernelSize  uint32
	RamdiskSize uint32
	SecondSize  uint32
	DTBSize     uint32

	// DHTB prefixes a 512-byte DHTB region.
	DHTB bool

	// Trailer is the number of junk bytes appended after the image.
	Trailer int
}

// DefaultBoot is a small image with every section populated.
var DefaultBoot = Boot{PageSize: 2048, KernelSize: 5000, RamdiskSize: 1500, SecondSize: 10, DTBSize: 700, DHTB: true, Trailer: 4096}

// Size returns the image size the header declares.
func (b Boot) Size() int {
	blocks := func(n uint32) int { return int((n + b.PageSize - 1) / b.PageSize * b.PageSize) }
	size := int(b.PageSize) + blocks(b.KernelSize) + blocks(b.RamdiskSize) + blocks(b.SecondSize)
	if b.DTBSize != 0 {
		size += blocks(b.DTBSize)
	}
	return size
}

// BootImage returns the encoded image. Section bytes are a repeating
// pattern so truncation errors are visible.
func BootImage(b Boot) []byte {
	image := make([]byte, b.Size())
	copy(image, avb.BootMagic)
	fields := []uint32{
		b.KernelSize, 0x10008000,
		b.RamdiskSize, 0x11000000,
		b.SecondSize, 0x10f00000,
		0x10000100, b.PageSize,
		b.DTBSize, 0,
	}
	for index, value := range fields {
		binary.LittleEndian.PutUint32(image[8+index*4:], value)
	}
	copy(image[48:], "bootsign-test")
	copy(image[64:], "console=ttyS1,115200n8")
	for index := int(b.PageSize); index < len(image); index++ {
		image[index] = byte(index % 251)
	}

	if b.Trailer > 0 {
		image = append(image, bytes.Repeat([]byte{0xEE}, b.Trailer)...)
	}
	if b.DHTB {
		image = avb.InsertHeader(image)
	}
	return image
}

// Chain is a chain partition descriptor to embed.
type Chain struct {
	Name                  string
	RollbackIndexLocation uint32
	PublicKey             []byte
}

// VBMeta describes a synthetic vbmeta image.
type VBMeta struct {
	AlgorithmType           uint32
	AuthenticationBlockSize uint64
	Chains                  []Chain

	// PaddingSize, when non-zero, is recorded in a DHTB header placed
	// at the start (Leading) or at the end of the first MiB.
	PaddingSize uint32
	Leading     bool
}

// DefaultVBMeta chains boot and recovery under SHA256_RSA4096 with a
// trailing DHTB carrying padding 20480.
var DefaultVBMeta = VBMeta{
	AlgorithmType:           2,
	AuthenticationBlockSize: 576,
	Chains: []Chain{
		{Name: "boot", RollbackIndexLocation: 1, PublicKey: bytes.Repeat([]byte{0xB0}, 1032)},
		{Name: "recovery", RollbackIndexLocation: 2, PublicKey: bytes.Repeat([]byte{0xEC}, 1031)},
	},
	PaddingSize: 20480,
}

// VBMetaImage returns the encoded vbmeta image.
func VBMetaImage(v VBMeta) []byte {
	var builder cryptobyte.Builder
	builder.AddBytes([]byte(avb.VBMetaMagic))
	builder.AddUint32(1) // required major
	builder.AddUint32(0) // required minor
	builder.AddUint64(v.AuthenticationBlockSize)
	builder.AddUint64(0) // auxiliary block size, unused by the planner
	builder.AddUint32(v.AlgorithmType)
	for range 11 {
		builder.AddUint64(0)
	}
	builder.AddUint32(0) // flags
	builder.AddUint32(0) // rollback index location
	release := make([]byte, 48)
	copy(release, "avbtool 1.2.0")
	builder.AddBytes(release)
	builder.AddBytes(make([]byte, 80))
	builder.AddBytes(make([]byte, v.AuthenticationBlockSize))

	for _, chain := range v.Chains {
		addDescriptor(&builder, 4, chain.RollbackIndexLocation, []byte(chain.Name), chain.PublicKey)
	}
	// A property descriptor ends the chain run.
	addDescriptor(&builder, 0, 0, []byte("com.android.build"), []byte("value"))

	image := builder.BytesOrPanic()
	if v.PaddingSize == 0 {
		return image
	}

	header := make([]byte, 52)
	copy(header, "DHTB")
	binary.LittleEndian.PutUint32(header[4:], 1)
	binary.LittleEndian.PutUint32(header[0x30:], v.PaddingSize)
	if v.Leading {
		out := make([]byte, avb.DHTBRegionSize, avb.DHTBRegionSize+len(image))
		copy(out, header)
		return append(out, image...)
	}
	out := make([]byte, 1<<20)
	copy(out, image)
	copy(out[(1<<20)-avb.DHTBRegionSize:], header)
	return out
}

func addDescriptor(builder *cryptobyte.Builder, tag uint64, location uint32, name, key []byte) {
	aligned := (92 + len(name) + len(key) + 7) &^ 7
	builder.AddUint64(tag)
	builder.AddUint64(uint64(aligned - 16))
	builder.AddUint32(location)
	builder.AddUint32(uint32(len(name)))
	builder.AddUint32(uint32(len(key)))
	builder.AddUint32(0)
	builder.AddBytes(make([]byte, 60))
	builder.AddBytes(name)
	builder.AddBytes(key)
	builder.AddBytes(make([]byte, aligned-92-len(name)-len(key)))
}

var (
	keyMu    sync.Mutex
	keyCache = map[int]*rsa.PrivateKey{}
)

// RSAKey returns a PKCS#1 PEM private key of the given size. Keys are
// generated once per size per test binary.
func RSAKey(t testing.TB, bits int) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	keyMu.Lock()
	defer keyMu.Unlock()
	key, ok := keyCache[bits]
	if !ok {
		var err error
		key, err = rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			t.Fatalf("generating RSA key: %v", err)
		}
		keyCache[bits] = key
	}
	encoded := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return encoded, key
}

// Signer is a deterministic avb.Signer. MakeVBMeta writes the plan's
// arguments as the output image; AddHashFooter appends a footer line
// to the image.
type Signer struct {
	mu          sync.Mutex
	vbmetaCalls int
	footerCalls int

	// Err, when set, fails MakeVBMeta.
	Err error
}

// MakeVBMeta writes "VBMETA " plus the arguments to plan.Output,
// after checking the plan's key files are in dir.
func (s *Signer) MakeVBMeta(_ context.Context, dir string, plan *avb.VBMetaPlan, log io.Writer) error {
	s.mu.Lock()
	s.vbmetaCalls++
	s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, name := range append([]string{plan.Key}, chainKeyFiles(plan)...) {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("missing key file: %w", err)
		}
	}
	fmt.Fprintf(log, "fake make_vbmeta_image with %d chains\n", len(plan.Chains))
	content := "VBMETA " + strings.Join(plan.Arguments(), " ")
	return os.WriteFile(filepath.Join(dir, plan.Output), []byte(content), 0o644)
}

// AddHashFooter appends "FOOTER <partition> <size>" to the image.
func (s *Signer) AddHashFooter(_ context.Context, dir string, footer *avb.HashFooter, log io.Writer) error {
	s.mu.Lock()
	s.footerCalls++
	s.mu.Unlock()
	path := filepath.Join(dir, footer.Image)
	image, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, footer.Key)); err != nil {
		return fmt.Errorf("missing footer key: %w", err)
	}
	fmt.Fprintf(log, "fake add_hash_footer for %s\n", footer.PartitionName)
	return os.WriteFile(path, append(image, Footer(footer.PartitionName, footer.PartitionSize)...), 0o644)
}

// Calls returns how many times each method ran.
func (s *Signer) Calls() (vbmeta, footer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vbmetaCalls, s.footerCalls
}

// Footer is the suffix AddHashFooter appends.
func Footer(partition string, size int64) []byte {
	return []byte(fmt.Sprintf("FOOTER %s %d", partition, size))
}

func chainKeyFiles(plan *avb.VBMetaPlan) []string {
	names := make([]string, 0, len(plan.Chains))
	for _, chain := range plan.Chains {
		names = append(names, chain.KeyFile)
	}
	return names
}
