// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/cmd/bootsign/cli"
)

// imageReport describes one input file or archive member.
type imageReport struct {
	Name string `json:"name"`
	Size int    `json:"size"`

	DHTB   *dhtbReport   `json:"dhtb,omitempty"`
	Boot   *bootReport   `json:"boot,omitempty"`
	VBMeta *vbmetaReport `json:"vbmeta,omitempty"`

	// SprdSignature is the length of a trailing sprd signature.
	SprdSignature int `json:"sprdSignature,omitempty"`

	Entries []imageReport `json:"entries,omitempty"`
}

type dhtbReport struct {
	Version uint32 `json:"version"`
	Size    uint32 `json:"size"`
	Digest  string `json:"digest"`
}

type bootReport struct {
	Offset    int    `json:"offset"`
	PageSize  uint32 `json:"pageSize"`
	Kernel    uint32 `json:"kernelSize"`
	Ramdisk   uint32 `json:"ramdiskSize"`
	Second    uint32 `json:"secondSize"`
	DTB       uint32 `json:"dtbSize,omitempty"`
	ImageSize int64  `json:"imageSize"`
	Name      string `json:"name,omitempty"`
	Cmdline   string `json:"cmdline,omitempty"`
}

type vbmetaReport struct {
	Offset      int           `json:"offset"`
	Algorithm   string        `json:"algorithm"`
	Release     string        `json:"release,omitempty"`
	Rollback    uint64        `json:"rollbackIndex"`
	PaddingSize uint32        `json:"paddingSize"`
	Padding     bool          `json:"paddingFound"`
	Chains      []chainReport `json:"chains,omitempty"`
}

type chainReport struct {
	Partition     string `json:"partition"`
	RollbackIndex uint32 `json:"rollbackIndexLocation"`
	PublicKey     int    `json:"publicKeySize"`
}

func inspectCommand() *cli.Command {
	var jsonOutput bool
	return &cli.Command{
		Name:    "inspect",
		Summary: "Describe boot, vbmeta and signed archive files",
		Description: `Describe boot images, vbmeta images and signed archives.

Recognized structures are a leading DHTB header, the Android boot
header, the vbmeta header with its chain partition descriptors, the
sprd signature trailer, and zip archives (each member is inspected).`,
		Usage: "bootsign inspect [--json] <file>...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("expected at least one file")
			}
			var reports []imageReport
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				reports = append(reports, inspectImage(path, data))
			}
			if jsonOutput {
				return cli.WriteJSON(os.Stdout, reports)
			}
			for _, report := range reports {
				printReport(os.Stdout, report, "")
			}
			return nil
		},
	}
}

var zipMagic = []byte("PK\x03\x04")

// inspectImage reports every structure it recognizes in data.
func inspectImage(name string, data []byte) imageReport {
	report := imageReport{Name: name, Size: len(data)}

	if bytes.HasPrefix(data, zipMagic) {
		entries, err := avb.UnpackZip(data)
		if err == nil {
			for _, entry := range entries {
				report.Entries = append(report.Entries, inspectImage(entry.Name, entry.Data))
			}
			return report
		}
	}

	image := data
	if _, signature, ok := avb.SplitSprdTrailer(data); ok {
		report.SprdSignature = len(signature)
	}

	if avb.HasDHTB(image) {
		if header, err := avb.ParseDHTB(image, 0); err == nil {
			report.DHTB = &dhtbReport{
				Version: header.Version,
				Size:    header.Size,
				Digest:  hex.EncodeToString(header.Digest[:]),
			}
		}
	}

	offset := avb.RawImageOffset(image)
	if header, err := avb.ParseBootHeader(image, offset); err == nil {
		report.Boot = &bootReport{
			Offset:    offset,
			PageSize:  header.PageSize,
			Kernel:    header.KernelSize,
			Ramdisk:   header.RamdiskSize,
			Second:    header.SecondSize,
			DTB:       header.Unused1,
			ImageSize: header.ImageSize(),
			Name:      header.Name,
			Cmdline:   header.Cmdline,
		}
		return report
	}

	if vbmeta, err := avb.ParseVBMeta(image); err == nil {
		algorithm := fmt.Sprintf("type %d", vbmeta.Header.AlgorithmType)
		if known, err := avb.LookupAlgorithm(vbmeta.Header.AlgorithmType); err == nil {
			algorithm = known.Name
		}
		report.VBMeta = &vbmetaReport{
			Offset:      vbmeta.Offset,
			Algorithm:   algorithm,
			Release:     vbmeta.Header.ReleaseString,
			Rollback:    vbmeta.Header.RollbackIndex,
			PaddingSize: vbmeta.PaddingSize,
			Padding:     vbmeta.PaddingFound,
		}
		for _, chain := range vbmeta.Chains {
			report.VBMeta.Chains = append(report.VBMeta.Chains, chainReport{
				Partition:     chain.Name,
				RollbackIndex: chain.RollbackIndexLocation,
				PublicKey:     len(chain.PublicKey),
			})
		}
	}
	return report
}

func printReport(w io.Writer, report imageReport, indent string) {
	fmt.Fprintf(w, "%s%s (%d bytes)\n", indent, report.Name, report.Size)
	indent += "  "
	if report.DHTB != nil {
		fmt.Fprintf(w, "%sdhtb: version %d, payload %d bytes, sha256 %s\n",
			indent, report.DHTB.Version, report.DHTB.Size, report.DHTB.Digest)
	}
	if boot := report.Boot; boot != nil {
		fmt.Fprintf(w, "%sboot: offset %d, page %d, kernel %d, ramdisk %d, second %d",
			indent, boot.Offset, boot.PageSize, boot.Kernel, boot.Ramdisk, boot.Second)
		if boot.DTB != 0 {
			fmt.Fprintf(w, ", dtb %d", boot.DTB)
		}
		fmt.Fprintf(w, ", image %d bytes\n", boot.ImageSize)
		if boot.Name != "" {
			fmt.Fprintf(w, "%s  name: %s\n", indent, boot.Name)
		}
		if boot.Cmdline != "" {
			fmt.Fprintf(w, "%s  cmdline: %s\n", indent, boot.Cmdline)
		}
	}
	if vbmeta := report.VBMeta; vbmeta != nil {
		fmt.Fprintf(w, "%svbmeta: offset %d, algorithm %s, rollback index %d\n",
			indent, vbmeta.Offset, vbmeta.Algorithm, vbmeta.Rollback)
		if vbmeta.Padding {
			fmt.Fprintf(w, "%s  padding: %d bytes\n", indent, vbmeta.PaddingSize)
		} else {
			fmt.Fprintf(w, "%s  padding: %d bytes (default)\n", indent, vbmeta.PaddingSize)
		}
		for _, chain := range vbmeta.Chains {
			fmt.Fprintf(w, "%s  chain %s: rollback location %d, key %d bytes\n",
				indent, chain.Partition, chain.RollbackIndex, chain.PublicKey)
		}
	}
	if report.SprdSignature > 0 {
		fmt.Fprintf(w, "%ssprd signature: %d bytes\n", indent, report.SprdSignature)
	}
	if report.DHTB == nil && report.Boot == nil && report.VBMeta == nil && report.SprdSignature == 0 && report.Entries == nil {
		fmt.Fprintf(w, "%sunrecognized\n", indent)
	}
	for _, entry := range report.Entries {
		printReport(w, entry, indent)
	}
}
