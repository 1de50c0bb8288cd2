// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package avb implements the image operations behind the signing
// stages: dumping the raw Android boot image out of a vendor-wrapped
// file, inserting and parsing the 512-byte DHTB header used by sprd
// bootloaders, planning a make_vbmeta_image invocation from an existing
// vbmeta image, padding a re-signed vbmeta for a platform version,
// sprd signing, and zip packaging.
//
// Signing of vbmeta and the boot hash footer is delegated to a
// [Signer]. [CommandSigner] runs avbtool; tests substitute their own.
//
// [RegisterModules] exposes the native operations as builtin
// sandbox modules (get-raw-image, imgheaderinsert, sprd-sign).
package avb
