// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstore keeps finished job artifacts on local disk,
// addressed by content.
//
// Each artifact is identified by a BLAKE3 keyed hash of its bytes and
// exposed as a URL:
//
//	artifact://<64 hex chars>/<name>
//
// The name is carried in the URL only; two jobs producing identical
// bytes share one blob. Blobs are compressed with zstd or LZ4 when
// that shrinks them (see [SelectCompression]) and described by a CBOR
// metadata sidecar. Reads verify the hash.
//
// Layout under the store root:
//
//	blobs/ab/cd/abcd...        compressed bytes
//	blobs/ab/cd/abcd....cbor   [Metadata]
//	tmp/                       staging for atomic renames
package artifactstore
