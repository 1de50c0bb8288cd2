// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
)

// SprdKeyName is the private key file sprd-sign reads from its
// resource directory.
const SprdKeyName = "sprd_sign.pem"

// sprdTrailerMagic introduces the signature appended by SprdSign.
const sprdTrailerMagic = "SPRDSIGN"

// ParseRSAPrivateKey decodes a PEM RSA private key in PKCS#1 or PKCS#8
// form.
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS#8 key is %T, not RSA", parsed)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}

// SprdSign signs image with RSA PKCS#1 v1.5 over SHA-256 and appends
// the trailer "SPRDSIGN" | u32le signature length | signature.
func SprdSign(image, keyPEM []byte) ([]byte, error) {
	key, err := ParseRSAPrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing sprd key: %w", err)
	}
	digest := sha256.Sum256(image)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}

	out := make([]byte, 0, len(image)+len(sprdTrailerMagic)+4+len(signature))
	out = append(out, image...)
	out = append(out, sprdTrailerMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(signature)))
	return append(out, signature...), nil
}

// SplitSprdTrailer separates a SprdSign output into the signed image
// and the signature. ok is false when data carries no trailer.
func SplitSprdTrailer(data []byte) (image, signature []byte, ok bool) {
	index := bytes.LastIndex(data, []byte(sprdTrailerMagic))
	if index < 0 || len(data) < index+len(sprdTrailerMagic)+4 {
		return nil, nil, false
	}
	lengthAt := index + len(sprdTrailerMagic)
	length := int(binary.LittleEndian.Uint32(data[lengthAt:]))
	if lengthAt+4+length != len(data) {
		return nil, nil, false
	}
	return data[:index], data[lengthAt+4:], true
}

// VerifySprd checks a SprdSign output against the public key.
func VerifySprd(data []byte, public *rsa.PublicKey) error {
	image, signature, ok := SplitSprdTrailer(data)
	if !ok {
		return errors.New("no sprd signature trailer")
	}
	digest := sha256.Sum256(image)
	return rsa.VerifyPKCS1v15(public, crypto.SHA256, digest[:], signature)
}
