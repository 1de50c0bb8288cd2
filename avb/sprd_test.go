// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package avb_test

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/bureau-foundation/bootsign/avb"
	"github.com/bureau-foundation/bootsign/avb/avbtest"
)

func TestSprdSign(t *testing.T) {
	keyPEM, key := avbtest.RSAKey(t, 2048)
	image := avb.InsertHeader([]byte("boot image body"))

	signed, err := avb.SprdSign(image, keyPEM)
	if err != nil {
		t.Fatalf("SprdSign: %v", err)
	}
	body, signature, ok := avb.SplitSprdTrailer(signed)
	if !ok {
		t.Fatal("no trailer")
	}
	if !bytes.Equal(body, image) {
		t.Error("signed body differs from input")
	}
	if len(signature) != 256 {
		t.Errorf("signature length = %d", len(signature))
	}
	if err := avb.VerifySprd(signed, &key.PublicKey); err != nil {
		t.Errorf("VerifySprd: %v", err)
	}

	tampered := append([]byte(nil), signed...)
	tampered[100] ^= 1
	if err := avb.VerifySprd(tampered, &key.PublicKey); err == nil {
		t.Error("VerifySprd accepted a tampered image")
	}
}

func TestParseRSAPrivateKey(t *testing.T) {
	pkcs1, key := avbtest.RSAKey(t, 2048)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	for name, data := range map[string][]byte{"pkcs1": pkcs1, "pkcs8": pkcs8} {
		t.Run(name, func(t *testing.T) {
			parsed, err := avb.ParseRSAPrivateKey(data)
			if err != nil {
				t.Fatal(err)
			}
			if !parsed.Equal(key) {
				t.Error("parsed key differs")
			}
		})
	}

	for name, data := range map[string][]byte{
		"not pem":   []byte("key"),
		"wrong pem": pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}}),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := avb.ParseRSAPrivateKey(data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSplitSprdTrailerWithoutTrailer(t *testing.T) {
	if _, _, ok := avb.SplitSprdTrailer([]byte("plain image, SPRDSIGN in body")); ok {
		t.Error("found a trailer in unsigned data")
	}
}
