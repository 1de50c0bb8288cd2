// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/json"
	"testing"
)

// internalRecord uses cbor tags: it never crosses a JSON boundary.
type internalRecord struct {
	Hash  string `cbor:"hash"`
	Size  int64  `cbor:"size"`
	Codec string `cbor:"codec,omitempty"`
}

// wireEvent uses json tags and is read by both JSON and CBOR clients.
type wireEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Stage   int    `json:"stage,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := internalRecord{Hash: "abc123", Size: 1 << 20, Codec: "zstd"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded internalRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": "x", "mid": []byte{1, 2}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	event := wireEvent{ID: "job-1", Type: "error", Stage: 2}

	data, err := Marshal(event)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Decode into a generic map to observe the field names on the wire.
	var generic map[string]any
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"id", "type", "stage"} {
		if _, ok := generic[key]; !ok {
			t.Errorf("CBOR output missing json-tag field %q: %v", key, generic)
		}
	}
	if _, ok := generic["message"]; ok {
		t.Errorf("omitempty field \"message\" present in CBOR output: %v", generic)
	}

	// The generic map must be directly JSON-encodable.
	if _, err := json.Marshal(generic); err != nil {
		t.Errorf("decoded map is not JSON-encodable: %v", err)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	events := []wireEvent{
		{ID: "a", Type: "log", Message: "[extract-raw] dumping"},
		{ID: "a", Type: "log", Message: "[insert-header] done"},
		{ID: "a", Type: "error", Stage: 1},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range events {
		var got wireEvent
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode[%d]: %v", index, err)
		}
		if got != want {
			t.Errorf("event %d: got %+v, want %+v", index, got, want)
		}
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	request := map[string]any{"action": "fetch", "url": "artifact://00"}
	data, err := Marshal(request)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw RawMessage
	if err := Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal into RawMessage: %v", err)
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := Unmarshal(raw, &header); err != nil {
		t.Fatalf("Unmarshal header: %v", err)
	}
	if header.Action != "fetch" {
		t.Errorf("action = %q, want fetch", header.Action)
	}
}
