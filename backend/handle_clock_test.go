// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/bootsign/lib/clock"
)

// logEntries decodes a JSON slog stream.
func logEntries(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var entries []map[string]any
	decoder := json.NewDecoder(bytes.NewReader(data))
	for decoder.More() {
		var entry map[string]any
		if err := decoder.Decode(&entry); err != nil {
			t.Fatalf("decoding log: %v", err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestHandleMeasuresInitializationWithClock(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	handle := NewHandle(func(context.Context) (*Environment, error) {
		fake.Advance(2 * time.Second)
		return &Environment{Root: "/state"}, nil
	}, WithClock(fake), WithLogger(logger))

	if _, err := handle.Await(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, entry := range logEntries(t, logs.Bytes()) {
		if entry["msg"] != "interpreted backend ready" {
			continue
		}
		if got, want := entry["duration"], float64(2*time.Second); got != want {
			t.Errorf("duration = %v, want %v", got, want)
		}
		return
	}
	t.Fatalf("no ready log in %s", logs.String())
}
