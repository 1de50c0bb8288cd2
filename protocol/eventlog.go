// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventLog appends every event it sees to a JSONL file, one event per
// line, synced after each write so a crash keeps completed lines. A
// nil *EventLog is a no-op.
type EventLog struct {
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	now     func() time.Time
}

// EventLogEntry is one line of the log.
type EventLogEntry struct {
	Time string `json:"time"`
	Event
}

// OpenEventLog opens path for appending, creating it if needed.
func OpenEventLog(path string, logger *slog.Logger) (*EventLog, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("opening event log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EventLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
		now:     time.Now,
	}, nil
}

// Record appends event.
func (l *EventLog) Record(event Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := EventLogEntry{Time: l.now().UTC().Format(time.RFC3339Nano), Event: event}
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write event log entry", "job_id", event.ID, "error", err)
		return
	}
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync event log", "error", err)
	}
}

// Wrap returns a sink that records each event before forwarding it.
func (l *EventLog) Wrap(sink Sink) Sink {
	if l == nil {
		return sink
	}
	return SinkFunc(func(event Event) {
		l.Record(event)
		sink.Emit(event)
	})
}

// Close closes the log file.
func (l *EventLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// ReadEventLog decodes every entry from r. A torn final line from a
// crash is ignored.
func ReadEventLog(r io.Reader) ([]EventLogEntry, error) {
	decoder := json.NewDecoder(r)
	var entries []EventLogEntry
	for {
		var entry EventLogEntry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("event log entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}
