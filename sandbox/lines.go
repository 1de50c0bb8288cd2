// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"sync"
)

// maxLineLength bounds a single delivered line. Longer output without
// a newline is delivered in pieces.
const maxLineLength = 64 * 1024

// lineWriter splits a byte stream into lines and hands each complete
// line, without its newline, to deliver. A nil deliver discards.
type lineWriter struct {
	mu      sync.Mutex
	deliver func(string)
	pending []byte
}

func newLineWriter(deliver func(string)) *lineWriter {
	return &lineWriter{deliver: deliver}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		index := bytes.IndexByte(w.pending, '\n')
		if index < 0 {
			break
		}
		w.emit(w.pending[:index])
		w.pending = w.pending[index+1:]
	}
	for len(w.pending) >= maxLineLength {
		w.emit(w.pending[:maxLineLength])
		w.pending = w.pending[maxLineLength:]
	}
	// Compact so a long-lived writer does not pin old buffers.
	if len(w.pending) == 0 {
		w.pending = nil
	}
	return len(p), nil
}

// Flush delivers any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(w.pending)
		w.pending = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if w.deliver != nil {
		w.deliver(string(line))
	}
}
