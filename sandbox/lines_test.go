// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"reflect"
	"strings"
	"testing"
)

func TestLineWriter(t *testing.T) {
	var lines []string
	writer := newLineWriter(func(line string) { lines = append(lines, line) })

	writer.Write([]byte("first li"))
	writer.Write([]byte("ne\nsecond\r\nthi"))
	if !reflect.DeepEqual(lines, []string{"first line", "second"}) {
		t.Fatalf("lines = %q", lines)
	}
	writer.Write([]byte("rd"))
	writer.Flush()
	if !reflect.DeepEqual(lines, []string{"first line", "second", "third"}) {
		t.Errorf("lines after flush = %q", lines)
	}

	writer.Flush()
	if len(lines) != 3 {
		t.Errorf("empty flush delivered a line")
	}
}

func TestLineWriterSplitsLongLines(t *testing.T) {
	var lines []string
	writer := newLineWriter(func(line string) { lines = append(lines, line) })

	writer.Write([]byte(strings.Repeat("x", maxLineLength+10)))
	if len(lines) != 1 || len(lines[0]) != maxLineLength {
		t.Fatalf("got %d lines, first len %d", len(lines), len(lines[0]))
	}
	writer.Flush()
	if len(lines) != 2 || len(lines[1]) != 10 {
		t.Errorf("remainder not delivered: %d lines", len(lines))
	}
}

func TestLineWriterNilDeliver(t *testing.T) {
	writer := newLineWriter(nil)
	if n, err := writer.Write([]byte("discarded\n")); n != 10 || err != nil {
		t.Errorf("Write = %d, %v", n, err)
	}
	writer.Flush()
}
