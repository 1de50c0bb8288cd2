// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"sync"

	"github.com/bureau-foundation/bootsign/protocol"
)

// emitter guards one job's sink: log events pass until the first
// terminal event, which passes once. Anything later is dropped.
type emitter struct {
	id   string
	sink protocol.Sink

	mu         sync.Mutex
	terminated bool
	dropped    int
}

func newEmitter(id string, sink protocol.Sink) *emitter {
	if sink == nil {
		sink = protocol.SinkFunc(func(protocol.Event) {})
	}
	return &emitter{id: id, sink: sink}
}

// log forwards a log line.
func (e *emitter) log(message string) {
	e.emit(protocol.Log(e.id, message))
}

// emit forwards event unless the terminal event was already sent. It
// reports whether the event was forwarded.
func (e *emitter) emit(event protocol.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminated {
		e.dropped++
		return false
	}
	if event.Terminal() {
		e.terminated = true
	}
	e.sink.Emit(event)
	return true
}

// Dropped returns the number of events discarded after termination.
func (e *emitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}
