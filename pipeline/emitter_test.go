// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"testing"

	"github.com/bureau-foundation/bootsign/protocol"
)

func TestEmitterStopsAfterTerminalEvent(t *testing.T) {
	var events []protocol.Event
	emit := newEmitter("job-1", protocol.SinkFunc(func(event protocol.Event) {
		events = append(events, event)
	}))

	emit.log("first")
	if !emit.emit(protocol.Failure("job-1", 0, "Error: boom")) {
		t.Fatal("terminal event dropped")
	}
	emit.log("late")
	if emit.emit(protocol.Success("job-1", "artifact://x", "x.zip")) {
		t.Error("second terminal event forwarded")
	}

	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Type != protocol.EventTypeLog || events[0].Message != "first" || events[0].ID != "job-1" {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].Type != protocol.EventTypeError {
		t.Errorf("events[1] = %+v", events[1])
	}
	if emit.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", emit.Dropped())
	}
}

func TestEmitterNilSink(t *testing.T) {
	emit := newEmitter("job-1", nil)
	emit.log("nobody listens")
	if !emit.emit(protocol.Success("job-1", "artifact://x", "x.zip")) {
		t.Error("terminal event not accepted")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{State{Phase: Idle}, "idle"},
		{State{Phase: Loading}, "loading"},
		{State{Phase: Running, Stage: 1}, "running(1)"},
		{State{Phase: Succeeded}, "succeeded"},
		{State{Phase: Failed, Stage: -1}, "failed(-1)"},
		{State{Phase: Phase(9)}, "phase(9)"},
	}
	for _, test := range tests {
		if got := test.state.String(); got != test.want {
			t.Errorf("%#v.String() = %q, want %q", test.state, got, test.want)
		}
	}
}
