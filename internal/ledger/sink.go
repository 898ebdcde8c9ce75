package ledger

import (
	"github.com/elys-network/yieldvault/internal/types"
)

// EventSink receives the records of successful operations. Emission is fire-and-forget:
// a sink must not block and has no way to fail the operation.
type EventSink interface {
	Emit(types.Event)
}

// NoopSink discards every event.
type NoopSink struct{}

func (NoopSink) Emit(types.Event) {}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ev types.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(types.Event)

func (f SinkFunc) Emit(ev types.Event) { f(ev) }

// Observer is told the outcome of every mutating operation, including rejected ones.
type Observer interface {
	ObserveOperation(op string, err error)
}
