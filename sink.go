package lokilog

import (
	"context"
	"time"
)

// Record is one log event as handed to sinks. Sinks must not mutate it and
// must copy Fields if they keep them past Emit.
type Record struct {
	Time    time.Time
	Level   Level
	Message string
	Logger  string
	Fields  []Field
}

// Sink is a destination for records (console, remote aggregator, ...).
// Emit must not block on I/O for longer than the sink's own bounded timeout
// and must never panic on delivery failure.
type Sink interface {
	Emit(r Record)
}

// SinkFunc adapts a function to a Sink. Function values are not comparable,
// so a SinkFunc can be attached more than once unless wrapped in an Identifier.
type SinkFunc func(Record)

func (f SinkFunc) Emit(r Record) { f(r) }

// Identifier is implemented by sinks that define their own equivalence for
// duplicate-registration checks.
type Identifier interface {
	SinkID() string
}

// Flusher is implemented by buffering sinks.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Shutdowner is implemented by sinks owning background resources.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}
