package lokilog

import (
	"fmt"
	"sync"
	"time"
)

// Event collects the fields of one record until Msg or Msgf ships it to the
// logger's sinks:
//
//	logger.Info().Str("suite", "smoke").Dur("took", d).Msg("start")
//
// A logger returns a nil *Event for a disabled level. Every method accepts a
// nil receiver and does nothing, so filtered records cost no field copies.
// An Event must not be used after Msg or Msgf.
type Event struct {
	l      *Logger
	level  Level
	fields []Field
}

var eventPool = sync.Pool{
	New: func() any { return &Event{fields: make([]Field, 0, 8)} },
}

func getEvent(l *Logger, level Level) *Event {
	if !l.Enabled(level) {
		return nil
	}
	ev := eventPool.Get().(*Event)
	ev.l = l
	ev.level = level
	ev.fields = ev.fields[:0]
	return ev
}

func (e *Event) release() {
	// oversized field slices are not pooled
	if cap(e.fields) > 128 {
		e.fields = make([]Field, 0, 8)
	}
	clear(e.fields[:cap(e.fields)])
	e.l = nil
	eventPool.Put(e)
}

func (e *Event) add(f Field) *Event {
	if e != nil {
		e.fields = append(e.fields, f)
	}
	return e
}

func (e *Event) Str(k, v string) *Event             { return e.add(Str(k, v)) }
func (e *Event) Int(k string, v int) *Event         { return e.add(Int(k, v)) }
func (e *Event) Int64(k string, v int64) *Event     { return e.add(Int64(k, v)) }
func (e *Event) Uint64(k string, v uint64) *Event   { return e.add(Uint64(k, v)) }
func (e *Event) Float64(k string, v float64) *Event { return e.add(Float64(k, v)) }
func (e *Event) Bool(k string, v bool) *Event       { return e.add(Bool(k, v)) }
func (e *Event) Dur(k string, v time.Duration) *Event {
	return e.add(Dur(k, v))
}
func (e *Event) Time(k string, v time.Time) *Event { return e.add(Time(k, v)) }
func (e *Event) Any(k string, v any) *Event        { return e.add(Any(k, v)) }

// Err adds err under the "error" key. A nil error adds nothing.
func (e *Event) Err(err error) *Event {
	if err == nil {
		return e
	}
	return e.add(Err("error", err))
}

// Fields appends prebuilt fields, e.g. the tags of a test step.
func (e *Event) Fields(fs ...Field) *Event {
	if e != nil {
		e.fields = append(e.fields, fs...)
	}
	return e
}

// Msg stamps the record and hands it to every sink.
func (e *Event) Msg(msg string) {
	if e == nil {
		return
	}
	e.l.emit(e.level, msg, e.fields)
	e.release()
}

// Msgf is Msg with a formatted message. Nothing is formatted for a
// disabled level.
func (e *Event) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}
