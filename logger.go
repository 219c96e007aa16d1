package lokilog

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
)

// Logger is a named logger and the sinks attached to it. Children created by
// With share the parent's sink list and level.
type Logger struct {
	name       string
	level      *atomic.Int64
	baseFields []Field
	clock      xclock.Clock // nil means xclock.Now()
	sinks      *sinkSet
}

// sinkSet: lock-free reads via atomic.Value; synchronized updates via mu.
// Stored value is []Sink and MUST be treated as immutable by readers.
type sinkSet struct {
	mu  sync.Mutex
	cur atomic.Value // holds []Sink
}

func (s *sinkSet) load() []Sink {
	v, _ := s.cur.Load().([]Sink)
	return v
}

// Factory: internal constructor.
func newLogger(name string, min Level, clock xclock.Clock, sinks []Sink) *Logger {
	l := &Logger{
		name:  name,
		level: new(atomic.Int64),
		clock: clock,
		sinks: &sinkSet{},
	}
	l.level.Store(int64(min))
	l.sinks.cur.Store(([]Sink)(nil))
	for _, s := range sinks {
		l.Attach(s)
	}
	return l
}

// Name returns the logger name records are tagged with.
func (l *Logger) Name() string { return l.name }

// Level returns the current minimum level.
func (l *Logger) Level() Level { return Level(l.level.Load()) }

// SetLevel changes the minimum level for this logger and its children.
func (l *Logger) SetLevel(level Level) { l.level.Store(int64(level)) }

// Enabled reports whether logs at 'level' would be emitted by this logger.
// Use to avoid building fields in hot paths when disabled.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

// Level entry points returning fluent builders.

func (l *Logger) Debug() *Event    { return getEvent(l, LevelDebug) }
func (l *Logger) Info() *Event     { return getEvent(l, LevelInfo) }
func (l *Logger) Warning() *Event  { return getEvent(l, LevelWarning) }
func (l *Logger) Error() *Event    { return getEvent(l, LevelError) }
func (l *Logger) Critical() *Event { return getEvent(l, LevelCritical) }

// Log emits msg at level with the given fields.
func (l *Logger) Log(level Level, msg string, fs ...Field) {
	l.emit(level, msg, fs)
}

// With returns a child logger with bound fields.
func (l *Logger) With(fs ...Field) *Logger {
	return &Logger{
		name:       l.name,
		level:      l.level,
		baseFields: append(copyFields(nil, l.baseFields), fs...),
		clock:      l.clock,
		sinks:      l.sinks,
	}
}

// Attach appends s to the sink list unless an equivalent sink is already
// attached. It reports whether s was added.
func (l *Logger) Attach(s Sink) bool {
	if s == nil {
		return false
	}
	l.sinks.mu.Lock()
	defer l.sinks.mu.Unlock()
	cur := l.sinks.load()
	for _, existing := range cur {
		if sameSink(existing, s) {
			return false
		}
	}
	next := make([]Sink, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, s)
	l.sinks.cur.Store(next)
	return true
}

// Detach removes the sink equivalent to s and reports whether one was found.
func (l *Logger) Detach(s Sink) bool {
	l.sinks.mu.Lock()
	defer l.sinks.mu.Unlock()
	cur := l.sinks.load()
	for i, existing := range cur {
		if sameSink(existing, s) {
			next := make([]Sink, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			l.sinks.cur.Store(next)
			return true
		}
	}
	return false
}

// Sinks returns a snapshot of the attached sinks in attachment order.
func (l *Logger) Sinks() []Sink {
	cur := l.sinks.load()
	if len(cur) == 0 {
		return nil
	}
	out := make([]Sink, len(cur))
	copy(out, cur)
	return out
}

// Flush flushes every attached sink that buffers.
func (l *Logger) Flush(ctx context.Context) error {
	return flushAll(ctx, l.sinks.load())
}

// Shutdown flushes and releases every attached sink that owns resources.
// Sinks stay attached; records emitted afterwards are dropped by them.
func (l *Logger) Shutdown(ctx context.Context) error {
	return shutdownAll(ctx, l.sinks.load())
}

func (l *Logger) now() time.Time {
	if l.clock != nil {
		return l.clock.Now()
	}
	return xclock.Now()
}

func (l *Logger) emit(level Level, msg string, evFields []Field) {
	if !l.Enabled(level) {
		return
	}
	sinks := l.sinks.load()
	if len(sinks) == 0 {
		return
	}

	fields := evFields
	if len(l.baseFields) > 0 {
		fields = make([]Field, 0, len(l.baseFields)+len(evFields))
		fields = append(fields, l.baseFields...)
		fields = append(fields, evFields...)
	}

	r := Record{
		Time:    l.now(),
		Level:   level,
		Message: msg,
		Logger:  l.name,
		Fields:  fields,
	}
	for _, s := range sinks {
		emitTo(s, r)
	}
}

func emitTo(s Sink, r Record) {
	defer func() {
		if p := recover(); p != nil {
			reportError(fmt.Errorf("lokilog: sink %T panicked: %v", s, p))
		}
	}()
	s.Emit(r)
}

// sameSink reports whether a and b are the same registration: equal SinkIDs
// when both are Identifiers, otherwise equal comparable values.
func sameSink(a, b Sink) bool {
	if ia, ok := a.(Identifier); ok {
		if ib, ok := b.(Identifier); ok {
			return ia.SinkID() == ib.SinkID()
		}
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() || !va.Comparable() {
		return false
	}
	return a == b
}

// FallbackErrorHandler receives failures that cannot be reported anywhere
// else, such as a panicking sink. It defaults to a line on stderr.
var FallbackErrorHandler = func(err error) { fmt.Fprintf(os.Stderr, "%v\n", err) }

func reportError(err error) {
	if h := FallbackErrorHandler; h != nil {
		h(err)
	}
}
