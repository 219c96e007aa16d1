package lokilog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trickstertwo/xclock"
)

// stubSink is a minimal Sink for tests. It records every record it receives.
type stubSink struct {
	mu      sync.Mutex
	records []Record
}

func (s *stubSink) Emit(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Fields = copyFields(nil, r.Fields)
	s.records = append(s.records, r)
}

func (s *stubSink) snapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// lifecycleSink counts Flush and Shutdown calls and can fail them.
type lifecycleSink struct {
	stubSink
	flushes   atomic.Int32
	shutdowns atomic.Int32
	err       error
}

func (s *lifecycleSink) Flush(context.Context) error {
	s.flushes.Add(1)
	return s.err
}

func (s *lifecycleSink) Shutdown(context.Context) error {
	s.shutdowns.Add(1)
	return s.err
}

type idSink struct {
	stubSink
	id string
}

func (s *idSink) SinkID() string { return s.id }

type panicSink struct{}

func (panicSink) Emit(Record) { panic("boom") }

func TestGlobalAndFacade(t *testing.T) {
	ft := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sink := &stubSink{}
	logger, err := NewBuilder("qa_automation").
		AddSink(sink).
		WithMinLevel(LevelDebug).
		WithClock(xclock.NewFrozen(ft)).
		Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	SetGlobal(logger)

	Info().Str("from", "old").Dur("to", time.Second).Int("count", 2).Msg("state changed")

	recs := sink.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Level != LevelInfo {
		t.Fatalf("level mismatch: got %v", r.Level)
	}
	if r.Message != "state changed" {
		t.Fatalf("msg mismatch: %q", r.Message)
	}
	if r.Logger != "qa_automation" {
		t.Fatalf("logger mismatch: %q", r.Logger)
	}
	if !r.Time.Equal(ft) {
		t.Fatalf("timestamp mismatch: got %s want %s", r.Time, ft)
	}
	assertHasStr(t, r.Fields, "from", "old")
	assertHasDur(t, r.Fields, "to", time.Second)
	assertHasInt64(t, r.Fields, "count", 2)

	Log(LevelError, "suite failed", Str("suite", "smoke"))
	recs = sink.snapshot()
	if len(recs) != 2 || recs[1].Level != LevelError || recs[1].Message != "suite failed" {
		t.Fatalf("package Log not forwarded: %+v", recs)
	}
	assertHasStr(t, recs[1].Fields, "suite", "smoke")
}

func TestBuildWithoutSinkFails(t *testing.T) {
	t.Parallel()

	if _, err := NewBuilder("x").Build(); !errors.Is(err, ErrNoSink) {
		t.Fatalf("expected ErrNoSink, got %v", err)
	}
	if _, err := NewBuilder("").AddSink(&stubSink{}).Build(); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestMinLevelFilter(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	logger, err := NewBuilder("x").AddSink(sink).WithMinLevel(LevelWarning).Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	logger.Info().Msg("not emitted")
	logger.Debug().Msgf("not emitted %d", 1)
	logger.Error().Msg("emitted")

	recs := sink.snapshot()
	if len(recs) != 1 || recs[0].Message != "emitted" {
		t.Fatalf("expected only the error record, got %+v", recs)
	}

	logger.SetLevel(LevelDebug)
	logger.Debug().Msgf("now %s", "visible")
	if recs := sink.snapshot(); len(recs) != 2 || recs[1].Message != "now visible" {
		t.Fatalf("SetLevel not honoured: %+v", recs)
	}
}

func TestWithMergesBoundFields(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	logger, err := NewBuilder("x").AddSink(sink).Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	child := logger.With(Str("request_id", "r-1"))
	child.Info().Str("path", "/api").Int("status", 200).Msg("done")

	recs := sink.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	assertHasStr(t, recs[0].Fields, "request_id", "r-1")
	assertHasStr(t, recs[0].Fields, "path", "/api")
	assertHasInt64(t, recs[0].Fields, "status", 200)

	// Children share the sink list with their parent.
	extra := &stubSink{}
	logger.Attach(extra)
	child.Warning().Msg("after attach")
	if got := len(extra.snapshot()); got != 1 {
		t.Fatalf("child did not see sink attached to parent: %d", got)
	}
}

func TestAttachOnceSameSinkTwice(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	sink := &stubSink{}

	if !reg.AttachOnce("qa_automation", sink) {
		t.Fatal("first attach should add the sink")
	}
	if reg.AttachOnce("qa_automation", sink) {
		t.Fatal("second attach should be a no-op")
	}
	if got := len(reg.Logger("qa_automation").Sinks()); got != 1 {
		t.Fatalf("expected 1 sink, got %d", got)
	}

	// The same sink on another logger is a separate registration.
	if !reg.AttachOnce("other", sink) {
		t.Fatal("attach on a different logger should add the sink")
	}
	if got := reg.Names(); len(got) != 2 || got[0] != "other" || got[1] != "qa_automation" {
		t.Fatalf("unexpected names: %v", got)
	}
}

func TestAttachEquivalence(t *testing.T) {
	t.Parallel()

	l := NewRegistry().Logger("x")

	if !l.Attach(&idSink{id: "loki|a"}) || l.Attach(&idSink{id: "loki|a"}) {
		t.Fatal("sinks with equal SinkID must collapse")
	}
	if !l.Attach(&idSink{id: "loki|b"}) {
		t.Fatal("different SinkID must be added")
	}

	// Function sinks are not comparable and are always appended.
	fn := SinkFunc(func(Record) {})
	l.Attach(fn)
	l.Attach(fn)
	if got := len(l.Sinks()); got != 4 {
		t.Fatalf("expected 4 sinks, got %d", got)
	}

	if !l.Detach(&idSink{id: "loki|a"}) {
		t.Fatal("detach by equivalent sink failed")
	}
	if l.Detach(&idSink{id: "loki|a"}) {
		t.Fatal("second detach should report false")
	}
	if l.Attach(nil) {
		t.Fatal("nil sink must not attach")
	}
}

func TestConcurrentAttachOnce(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	sink := &stubSink{}
	var wg sync.WaitGroup
	var added atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.AttachOnce("qa_automation", sink) {
				added.Add(1)
			}
		}()
	}
	wg.Wait()
	if added.Load() != 1 || len(reg.Logger("qa_automation").Sinks()) != 1 {
		t.Fatalf("expected exactly one registration, added=%d", added.Load())
	}
}

func TestPanickingSinkDoesNotReachCaller(t *testing.T) {
	var reported []error
	old := FallbackErrorHandler
	FallbackErrorHandler = func(err error) { reported = append(reported, err) }
	defer func() { FallbackErrorHandler = old }()

	after := &stubSink{}
	logger, err := NewBuilder("x").AddSink(panicSink{}).AddSink(after).Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	logger.Error().Msg("still fine")

	if len(after.snapshot()) != 1 {
		t.Fatal("sink after the panicking one did not receive the record")
	}
	if len(reported) != 1 || !strings.Contains(reported[0].Error(), "panicked") {
		t.Fatalf("panic not reported to fallback handler: %v", reported)
	}
}

func TestRegistryShutdownOncePerSink(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	shared := &lifecycleSink{}
	own := &lifecycleSink{err: errors.New("unreachable")}
	reg.AttachOnce("a", shared)
	reg.AttachOnce("b", shared)
	reg.AttachOnce("b", own)
	reg.AttachOnce("c", &stubSink{})

	err := reg.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected aggregated error, got %v", err)
	}
	if shared.shutdowns.Load() != 1 || own.shutdowns.Load() != 1 {
		t.Fatalf("shutdown counts: shared=%d own=%d", shared.shutdowns.Load(), own.shutdowns.Load())
	}

	if err := reg.Logger("a").Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if shared.flushes.Load() != 1 {
		t.Fatalf("flush count: %d", shared.flushes.Load())
	}
}

func TestDefaultRegistryFacade(t *testing.T) {
	old := Default()
	SetDefault(NewRegistry())
	defer SetDefault(old)

	sink := &stubSink{}
	AttachOnce("qa_automation", sink)
	AttachOnce("qa_automation", sink)
	GetLogger("qa_automation").Info().Msg("start")

	if got := len(GetLogger("qa_automation").Sinks()); got != 1 {
		t.Fatalf("expected 1 sink, got %d", got)
	}
	if recs := sink.snapshot(); len(recs) != 1 || recs[0].Message != "start" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":    LevelDebug,
		"INFO":     LevelInfo,
		"warn":     LevelWarning,
		"Warning":  LevelWarning,
		"error":    LevelError,
		"critical": LevelCritical,
		"fatal":    LevelCritical,
		"":         LevelInfo,
		"8":        LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if LevelDebug >= LevelInfo || LevelInfo >= LevelWarning || LevelWarning >= LevelError || LevelError >= LevelCritical {
		t.Fatal("levels are not ordered")
	}
	if LevelWarning.String() != "WARNING" || LevelCritical.String() != "CRITICAL" {
		t.Fatalf("unexpected names: %s %s", LevelWarning, LevelCritical)
	}
}

func assertHasStr(t *testing.T, fs []Field, k, v string) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == KindString && f.Str == v {
			return
		}
	}
	t.Fatalf("missing string field %q=%q in %+v", k, v, fs)
}

func assertHasInt64(t *testing.T, fs []Field, k string, v int64) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == KindInt64 && f.Int64 == v {
			return
		}
	}
	t.Fatalf("missing int64 field %q=%d in %+v", k, v, fs)
}

func assertHasDur(t *testing.T, fs []Field, k string, v time.Duration) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == KindDuration && f.Dur == v {
			return
		}
	}
	t.Fatalf("missing duration field %q=%s in %+v", k, v, fs)
}

// formatCounter counts how often it is formatted.
type formatCounter struct{ n *int }

func (f formatCounter) String() string {
	*f.n++
	return "formatted"
}

func TestDisabledEventIsNilAndInert(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	logger, err := NewBuilder("x").AddSink(sink).WithMinLevel(LevelWarning).Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	ev := logger.Info()
	if ev != nil {
		t.Fatalf("expected nil event for a disabled level, got %+v", ev)
	}
	var formats int
	ev.Str("a", "b").Int("i", 1).Err(errors.New("boom")).Fields(Str("c", "d")).Msgf("%s", formatCounter{&formats})
	if formats != 0 {
		t.Fatalf("disabled event formatted its message %d times", formats)
	}
	if recs := sink.snapshot(); len(recs) != 0 {
		t.Fatalf("disabled event emitted %+v", recs)
	}
}

func TestEventFields(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	logger, err := NewBuilder("x").AddSink(sink).WithMinLevel(LevelDebug).Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	step := []Field{Str("suite", "smoke"), Int("step", 3)}
	logger.Warning().Fields(step...).Err(nil).Bool("retry", true).Msg("slow step")

	recs := sink.snapshot()
	if len(recs) != 1 || len(recs[0].Fields) != 3 {
		t.Fatalf("unexpected records: %+v", recs)
	}
	assertHasStr(t, recs[0].Fields, "suite", "smoke")
	assertHasInt64(t, recs[0].Fields, "step", 3)
}
