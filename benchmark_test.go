package lokilog

import (
	"testing"
	"time"

	"github.com/trickstertwo/xclock"
)

// Sinks write here so the emit path is not optimized away.
var (
	bhT   time.Time
	bhLen int
)

type nopSink struct{}

func (nopSink) Emit(r Record) {
	bhT = r.Time
	bhLen = len(r.Fields)
}

func newBenchLogger(min Level) *Logger {
	l, err := NewBuilder("bench").
		AddSink(nopSink{}).
		WithMinLevel(min).
		Build()
	if err != nil {
		panic(err)
	}
	return l
}

func BenchmarkInfo_NoFields(b *testing.B) {
	l := newBenchLogger(LevelDebug)
	b.ReportAllocs()
	for b.Loop() {
		l.Info().Msg("ok")
	}
}

func BenchmarkInfo_5Fields(b *testing.B) {
	l := newBenchLogger(LevelDebug)
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		l.Info().
			Str("a", "b").
			Int("i", i).
			Bool("ok", true).
			Dur("d", time.Millisecond*25).
			Float64("f", 1.23).
			Msg("five")
		i++
	}
}

func BenchmarkFiltered_5Fields(b *testing.B) {
	l := newBenchLogger(LevelError)
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		l.Info().
			Str("a", "b").
			Int("i", i).
			Bool("ok", true).
			Dur("d", time.Millisecond*25).
			Float64("f", 1.23).
			Msg("filtered")
		i++
	}
}

func BenchmarkChild_Bound2_Event2(b *testing.B) {
	l := newBenchLogger(LevelDebug)
	child := l.With(Str("job", "qa_automation"), Str("suite", "smoke"))
	b.ReportAllocs()
	for b.Loop() {
		child.Info().
			Str("step", "login").
			Int("attempt", 1).
			Msg("ok")
	}
}

func BenchmarkFanOut_3Sinks(b *testing.B) {
	l := newBenchLogger(LevelDebug)
	for _, id := range []string{"console", "loki"} {
		l.Attach(&benchIDSink{id: id})
	}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			l.Warning().
				Str("suite", "smoke").
				Int("step", i).
				Dur("took", time.Millisecond).
				Msg("slow step")
			i++
		}
	})
}

type benchIDSink struct {
	nopSink
	id string
}

func (s *benchIDSink) SinkID() string { return s.id }

func BenchmarkInfo_FrozenClock(b *testing.B) {
	l, err := NewBuilder("bench").
		AddSink(nopSink{}).
		WithClock(xclock.NewFrozen(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))).
		Build()
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		l.Info().Str("k", "v").Msg("frozen")
	}
}
