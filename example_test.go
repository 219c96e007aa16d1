package lokilog_test

import (
	"context"
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"

	"github.com/trickstertwo/lokilog"
)

// printSink writes one line per record to stdout.
var printSink = lokilog.SinkFunc(func(r lokilog.Record) {
	fmt.Print(r.Time.Format(time.RFC3339), " ", r.Level, " ", r.Logger, " ", r.Message)
	for _, f := range r.Fields {
		fmt.Print(" ", f.K, "=", f.Value())
	}
	fmt.Println()
})

func Example() {
	reg := lokilog.NewRegistry().
		WithClock(xclock.NewFrozen(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	reg.AttachOnce("qa_automation", printSink)

	log := reg.Logger("qa_automation")
	log.Info().Str("suite", "smoke").Int("tests", 12).Msg("start")
	log.With(lokilog.Str("request_id", "req-123")).Debug().Dur("took", 125*time.Millisecond).Msg("probe")

	_ = reg.Shutdown(context.Background())
	// Output:
	// 2025-01-01T00:00:00Z INFO qa_automation start suite=smoke tests=12
	// 2025-01-01T00:00:00Z DEBUG qa_automation probe request_id=req-123 took=125ms
}

func ExampleLogger_SetLevel() {
	reg := lokilog.NewRegistry().
		WithClock(xclock.NewFrozen(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	reg.AttachOnce("runner", printSink)

	log := reg.Logger("runner")
	log.SetLevel(lokilog.LevelWarning)
	log.Info().Msg("hidden")
	log.Warning().Msg("slow step")
	// Output:
	// 2025-01-01T00:00:00Z WARNING runner slow step
}
