package loki_test

import (
	"context"
	"fmt"
	"time"

	"github.com/trickstertwo/lokilog"
	"github.com/trickstertwo/lokilog/sink/loki"
	"github.com/trickstertwo/lokilog/sink/loki/lokitest"
)

func Example() {
	srv := lokitest.NewServer()
	defer srv.Close()

	h, err := loki.New(loki.Config{
		URL:  srv.URL,
		Tags: loki.Tags{"job": "qa_automation", "env": "production"},
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	reg := lokilog.NewRegistry()
	reg.AttachOnce("qa_automation", h)
	reg.AttachOnce("qa_automation", h)
	reg.Logger("qa_automation").Info().Str("suite", "smoke").Msg("start")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := reg.Shutdown(ctx); err != nil {
		fmt.Println(err)
	}

	for _, p := range srv.Pushes() {
		fmt.Println(p.Streams[0].Labels["job"], p.Streams[0].Labels["env"], p.Lines())
	}
	// Output:
	// qa_automation production [start suite=smoke]
}
