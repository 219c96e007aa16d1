package slogsink

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/trickstertwo/lokilog"
)

func TestSinkWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSON(&buf, lokilog.LevelDebug)

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Emit(lokilog.Record{
		Time:    at,
		Level:   lokilog.LevelCritical,
		Message: "down",
		Logger:  "qa_automation",
		Fields:  []lokilog.Field{lokilog.Int("code", 503), lokilog.Err("error", errors.New("boom"))},
	})

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("json unmarshal: %v; line=%s", err, buf.String())
	}
	if m["level"] != "ERROR+4" || m["msg"] != "down" || m["logger"] != "qa_automation" {
		t.Fatalf("unexpected record: %v", m)
	}
	if m["code"] != float64(503) || m["error"] != "boom" || m["ts"] != at.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected fields: %v", m)
	}
}

func TestSinkRespectsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	s := NewText(&buf, lokilog.LevelWarning)
	s.Emit(lokilog.Record{Level: lokilog.LevelInfo, Message: "hidden"})
	if buf.Len() != 0 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

type recorder struct {
	mu   sync.Mutex
	recs []lokilog.Record
}

func (r *recorder) Emit(rec lokilog.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Fields = append([]lokilog.Field(nil), rec.Fields...)
	r.recs = append(r.recs, rec)
}

func TestHandlerForwardsAttrs(t *testing.T) {
	rec := &recorder{}
	l, err := lokilog.NewBuilder("qa_automation").AddSink(rec).Build()
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}

	sl := slog.New(NewHandler(l)).With("suite", "smoke").WithGroup("req")
	sl.Debug("filtered")
	sl.Warn("slow", "status", 200, slog.Group("user", "id", 7), "took", time.Second)

	if len(rec.recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.recs))
	}
	r := rec.recs[0]
	if r.Level != lokilog.LevelWarning || r.Message != "slow" || r.Logger != "qa_automation" {
		t.Fatalf("unexpected record: %+v", r)
	}
	want := []struct {
		key string
		val any
	}{
		{"suite", "smoke"},
		{"req.status", int64(200)},
		{"req.user.id", int64(7)},
		{"req.took", time.Second},
	}
	if len(r.Fields) != len(want) {
		t.Fatalf("unexpected fields: %+v", r.Fields)
	}
	for i, w := range want {
		if r.Fields[i].K != w.key || r.Fields[i].Value() != w.val {
			t.Fatalf("field %d: got %s=%v want %s=%v", i, r.Fields[i].K, r.Fields[i].Value(), w.key, w.val)
		}
	}
}
