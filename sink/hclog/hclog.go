// Package hclogsink echoes lokilog records through hashicorp/go-hclog.
package hclogsink

import (
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/trickstertwo/lokilog"
)

// Sink writes records to an hclog.Logger, naming sub-loggers after the
// record's logger.
type Sink struct {
	log hclog.Logger
}

var _ lokilog.Sink = (*Sink)(nil)

// New wraps l. A nil logger discards everything.
func New(l hclog.Logger) *Sink {
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &Sink{log: l}
}

// NewJSON writes JSON lines to w (default os.Stderr).
func NewJSON(w io.Writer, min lokilog.Level) *Sink {
	if w == nil {
		w = os.Stderr
	}
	return New(hclog.New(&hclog.LoggerOptions{
		JSONFormat:  true,
		Output:      w,
		TimeFn:      time.Now,
		DisableTime: true,
		Level:       convertLevel(min),
	}))
}

func (s *Sink) Emit(r lokilog.Record) {
	level := convertLevel(r.Level)
	l := s.log
	if r.Logger != "" && r.Logger != l.Name() {
		l = l.ResetNamed(r.Logger)
	}
	if l.GetLevel() > level {
		return
	}
	args := make([]any, 0, 2+2*len(r.Fields))
	args = append(args, "ts", r.Time.UTC().Format(time.RFC3339Nano))
	for i := range r.Fields {
		args = append(args, r.Fields[i].K, r.Fields[i].Value())
	}
	l.Log(level, r.Message, args...)
}

// convertLevel maps Critical to Error, the highest hclog severity.
func convertLevel(l lokilog.Level) hclog.Level {
	switch {
	case l < lokilog.LevelInfo:
		return hclog.Debug
	case l < lokilog.LevelWarning:
		return hclog.Info
	case l < lokilog.LevelError:
		return hclog.Warn
	default:
		return hclog.Error
	}
}
