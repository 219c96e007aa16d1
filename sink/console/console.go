// Package console echoes records to a terminal or any io.Writer through
// rs/zerolog.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/trickstertwo/lokilog"
)

// Format selects the output shape.
type Format int

const (
	// FormatAuto is pretty on a terminal and JSON otherwise.
	FormatAuto Format = iota
	FormatPretty
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatPretty:
		return "pretty"
	case FormatJSON:
		return "json"
	default:
		return "auto"
	}
}

// ParseFormat accepts auto, pretty or json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "pretty", "console", "text":
		return FormatPretty, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatAuto, fmt.Errorf("console: unknown format %q", s)
}

// Options configures New.
type Options struct {
	Writer     io.Writer     // default os.Stderr
	Format     Format        // default FormatAuto
	MinLevel   lokilog.Level // zero value is LevelInfo
	TimeFormat string        // pretty only; default time.RFC3339Nano
	NoColor    bool          // pretty only
}

// Sink writes one line per record: ts, level, logger, message, then fields.
type Sink struct {
	l     zerolog.Logger
	min   lokilog.Level
	tsKey string // the pretty writer reads its time column from zerolog.TimestampFieldName
}

var _ lokilog.Sink = (*Sink)(nil)

// New builds a zerolog logger for opts and wraps it.
func New(opts Options) *Sink {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	format := opts.Format
	if format == FormatAuto {
		format = FormatJSON
		if isTerminal(w) {
			format = FormatPretty
		}
	}

	var zl zerolog.Logger
	tsKey := "ts"
	if format == FormatPretty {
		noColor := opts.NoColor || !isTerminal(w)
		if f, ok := w.(*os.File); ok && !noColor {
			w = colorable.NewColorable(f)
		}
		tf := opts.TimeFormat
		if tf == "" {
			tf = time.RFC3339Nano
		}
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    noColor,
			TimeFormat: tf,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				"logger",
				zerolog.MessageFieldName,
			},
			FieldsExclude: []string{"logger"},
		})
		tsKey = zerolog.TimestampFieldName
	} else {
		zl = zerolog.New(w)
	}
	return &Sink{l: zl, min: opts.MinLevel, tsKey: tsKey}
}

// Wrap uses an already configured zerolog logger. Records below zl's level
// are skipped by zerolog itself.
func Wrap(zl zerolog.Logger) *Sink {
	return &Sink{l: zl, min: lokilog.LevelDebug, tsKey: "ts"}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Emit writes r synchronously.
func (s *Sink) Emit(r lokilog.Record) {
	if r.Level < s.min {
		return
	}
	zlvl := mapLevel(r.Level)
	if zlvl < s.l.GetLevel() {
		return
	}

	ev := s.l.WithLevel(zlvl)
	ev.Str(s.tsKey, r.Time.UTC().Format(time.RFC3339Nano))
	if r.Logger != "" {
		ev.Str("logger", r.Logger)
	}
	for i := range r.Fields {
		appendEventField(ev, &r.Fields[i])
	}
	ev.Msg(r.Message)
}

// mapLevel converts a lokilog level to zerolog. Critical maps to FatalLevel;
// WithLevel never exits the process.
func mapLevel(l lokilog.Level) zerolog.Level {
	switch {
	case l < lokilog.LevelInfo:
		return zerolog.DebugLevel
	case l < lokilog.LevelWarning:
		return zerolog.InfoLevel
	case l < lokilog.LevelError:
		return zerolog.WarnLevel
	case l < lokilog.LevelCritical:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

func appendEventField(e *zerolog.Event, f *lokilog.Field) {
	switch f.Kind {
	case lokilog.KindString:
		e.Str(f.K, f.Str)
	case lokilog.KindInt64:
		e.Int64(f.K, f.Int64)
	case lokilog.KindUint64:
		e.Uint64(f.K, f.Uint64)
	case lokilog.KindFloat64:
		e.Float64(f.K, f.Float64)
	case lokilog.KindBool:
		e.Bool(f.K, f.Bool)
	case lokilog.KindDuration:
		e.Str(f.K, f.Dur.String())
	case lokilog.KindTime:
		e.Str(f.K, f.Time.Format(time.RFC3339Nano))
	case lokilog.KindError:
		if f.Err == nil {
			e.Interface(f.K, nil)
		} else {
			e.AnErr(f.K, f.Err)
		}
	default:
		e.Interface(f.K, f.Any)
	}
}
