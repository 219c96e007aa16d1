// Package zapsink echoes lokilog records through go.uber.org/zap.
package zapsink

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/lokilog"
)

// Sink writes records to a zap logger. The record logger name becomes the
// zap logger name, so encoders with a NameKey show it.
type Sink struct {
	l     *zap.Logger
	al    *zap.AtomicLevel // optional, enables SetLevel
	tsKey string
}

var (
	_ lokilog.Sink    = (*Sink)(nil)
	_ lokilog.Flusher = (*Sink)(nil)
)

// New wraps l. A nil logger discards everything.
func New(l *zap.Logger) *Sink {
	if l == nil {
		l = zap.NewNop()
	}
	return &Sink{l: l, tsKey: "ts"}
}

// Options configures NewWriter.
type Options struct {
	Writer   io.Writer // default os.Stderr
	MinLevel lokilog.Level
	Console  bool // zap console encoder instead of JSON
}

// NewWriter builds a zap core writing to opts.Writer. The record carries the
// authoritative timestamp, so zap's own time key is disabled.
func NewWriter(opts Options) *Sink {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	encCfg := zapcore.EncoderConfig{
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	var enc zapcore.Encoder
	if opts.Console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	al := zap.NewAtomicLevelAt(toZapLevel(opts.MinLevel))
	core := zapcore.NewCore(enc, zapcore.AddSync(w), al)
	return &Sink{l: zap.New(core), al: &al, tsKey: "ts"}
}

// SetLevel moves the backend filter when the sink owns its AtomicLevel.
func (s *Sink) SetLevel(l lokilog.Level) {
	if s.al != nil {
		s.al.SetLevel(toZapLevel(l))
	}
}

func (s *Sink) Emit(r lokilog.Record) {
	l := s.l
	if r.Logger != "" {
		l = l.Named(r.Logger)
	}
	ce := l.Check(toZapLevel(r.Level), r.Message)
	if ce == nil {
		return
	}
	zfs := make([]zap.Field, 0, 1+len(r.Fields))
	zfs = append(zfs, zap.String(s.tsKey, r.Time.UTC().Format(time.RFC3339Nano)))
	for i := range r.Fields {
		zfs = append(zfs, toZapField(&r.Fields[i]))
	}
	ce.Write(zfs...)
}

// Flush syncs the underlying writer. Terminals and pipes that cannot sync
// are not an error.
func (s *Sink) Flush(context.Context) error {
	err := s.l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// toZapLevel maps Critical to Error; DPanic and Fatal would change control
// flow in the host.
func toZapLevel(l lokilog.Level) zapcore.Level {
	switch {
	case l < lokilog.LevelInfo:
		return zapcore.DebugLevel
	case l < lokilog.LevelWarning:
		return zapcore.InfoLevel
	case l < lokilog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func toZapField(f *lokilog.Field) zap.Field {
	switch f.Kind {
	case lokilog.KindString:
		return zap.String(f.K, f.Str)
	case lokilog.KindInt64:
		return zap.Int64(f.K, f.Int64)
	case lokilog.KindUint64:
		return zap.Uint64(f.K, f.Uint64)
	case lokilog.KindFloat64:
		return zap.Float64(f.K, f.Float64)
	case lokilog.KindBool:
		return zap.Bool(f.K, f.Bool)
	case lokilog.KindDuration:
		return zap.Duration(f.K, f.Dur)
	case lokilog.KindTime:
		return zap.Time(f.K, f.Time)
	case lokilog.KindError:
		if f.Err == nil {
			return zap.Skip()
		}
		if f.K == "" || f.K == "error" {
			return zap.Error(f.Err)
		}
		return zap.NamedError(f.K, f.Err)
	default:
		return zap.Any(f.K, f.Any)
	}
}
