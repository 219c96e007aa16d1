// Package slogsink connects lokilog with log/slog in both directions: Sink
// writes lokilog records into a *slog.Logger, and Handler lets slog callers
// log through a lokilog Logger and its sinks.
package slogsink

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/trickstertwo/lokilog"
)

// Sink writes records into a slog.Logger. lokilog levels share slog's
// numeric scale, so Critical shows up as ERROR+4.
type Sink struct {
	l *slog.Logger
}

var _ lokilog.Sink = (*Sink)(nil)

func New(l *slog.Logger) *Sink {
	if l == nil {
		l = slog.Default()
	}
	return &Sink{l: l}
}

// NewJSON writes JSON lines to w (default os.Stderr), filtered at min.
func NewJSON(w io.Writer, min lokilog.Level) *Sink {
	if w == nil {
		w = os.Stderr
	}
	return New(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(min)})))
}

// NewText writes logfmt-style lines to w (default os.Stderr), filtered at min.
func NewText(w io.Writer, min lokilog.Level) *Sink {
	if w == nil {
		w = os.Stderr
	}
	return New(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.Level(min)})))
}

func (s *Sink) Emit(r lokilog.Record) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, slog.Level(r.Level)) {
		return
	}
	attrs := make([]slog.Attr, 0, len(r.Fields)+2)
	attrs = append(attrs, slog.Time("ts", r.Time))
	if r.Logger != "" {
		attrs = append(attrs, slog.String("logger", r.Logger))
	}
	for i := range r.Fields {
		attrs = append(attrs, toAttr(&r.Fields[i]))
	}
	s.l.LogAttrs(ctx, slog.Level(r.Level), r.Message, attrs...)
}

func toAttr(f *lokilog.Field) slog.Attr {
	switch f.Kind {
	case lokilog.KindString:
		return slog.String(f.K, f.Str)
	case lokilog.KindInt64:
		return slog.Int64(f.K, f.Int64)
	case lokilog.KindUint64:
		return slog.Uint64(f.K, f.Uint64)
	case lokilog.KindFloat64:
		return slog.Float64(f.K, f.Float64)
	case lokilog.KindBool:
		return slog.Bool(f.K, f.Bool)
	case lokilog.KindDuration:
		return slog.Duration(f.K, f.Dur)
	case lokilog.KindTime:
		return slog.Time(f.K, f.Time)
	case lokilog.KindError:
		return slog.Any(f.K, f.Err)
	default:
		return slog.Any(f.K, f.Any)
	}
}

// Handler is a slog.Handler that forwards to a lokilog Logger. Groups become
// dotted key prefixes.
type Handler struct {
	l      *lokilog.Logger
	prefix string
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler returns a handler logging through l.
func NewHandler(l *lokilog.Logger) *Handler {
	return &Handler{l: l}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.l.Enabled(lokilog.Level(level))
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	fields := make([]lokilog.Field, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, a)
		return true
	})
	h.l.Log(lokilog.Level(r.Level), r.Message, fields...)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var fields []lokilog.Field
	for _, a := range attrs {
		fields = appendAttr(fields, h.prefix, a)
	}
	return &Handler{l: h.l.With(fields...), prefix: h.prefix}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{l: h.l, prefix: h.prefix + name + "."}
}

func appendAttr(dst []lokilog.Field, prefix string, a slog.Attr) []lokilog.Field {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			dst = appendAttr(dst, p, ga)
		}
		return dst
	}

	k := prefix + a.Key
	switch v.Kind() {
	case slog.KindString:
		return append(dst, lokilog.Str(k, v.String()))
	case slog.KindInt64:
		return append(dst, lokilog.Int64(k, v.Int64()))
	case slog.KindUint64:
		return append(dst, lokilog.Uint64(k, v.Uint64()))
	case slog.KindFloat64:
		return append(dst, lokilog.Float64(k, v.Float64()))
	case slog.KindBool:
		return append(dst, lokilog.Bool(k, v.Bool()))
	case slog.KindDuration:
		return append(dst, lokilog.Dur(k, v.Duration()))
	case slog.KindTime:
		return append(dst, lokilog.Time(k, v.Time()))
	default:
		if err, ok := v.Any().(error); ok {
			return append(dst, lokilog.Err(k, err))
		}
		return append(dst, lokilog.Any(k, v.Any()))
	}
}
