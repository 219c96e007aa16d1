package loki

import (
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/trickstertwo/lokilog"
)

// formatLine renders the pushed log line: the message, then one logfmt pair
// per field. A record without fields is pushed as the bare message.
func formatLine(r lokilog.Record) string {
	if len(r.Fields) == 0 {
		return r.Message
	}
	buf := make([]byte, 0, len(r.Message)+16*len(r.Fields))
	buf = append(buf, r.Message...)
	for i := range r.Fields {
		buf = appendLogfmtField(buf, &r.Fields[i])
	}
	return string(buf)
}

func appendLogfmtField(buf []byte, f *lokilog.Field) []byte {
	buf = append(buf, ' ')
	buf = append(buf, f.K...)
	buf = append(buf, '=')
	switch f.Kind {
	case lokilog.KindString:
		return appendLogfmtString(buf, f.Str)
	case lokilog.KindInt64:
		return strconv.AppendInt(buf, f.Int64, 10)
	case lokilog.KindUint64:
		return strconv.AppendUint(buf, f.Uint64, 10)
	case lokilog.KindFloat64:
		return appendFloat(buf, f.Float64)
	case lokilog.KindBool:
		return strconv.AppendBool(buf, f.Bool)
	case lokilog.KindDuration:
		return append(buf, f.Dur.String()...)
	case lokilog.KindTime:
		return f.Time.AppendFormat(buf, time.RFC3339Nano)
	case lokilog.KindError:
		if f.Err == nil {
			return append(buf, "null"...)
		}
		return appendQuoted(buf, f.Err.Error())
	default:
		return appendLogfmtAny(buf, f.Any)
	}
}

func appendLogfmtAny(buf []byte, v any) []byte {
	switch vv := v.(type) {
	case nil:
		return append(buf, "null"...)
	case string:
		return appendLogfmtString(buf, vv)
	case []byte:
		return appendLogfmtString(buf, string(vv))
	case bool:
		return strconv.AppendBool(buf, vv)
	case int:
		return strconv.AppendInt(buf, int64(vv), 10)
	case int32:
		return strconv.AppendInt(buf, int64(vv), 10)
	case int64:
		return strconv.AppendInt(buf, vv, 10)
	case uint:
		return strconv.AppendUint(buf, uint64(vv), 10)
	case uint32:
		return strconv.AppendUint(buf, uint64(vv), 10)
	case uint64:
		return strconv.AppendUint(buf, vv, 10)
	case float32:
		return appendFloat(buf, float64(vv))
	case float64:
		return appendFloat(buf, vv)
	case time.Time:
		return vv.AppendFormat(buf, time.RFC3339Nano)
	case time.Duration:
		return append(buf, vv.String()...)
	case error:
		return appendQuoted(buf, vv.Error())
	case interface{ String() string }:
		return appendLogfmtString(buf, vv.String())
	default:
		return append(buf, "unknown"...)
	}
}

func appendFloat(buf []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return append(buf, "NaN"...)
	case math.IsInf(f, 1):
		return append(buf, "+Inf"...)
	case math.IsInf(f, -1):
		return append(buf, "-Inf"...)
	}
	return strconv.AppendFloat(buf, f, 'g', -1, 64)
}

// appendLogfmtString writes s bare unless it is empty or contains spaces,
// quotes, '=' or control characters.
func appendLogfmtString(buf []byte, s string) []byte {
	if s == "" {
		return append(buf, `""`...)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= 0x1F || c == ' ' || c == '"' || c == '=' || c == 0x7F {
			return appendQuoted(buf, s)
		}
	}
	return append(buf, s...)
}

const hexDigits = "0123456789abcdef"

// appendQuoted writes s as a JSON string. Control bytes become \u00XX and
// invalid UTF-8 becomes U+FFFD, so the result is also a valid logfmt value.
func appendQuoted(buf []byte, s string) []byte {
	buf = append(buf, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c >= 0x20 && c != '\\' && c != '"' && c < 0x80 {
			i++
			continue
		}
		if c < 0x80 {
			buf = append(buf, s[start:i]...)
			switch c {
			case '\\', '"':
				buf = append(buf, '\\', c)
			case '\n':
				buf = append(buf, '\\', 'n')
			case '\r':
				buf = append(buf, '\\', 'r')
			case '\t':
				buf = append(buf, '\\', 't')
			default:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, s[start:i]...)
			buf = append(buf, "\ufffd"...)
			i++
			start = i
			continue
		}
		i += size
	}
	buf = append(buf, s[start:]...)
	return append(buf, '"')
}
