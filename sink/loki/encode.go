package loki

import (
	"bytes"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"google.golang.org/protobuf/encoding/protowire"
)

// entry is a formatted record waiting in the queue.
type entry struct {
	at     time.Time
	line   string
	level  string // only set when Config.LevelLabel is
	logger string // only set when Config.LoggerLabel is
}

type stream struct {
	labels  Tags
	entries []entry
}

// payload is an encoded push body with its headers.
type payload struct {
	body            []byte
	contentType     string
	contentEncoding string
	entries         int
}

// groupStreams splits a batch into streams by label set, keeping first-seen
// stream order and per-stream entry order.
func (h *Handler) groupStreams(batch []entry) []stream {
	if h.cfg.LevelLabel == "" && h.cfg.LoggerLabel == "" {
		return []stream{{labels: h.cfg.Tags, entries: batch}}
	}
	type key struct{ level, logger string }
	index := make(map[key]int)
	var out []stream
	for _, e := range batch {
		k := key{e.level, e.logger}
		i, ok := index[k]
		if !ok {
			labels := maps.Clone(h.cfg.Tags)
			if h.cfg.LevelLabel != "" {
				labels[h.cfg.LevelLabel] = e.level
			}
			if h.cfg.LoggerLabel != "" && e.logger != "" {
				labels[h.cfg.LoggerLabel] = e.logger
			}
			i = len(out)
			index[k] = i
			out = append(out, stream{labels: labels})
		}
		out[i].entries = append(out[i].entries, e)
	}
	return out
}

func (h *Handler) encode(batch []entry) (payload, error) {
	streams := h.groupStreams(batch)
	p := payload{entries: len(batch)}

	switch h.cfg.Version {
	case VersionProto:
		p.body = snappy.Encode(nil, encodeProto(streams))
		p.contentType = "application/x-protobuf"
		p.contentEncoding = "snappy"
		return p, nil
	case VersionLegacy:
		p.body = encodeLegacy(streams)
	default:
		p.body = encodeJSON(streams)
	}
	p.contentType = "application/json"

	if h.cfg.Compression == CompressionGzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(p.body); err != nil {
			return payload{}, err
		}
		if err := zw.Close(); err != nil {
			return payload{}, err
		}
		p.body = buf.Bytes()
		p.contentEncoding = "gzip"
	}
	return p, nil
}

// encodeJSON builds the v1 push body:
// {"streams":[{"stream":{"job":"x"},"values":[["<unix ns>","line"]]}]}
func encodeJSON(streams []stream) []byte {
	buf := make([]byte, 0, jsonSizeHint(streams))
	buf = append(buf, `{"streams":[`...)
	for i, s := range streams {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"stream":{`...)
		for j, k := range slices.Sorted(maps.Keys(s.labels)) {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = appendQuoted(buf, k)
			buf = append(buf, ':')
			buf = appendQuoted(buf, s.labels[k])
		}
		buf = append(buf, `},"values":[`...)
		for j, e := range s.entries {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, `["`...)
			buf = strconv.AppendInt(buf, e.at.UnixNano(), 10)
			buf = append(buf, `",`...)
			buf = appendQuoted(buf, e.line)
			buf = append(buf, ']')
		}
		buf = append(buf, "]}"...)
	}
	return append(buf, "]}"...)
}

// encodeLegacy builds the v0 push body:
// {"streams":[{"labels":"{job=\"x\"}","entries":[{"ts":"<RFC3339Nano>","line":"line"}]}]}
func encodeLegacy(streams []stream) []byte {
	buf := make([]byte, 0, jsonSizeHint(streams))
	buf = append(buf, `{"streams":[`...)
	for i, s := range streams {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, `{"labels":`...)
		buf = appendQuoted(buf, s.labels.String())
		buf = append(buf, `,"entries":[`...)
		for j, e := range s.entries {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, `{"ts":"`...)
			buf = e.at.AppendFormat(buf, time.RFC3339Nano)
			buf = append(buf, `","line":`...)
			buf = appendQuoted(buf, e.line)
			buf = append(buf, '}')
		}
		buf = append(buf, "]}"...)
	}
	return append(buf, "]}"...)
}

func jsonSizeHint(streams []stream) int {
	n := 16
	for _, s := range streams {
		n += 64
		for _, e := range s.entries {
			n += len(e.line) + 48
		}
	}
	return n
}

// Field numbers of logproto.PushRequest and its nested messages.
const (
	fieldPushStreams    protowire.Number = 1
	fieldStreamLabels   protowire.Number = 1
	fieldStreamEntries  protowire.Number = 2
	fieldEntryTimestamp protowire.Number = 1
	fieldEntryLine      protowire.Number = 2
	fieldTsSeconds      protowire.Number = 1
	fieldTsNanos        protowire.Number = 2
)

// encodeProto builds an uncompressed logproto.PushRequest.
func encodeProto(streams []stream) []byte {
	var out, sb, eb, tb []byte
	for _, s := range streams {
		sb = protowire.AppendTag(sb[:0], fieldStreamLabels, protowire.BytesType)
		sb = protowire.AppendString(sb, s.labels.String())
		for _, e := range s.entries {
			tb = protowire.AppendTag(tb[:0], fieldTsSeconds, protowire.VarintType)
			tb = protowire.AppendVarint(tb, uint64(e.at.Unix()))
			tb = protowire.AppendTag(tb, fieldTsNanos, protowire.VarintType)
			tb = protowire.AppendVarint(tb, uint64(e.at.Nanosecond()))

			eb = protowire.AppendTag(eb[:0], fieldEntryTimestamp, protowire.BytesType)
			eb = protowire.AppendBytes(eb, tb)
			eb = protowire.AppendTag(eb, fieldEntryLine, protowire.BytesType)
			eb = protowire.AppendString(eb, e.line)

			sb = protowire.AppendTag(sb, fieldStreamEntries, protowire.BytesType)
			sb = protowire.AppendBytes(sb, eb)
		}
		out = protowire.AppendTag(out, fieldPushStreams, protowire.BytesType)
		out = protowire.AppendBytes(out, sb)
	}
	return out
}
