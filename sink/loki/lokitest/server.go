// Package lokitest provides an in-process Loki push endpoint that decodes
// every wire schema the loki sink speaks and records what it received.
package lokitest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/valyala/fastjson"
	"google.golang.org/protobuf/encoding/protowire"
)

// Entry is one received log line.
type Entry struct {
	Time time.Time
	Line string
}

// Stream is one labelled stream of a push.
type Stream struct {
	Labels  map[string]string
	Entries []Entry
}

// Push is one received request.
type Push struct {
	Path    string
	Header  http.Header
	Version string // "0", "1" or "proto"
	Status  int    // status the recorder answered with
	Streams []Stream
}

// Lines returns every line of the push in order.
func (p Push) Lines() []string {
	var out []string
	for _, s := range p.Streams {
		for _, e := range s.Entries {
			out = append(out, e.Line)
		}
	}
	return out
}

// Recorder is an http.Handler accepting pushes on any path.
type Recorder struct {
	router chi.Router
	parser fastjson.ParserPool
	status atomic.Int32
	delay  atomic.Int64

	mu     sync.Mutex
	pushes []Push

	// OnPush, when set, is called for every decoded push.
	OnPush func(Push)
}

// NewRecorder returns a recorder answering 204 No Content.
func NewRecorder() *Recorder {
	rec := &Recorder{}
	rec.status.Store(http.StatusNoContent)

	r := chi.NewRouter()
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ready\n")
	})
	r.Post("/*", rec.handlePush)
	rec.router = r
	return rec
}

func (rec *Recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) { rec.router.ServeHTTP(w, r) }

// SetStatus changes the status answered to later pushes.
func (rec *Recorder) SetStatus(code int) { rec.status.Store(int32(code)) }

// SetDelay makes the recorder wait d before answering.
func (rec *Recorder) SetDelay(d time.Duration) { rec.delay.Store(int64(d)) }

// Pushes returns a copy of every push received so far.
func (rec *Recorder) Pushes() []Push {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Push(nil), rec.pushes...)
}

// Lines returns every line received so far, in arrival order.
func (rec *Recorder) Lines() []string {
	var out []string
	for _, p := range rec.Pushes() {
		out = append(out, p.Lines()...)
	}
	return out
}

// WaitForPushes polls until at least n pushes arrived or timeout passes.
func (rec *Recorder) WaitForPushes(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		rec.mu.Lock()
		got := len(rec.pushes)
		rec.mu.Unlock()
		if got >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (rec *Recorder) handlePush(w http.ResponseWriter, r *http.Request) {
	if d := time.Duration(rec.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}

	push := Push{Path: r.URL.Path, Header: r.Header.Clone()}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-protobuf") {
		push.Version = "proto"
		raw, err := snappy.Decode(nil, body)
		if err == nil {
			push.Streams, err = decodeProto(raw)
		}
		if err != nil {
			http.Error(w, "decode protobuf: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(bytes.NewReader(body))
			if err == nil {
				body, err = io.ReadAll(zr)
			}
			if err != nil {
				http.Error(w, "gunzip: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		if !json.Valid(body) || !utf8.Valid(body) {
			http.Error(w, "decode json: malformed body", http.StatusBadRequest)
			return
		}
		push.Version, push.Streams, err = rec.decodeJSON(body)
		if err != nil {
			http.Error(w, "decode json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	push.Status = int(rec.status.Load())
	rec.mu.Lock()
	rec.pushes = append(rec.pushes, push)
	rec.mu.Unlock()
	if rec.OnPush != nil {
		rec.OnPush(push)
	}
	w.WriteHeader(push.Status)
}

func (rec *Recorder) decodeJSON(body []byte) (string, []Stream, error) {
	p := rec.parser.Get()
	defer rec.parser.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return "", nil, err
	}
	version := "1"
	var out []Stream
	for _, sv := range v.GetArray("streams") {
		var s Stream
		if raw := sv.GetStringBytes("labels"); raw != nil {
			version = "0"
			if s.Labels, err = ParseLabels(string(raw)); err != nil {
				return "", nil, err
			}
			for _, ev := range sv.GetArray("entries") {
				ts, err := time.Parse(time.RFC3339Nano, string(ev.GetStringBytes("ts")))
				if err != nil {
					return "", nil, err
				}
				s.Entries = append(s.Entries, Entry{Time: ts, Line: string(ev.GetStringBytes("line"))})
			}
		} else {
			s.Labels = make(map[string]string)
			obj := sv.GetObject("stream")
			if obj == nil {
				return "", nil, errors.New("stream without labels")
			}
			obj.Visit(func(k []byte, lv *fastjson.Value) {
				s.Labels[string(k)] = string(lv.GetStringBytes())
			})
			for _, pair := range sv.GetArray("values") {
				vals := pair.GetArray()
				if len(vals) < 2 {
					return "", nil, errors.New("value pair too short")
				}
				ns, err := strconv.ParseInt(string(vals[0].GetStringBytes()), 10, 64)
				if err != nil {
					return "", nil, err
				}
				s.Entries = append(s.Entries, Entry{Time: time.Unix(0, ns).UTC(), Line: string(vals[1].GetStringBytes())})
			}
		}
		out = append(out, s)
	}
	return version, out, nil
}

// ParseLabels parses a selector such as {env="production",job="qa"}.
func ParseLabels(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("labels %q: missing braces", s)
	}
	s = s[1 : len(s)-1]
	out := make(map[string]string)
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("labels: expected name= at %q", s)
		}
		name := strings.TrimSpace(s[:eq])
		rest := strings.TrimLeft(s[eq+1:], " ")
		quoted, err := strconv.QuotedPrefix(rest)
		if err != nil {
			return nil, fmt.Errorf("labels: value of %q: %v", name, err)
		}
		val, err := strconv.Unquote(quoted)
		if err != nil {
			return nil, err
		}
		out[name] = val
		s = strings.TrimLeft(rest[len(quoted):], " ")
		s = strings.TrimPrefix(s, ",")
		s = strings.TrimLeft(s, " ")
	}
	return out, nil
}

// walkProto calls fn for every top-level field of a protobuf message. Bytes
// fields carry their payload in b, varint fields in x.
func walkProto(msg []byte, fn func(num protowire.Number, b []byte, x uint64) error) error {
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return protowire.ParseError(n)
		}
		msg = msg[n:]
		switch typ {
		case protowire.BytesType:
			b, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return protowire.ParseError(n)
			}
			msg = msg[n:]
			if err := fn(num, b, 0); err != nil {
				return err
			}
		case protowire.VarintType:
			x, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return protowire.ParseError(n)
			}
			msg = msg[n:]
			if err := fn(num, nil, x); err != nil {
				return err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return protowire.ParseError(n)
			}
			msg = msg[n:]
		}
	}
	return nil
}

func decodeProto(raw []byte) ([]Stream, error) {
	var out []Stream
	err := walkProto(raw, func(num protowire.Number, b []byte, _ uint64) error {
		if num != 1 {
			return nil
		}
		var s Stream
		err := walkProto(b, func(num protowire.Number, b []byte, _ uint64) error {
			switch num {
			case 1:
				labels, err := ParseLabels(string(b))
				s.Labels = labels
				return err
			case 2:
				e, err := decodeProtoEntry(b)
				s.Entries = append(s.Entries, e)
				return err
			}
			return nil
		})
		out = append(out, s)
		return err
	})
	return out, err
}

func decodeProtoEntry(b []byte) (Entry, error) {
	var e Entry
	err := walkProto(b, func(num protowire.Number, b []byte, _ uint64) error {
		switch num {
		case 1:
			var sec, nsec uint64
			err := walkProto(b, func(num protowire.Number, _ []byte, x uint64) error {
				switch num {
				case 1:
					sec = x
				case 2:
					nsec = x
				}
				return nil
			})
			e.Time = time.Unix(int64(sec), int64(nsec)).UTC()
			return err
		case 2:
			e.Line = string(b)
		}
		return nil
	})
	return e, err
}

// Server is a Recorder behind an httptest.Server.
type Server struct {
	*Recorder
	srv *httptest.Server
	URL string // base URL, push to URL + "/loki/api/v1/push"
}

// NewServer starts a recorder on a loopback port. Close it when done.
func NewServer() *Server {
	rec := NewRecorder()
	srv := httptest.NewServer(rec)
	return &Server{Recorder: rec, srv: srv, URL: srv.URL}
}

// PushURL is the default v1 push URL of the server.
func (s *Server) PushURL() string { return s.URL + "/loki/api/v1/push" }

func (s *Server) Close() { s.srv.Close() }
