package loki

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/trickstertwo/lokilog"
)

// Wire schema selectors for Config.Version.
const (
	VersionLegacy = "0"     // {"streams":[{"labels":"{..}","entries":[{"ts","line"}]}]}
	VersionJSON   = "1"     // {"streams":[{"stream":{..},"values":[["ns","line"]]}]}
	VersionProto  = "proto" // logproto.PushRequest, snappy block encoded
)

// Compression for JSON payloads. Protobuf payloads are always snappy encoded.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
)

const (
	legacyPushPath = "/api/prom/push"
	pushPath       = "/loki/api/v1/push"
)

var (
	// ErrInvalidConfig wraps every construction failure.
	ErrInvalidConfig = errors.New("loki: invalid configuration")

	labelNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ErrorHandler receives delivery failures; it is the handler's fallback channel.
type ErrorHandler func(error)

// Config configures a Handler. URL and Tags are required; everything else
// has a default.
type Config struct {
	// URL of the push endpoint. A URL without a path gets the default push
	// path for the selected Version.
	URL string
	// Tags are attached as stream labels to every record.
	Tags Tags
	// RequiredTags must all be present in Tags.
	RequiredTags []string
	// Version selects the wire schema: "0", "1" (default) or "proto".
	Version string

	// MinLevel drops records below it. The zero value is LevelInfo.
	MinLevel lokilog.Level

	// LevelLabel and LoggerLabel, when set, add the record severity and
	// logger name as extra labels under these names.
	LevelLabel  string
	LoggerLabel string

	BatchSize      int           // default 100
	BatchWait      time.Duration // default 1s
	QueueSize      int           // default 10000
	EnqueueTimeout time.Duration // max time Emit waits on a full queue; default 100ms, <0 never waits
	Timeout        time.Duration // per request; default 5s
	Retries        int           // extra attempts on 429/5xx/network errors
	RetryBackoff   time.Duration // default 250ms, doubled per attempt
	// ShutdownTimeout bounds Close. Default 3s.
	ShutdownTimeout time.Duration

	Compression string
	Tenant      string // X-Scope-OrgID
	Username    string
	Password    string
	Headers     map[string]string

	HTTPClient   *http.Client
	ErrorHandler ErrorHandler
}

// Tags is a fixed label set.
type Tags map[string]string

// String renders the set as a sorted Prometheus-style selector, e.g.
// {env="production",job="qa_automation"}.
func (t Tags) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(t)) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(t[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func (c Config) withDefaults() Config {
	if c.Version == "" {
		c.Version = VersionJSON
	}
	if c.Compression == "" {
		c.Compression = CompressionNone
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchWait <= 0 {
		c.BatchWait = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 10000
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = 100 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 3 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultErrorHandler
	}
	c.Tags = maps.Clone(c.Tags)
	return c
}

// validate checks c (after defaults) and returns the resolved push URL.
func (c Config) validate() (string, error) {
	var problems []string

	endpoint, err := resolveURL(c.URL, c.Version)
	if err != nil {
		problems = append(problems, err.Error())
	}

	if len(c.Tags) == 0 {
		problems = append(problems, "at least one tag is required")
	}
	for _, k := range slices.Sorted(maps.Keys(c.Tags)) {
		if !labelNameRE.MatchString(k) {
			problems = append(problems, fmt.Sprintf("tag name %q is not a valid label name", k))
		}
		if c.Tags[k] == "" {
			problems = append(problems, fmt.Sprintf("tag %q has an empty value", k))
		}
	}
	for _, k := range c.RequiredTags {
		if _, ok := c.Tags[k]; !ok {
			problems = append(problems, fmt.Sprintf("required tag %q is missing", k))
		}
	}
	for _, l := range []string{c.LevelLabel, c.LoggerLabel} {
		if l == "" {
			continue
		}
		if !labelNameRE.MatchString(l) {
			problems = append(problems, fmt.Sprintf("label name %q is not valid", l))
		}
		if _, clash := c.Tags[l]; clash {
			problems = append(problems, fmt.Sprintf("label %q collides with a tag", l))
		}
	}

	switch c.Version {
	case VersionLegacy, VersionJSON, VersionProto:
	default:
		problems = append(problems, fmt.Sprintf("unknown protocol version %q", c.Version))
	}
	switch c.Compression {
	case CompressionNone, CompressionGzip:
	default:
		problems = append(problems, fmt.Sprintf("unknown compression %q", c.Compression))
	}
	if c.Retries < 0 {
		problems = append(problems, "retries must not be negative")
	}

	if len(problems) > 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, ", "))
	}
	return endpoint, nil
}

func resolveURL(raw, version string) (string, error) {
	if raw == "" {
		return "", errors.New("endpoint URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("endpoint URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("endpoint URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint URL %q has no host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		if version == VersionLegacy {
			u.Path = legacyPushPath
		} else {
			u.Path = pushPath
		}
	}
	return u.String(), nil
}
