package config

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trickstertwo/lokilog"
	"github.com/trickstertwo/lokilog/sink/console"
	"github.com/trickstertwo/lokilog/sink/loki"
)

// Option adjusts what Setup builds beyond the flat Config.
type Option func(*setupOptions)

type setupOptions struct {
	name          string
	registry      *lokilog.Registry
	consoleWriter io.Writer
	httpClient    *http.Client
	errorHandler  loki.ErrorHandler
	registerer    prometheus.Registerer
}

// WithRegistry registers on r instead of lokilog.Default().
func WithRegistry(r *lokilog.Registry) Option {
	return func(o *setupOptions) { o.registry = r }
}

// WithName attaches to the logger called name instead of cfg.JobName. The
// job tag still comes from cfg.JobName.
func WithName(name string) Option {
	return func(o *setupOptions) { o.name = name }
}

// WithConsoleWriter sends the console echo to w instead of stderr.
func WithConsoleWriter(w io.Writer) Option {
	return func(o *setupOptions) { o.consoleWriter = w }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *setupOptions) { o.httpClient = c }
}

// WithErrorHandler receives delivery failures of the Loki handler.
func WithErrorHandler(fn loki.ErrorHandler) Option {
	return func(o *setupOptions) { o.errorHandler = fn }
}

// WithMetrics registers the Loki handler's delivery metrics on r.
func WithMetrics(r prometheus.Registerer) Option {
	return func(o *setupOptions) { o.registerer = r }
}

var setupMu sync.Mutex

// Setup returns the logger named cfg.JobName (or WithName) with a Loki
// handler and, when cfg.Console is set, a console echo attached. A logger
// that already has sinks is returned unchanged, so calling Setup repeatedly never stacks
// handlers.
func Setup(cfg Config, opts ...Option) (*lokilog.Logger, error) {
	o := setupOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = lokilog.Default()
	}
	if o.name == "" {
		o.name = cfg.JobName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setupMu.Lock()
	defer setupMu.Unlock()

	logger := o.registry.Logger(o.name)
	if len(logger.Sinks()) > 0 {
		return logger, nil
	}

	lc := cfg.LokiConfig()
	lc.HTTPClient = o.httpClient
	lc.ErrorHandler = o.errorHandler
	h, err := loki.New(lc)
	if err != nil {
		return nil, err
	}
	if o.registerer != nil {
		var already prometheus.AlreadyRegisteredError
		if err := o.registerer.Register(loki.NewCollector(h)); err != nil && !errors.As(err, &already) {
			_ = h.Close()
			return nil, err
		}
	}
	o.registry.AttachOnce(o.name, h)

	if cfg.Console {
		format, _ := console.ParseFormat(cfg.ConsoleFormat)
		o.registry.AttachOnce(o.name, console.New(console.Options{
			Writer:   o.consoleWriter,
			Format:   format,
			MinLevel: cfg.MinLevel(),
		}))
	}
	logger.SetLevel(cfg.MinLevel())
	return logger, nil
}
