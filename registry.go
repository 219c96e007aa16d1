package lokilog

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/trickstertwo/xclock"
)

// Registry owns named loggers and their sink lists. Components should receive
// a *Registry (or a *Logger) explicitly; Default() exists for code that needs
// a process-wide lookup.
type Registry struct {
	mu       sync.RWMutex
	loggers  map[string]*Logger
	minLevel Level
	clock    xclock.Clock
}

// NewRegistry returns an empty registry whose loggers start at LevelDebug,
// leaving filtering to the sinks until SetLevel is called.
func NewRegistry() *Registry {
	return &Registry{loggers: make(map[string]*Logger), minLevel: LevelDebug}
}

// WithClock makes loggers created from now on read time from c.
func (r *Registry) WithClock(c xclock.Clock) *Registry {
	r.mu.Lock()
	r.clock = c
	r.mu.Unlock()
	return r
}

// Logger returns the logger registered under name, creating it on first use.
func (r *Registry) Logger(name string) *Logger {
	r.mu.RLock()
	l, ok := r.loggers[name]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loggers[name]; ok {
		return l
	}
	l = newLogger(name, r.minLevel, r.clock, nil)
	r.loggers[name] = l
	return l
}

// Lookup returns the named logger without creating it.
func (r *Registry) Lookup(name string) (*Logger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loggers[name]
	return l, ok
}

// AttachOnce attaches s to the named logger unless an equivalent sink is
// already attached there. It reports whether s was added.
func (r *Registry) AttachOnce(name string, s Sink) bool {
	return r.Logger(name).Attach(s)
}

// Names returns the registered logger names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.loggers))
	for n := range r.loggers {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Flush flushes every distinct sink across all loggers.
func (r *Registry) Flush(ctx context.Context) error {
	return flushAll(ctx, r.distinctSinks())
}

// Shutdown shuts down every distinct sink across all loggers once, bounded by
// ctx. It is the explicit replacement for sleeping before process exit.
func (r *Registry) Shutdown(ctx context.Context) error {
	return shutdownAll(ctx, r.distinctSinks())
}

func (r *Registry) distinctSinks() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Sink
	for _, l := range r.loggers {
		for _, s := range l.sinks.load() {
			if !slices.ContainsFunc(out, func(o Sink) bool { return sameSink(o, s) }) {
				out = append(out, s)
			}
		}
	}
	return out
}

func flushAll(ctx context.Context, sinks []Sink) error {
	return fanOut(ctx, sinks, func(ctx context.Context, s Sink) error {
		if f, ok := s.(Flusher); ok {
			return f.Flush(ctx)
		}
		return nil
	})
}

func shutdownAll(ctx context.Context, sinks []Sink) error {
	return fanOut(ctx, sinks, func(ctx context.Context, s Sink) error {
		switch v := s.(type) {
		case Shutdowner:
			return v.Shutdown(ctx)
		case Flusher:
			return v.Flush(ctx)
		}
		return nil
	})
}

// fanOut runs op on every sink concurrently and returns all failures
// combined; one slow or failing sink does not cut the others short.
func fanOut(ctx context.Context, sinks []Sink, op func(context.Context, Sink) error) error {
	if len(sinks) == 0 {
		return nil
	}
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, s := range sinks {
		g.Go(func() error {
			if err := op(ctx, s); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
