package lokilog

import (
	"errors"

	"github.com/trickstertwo/xclock"
)

var (
	// ErrNoSink is returned by Builder.Build when no sink was added.
	ErrNoSink = errors.New("lokilog: logger requires at least one sink")
	// ErrEmptyName is returned by Builder.Build for an unnamed logger.
	ErrEmptyName = errors.New("lokilog: logger name must not be empty")
)

// Config for constructing a standalone Logger.
type Config struct {
	Name     string
	MinLevel Level
	Sinks    []Sink
	Clock    xclock.Clock // optional; defaults to xclock.Default() at emit time
}

// Builder assembles a Logger outside of any Registry, for callers that pass
// loggers explicitly instead of looking them up by name.
type Builder struct {
	cfg Config
}

func NewBuilder(name string) *Builder {
	return &Builder{cfg: Config{Name: name, MinLevel: LevelInfo}}
}

func (b *Builder) WithMinLevel(l Level) *Builder {
	b.cfg.MinLevel = l
	return b
}

func (b *Builder) WithClock(c xclock.Clock) *Builder {
	b.cfg.Clock = c
	return b
}

// AddSink adds s; duplicates collapse exactly as with Logger.Attach.
func (b *Builder) AddSink(s Sink) *Builder {
	b.cfg.Sinks = append(b.cfg.Sinks, s)
	return b
}

func (b *Builder) Build() (*Logger, error) {
	if b.cfg.Name == "" {
		return nil, ErrEmptyName
	}
	if len(b.cfg.Sinks) == 0 {
		return nil, ErrNoSink
	}
	return newLogger(b.cfg.Name, b.cfg.MinLevel, b.cfg.Clock, b.cfg.Sinks), nil
}
