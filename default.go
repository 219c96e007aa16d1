package lokilog

import (
	"context"
	"sync/atomic"
)

var defaultRegistry atomic.Pointer[Registry]

func init() { defaultRegistry.Store(NewRegistry()) }

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry.Load() }

// SetDefault replaces the process-wide registry, mainly for tests.
func SetDefault(r *Registry) {
	if r == nil {
		r = NewRegistry()
	}
	defaultRegistry.Store(r)
}

// GetLogger returns the named logger from the default registry.
func GetLogger(name string) *Logger { return Default().Logger(name) }

// AttachOnce attaches s to the named logger of the default registry unless an
// equivalent sink is already attached.
func AttachOnce(name string, s Sink) bool { return Default().AttachOnce(name, s) }

// Shutdown shuts down every sink of the default registry.
func Shutdown(ctx context.Context) error { return Default().Shutdown(ctx) }

// Facade: global access (Singleton + Facade).
var global atomic.Pointer[Logger]

// SetGlobal sets the Logger used by the package-level Info(), Error(), ...
func SetGlobal(l *Logger) { global.Store(l) }

// L returns the global Logger; panic if unset to surface misconfig early.
func L() *Logger {
	l := global.Load()
	if l == nil {
		panic("lokilog: global logger not set. Build one and call lokilog.SetGlobal(...)")
	}
	return l
}
