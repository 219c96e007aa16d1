package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/lokilog"
	"github.com/trickstertwo/lokilog/config"
)

var (
	errNoMessage      = errors.New("no message provided")
	errDeliveryFailed = errors.New("some records were not delivered")
)

// handleError prints err for the user and decides the exit status: nil means
// exit 0.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoMessage):
		_ = cmd.Usage()
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// lockedWriter serialises writes from the emitting goroutine and the
// delivery worker.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// shipper owns a private registry with one configured logger and the
// bookkeeping needed to turn delivery failures into an exit status.
type shipper struct {
	reg     *lokilog.Registry
	logger  *lokilog.Logger
	timeout time.Duration
	failed  atomic.Int64
}

func newShipper(cmd *cobra.Command, cfg config.Config, name string) (*shipper, error) {
	s := &shipper{reg: lokilog.NewRegistry(), timeout: cfg.ShutdownTimeout}
	errOut := &lockedWriter{w: cmd.ErrOrStderr()}

	opts := []config.Option{
		config.WithRegistry(s.reg),
		config.WithConsoleWriter(errOut),
		config.WithErrorHandler(func(err error) {
			s.failed.Add(1)
			fmt.Fprintf(errOut, "lokilog: %v\n", err)
		}),
	}
	if name != "" {
		opts = append(opts, config.WithName(name))
	}

	logger, err := config.Setup(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.logger = logger
	return s, nil
}

// close drains the handler within the configured grace window.
func (s *shipper) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.reg.Shutdown(ctx); err != nil {
		return err
	}
	if n := s.failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d delivery errors", errDeliveryFailed, n)
	}
	return nil
}
