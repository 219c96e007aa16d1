package loki

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"

	"github.com/trickstertwo/lokilog"
)

var (
	// ErrQueueFull is reported when Emit drops a record because the queue
	// stayed full for EnqueueTimeout.
	ErrQueueFull = errors.New("loki: queue full, dropping log record")
	// ErrClosed is reported once when records arrive after Shutdown.
	ErrClosed = errors.New("loki: handler is shut down, dropping log record")
)

func defaultErrorHandler(err error) { fmt.Fprintf(os.Stderr, "lokilog: %v\n", err) }

// Handler is the forwarding sink. Records are formatted on Emit, queued, and
// pushed by a single background worker in batches. Delivery is best effort:
// failures go to Config.ErrorHandler and never reach the emitting code.
type Handler struct {
	cfg        Config
	endpoint   string
	instanceID string
	id         string

	queue    chan entry
	flushReq chan chan struct{}
	done     chan struct{} // closed by Shutdown
	stopped  chan struct{} // closed when the worker exits

	// ctx bounds in-flight pushes; cancelled when a Shutdown deadline passes.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce    sync.Once
	closed       atomic.Bool
	reportClosed sync.Once

	st stats
}

var (
	_ lokilog.Sink       = (*Handler)(nil)
	_ lokilog.Identifier = (*Handler)(nil)
	_ lokilog.Flusher    = (*Handler)(nil)
	_ lokilog.Shutdowner = (*Handler)(nil)
)

// New validates cfg and starts the delivery worker. It never contacts the
// endpoint, so an unreachable server only shows up later as delivery errors.
func New(cfg Config) (*Handler, error) {
	cfg = cfg.withDefaults()
	endpoint, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		cfg:        cfg,
		endpoint:   endpoint,
		instanceID: uuid.NewString(),
		id:         "loki|" + endpoint + "|" + cfg.Tags.String(),
		queue:      make(chan entry, cfg.QueueSize),
		flushReq:   make(chan chan struct{}),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	go h.run()
	return h, nil
}

// SinkID makes handlers with the same endpoint and tags equivalent for
// duplicate-registration checks.
func (h *Handler) SinkID() string { return h.id }

// Endpoint returns the resolved push URL.
func (h *Handler) Endpoint() string { return h.endpoint }

// Tags returns a copy of the label set attached to every record.
func (h *Handler) Tags() Tags {
	return maps.Clone(h.cfg.Tags)
}

// Stats returns a snapshot of delivery counters.
func (h *Handler) Stats() StatsSnapshot { return h.st.snapshot() }

// Emit queues r for delivery. It waits at most EnqueueTimeout for queue space
// and never performs network I/O.
func (h *Handler) Emit(r lokilog.Record) {
	if r.Level < h.cfg.MinLevel {
		return
	}
	if h.closed.Load() {
		h.st.dropped.Add(1)
		h.reportClosed.Do(func() { h.cfg.ErrorHandler(ErrClosed) })
		return
	}

	e := entry{at: r.Time, line: formatLine(r)}
	if e.at.IsZero() {
		e.at = xclock.Now()
	}
	if h.cfg.LevelLabel != "" {
		e.level = strings.ToLower(r.Level.String())
	}
	if h.cfg.LoggerLabel != "" {
		e.logger = r.Logger
	}

	select {
	case h.queue <- e:
		h.accepted()
		return
	default:
	}

	if h.cfg.EnqueueTimeout > 0 {
		t := time.NewTimer(h.cfg.EnqueueTimeout)
		defer t.Stop()
		select {
		case h.queue <- e:
			h.accepted()
			return
		case <-t.C:
		case <-h.done:
		}
	}
	h.st.dropped.Add(1)
	h.cfg.ErrorHandler(ErrQueueFull)
}

// accepted counts an enqueued record. An Emit racing Shutdown can land its
// record after the worker's last drain; such records are taken back out and
// counted as dropped.
func (h *Handler) accepted() {
	h.st.enqueued.Add(1)
	if !h.closed.Load() {
		return
	}
	select {
	case <-h.stopped:
		h.discardQueued()
	default:
	}
}

// discardQueued empties the queue once the worker is gone.
func (h *Handler) discardQueued() {
	for {
		select {
		case <-h.queue:
			h.st.dropped.Add(1)
			h.reportClosed.Do(func() { h.cfg.ErrorHandler(ErrClosed) })
		default:
			return
		}
	}
}

// Flush pushes everything queued before the call. Delivery failures are
// reported to the ErrorHandler, not returned; the error is only ctx's.
func (h *Handler) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case h.flushReq <- ack:
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-h.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake and gives queued records until ctx expires to be
// delivered. Whatever is still pending at the deadline is dropped. Safe to
// call more than once.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.done)
	})
	select {
	case <-h.stopped:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		<-h.stopped
		return ctx.Err()
	}
}

// Close is Shutdown bounded by Config.ShutdownTimeout.
func (h *Handler) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ShutdownTimeout)
	defer cancel()
	return h.Shutdown(ctx)
}

func (h *Handler) run() {
	defer func() {
		close(h.stopped)
		h.discardQueued()
	}()
	ticker := time.NewTicker(h.cfg.BatchWait)
	defer ticker.Stop()

	batch := make([]entry, 0, h.cfg.BatchSize)
	send := func() {
		if len(batch) > 0 {
			h.send(batch)
			batch = batch[:0]
		}
	}
	// drain moves whatever is queued right now into batches.
	drain := func() {
		for {
			select {
			case e := <-h.queue:
				batch = append(batch, e)
				if len(batch) >= h.cfg.BatchSize {
					send()
				}
			default:
				send()
				return
			}
		}
	}

	for {
		select {
		case e := <-h.queue:
			batch = append(batch, e)
			if len(batch) >= h.cfg.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case ack := <-h.flushReq:
			drain()
			close(ack)
		case <-h.done:
			drain()
			return
		}
	}
}

func (h *Handler) send(batch []entry) {
	p, err := h.encode(batch)
	if err != nil {
		h.st.failed.Add(uint64(len(batch)))
		h.cfg.ErrorHandler(fmt.Errorf("loki: encode batch: %w", err))
		return
	}
	if err := h.push(h.ctx, p); err != nil {
		h.st.failed.Add(uint64(p.entries))
		h.cfg.ErrorHandler(err)
		return
	}
	h.st.sent.Add(uint64(p.entries))
}
