package loki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trickstertwo/lokilog"
)

// PushError is a non-2xx answer from the push endpoint.
type PushError struct {
	StatusCode int
	Body       string
}

func (e *PushError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("loki: push failed: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("loki: push failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the server may accept the same batch later.
func (e *PushError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

const maxErrorBody = 1024

// push delivers p, retrying retryable failures up to Config.Retries times.
func (h *Handler) push(ctx context.Context, p payload) error {
	backoff := h.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := h.pushOnce(ctx, p)
		if err == nil {
			return nil
		}
		if attempt >= h.cfg.Retries || !retryable(err) || ctx.Err() != nil {
			return err
		}
		h.st.retries.Add(1)
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return err
		}
		backoff *= 2
	}
}

func (h *Handler) pushOnce(ctx context.Context, p payload) error {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(p.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", p.contentType)
	if p.contentEncoding != "" {
		req.Header.Set("Content-Encoding", p.contentEncoding)
	}
	req.Header.Set("User-Agent", "lokilog/"+lokilog.Version)
	req.Header.Set("X-Instance-ID", h.instanceID)
	if h.cfg.Tenant != "" {
		req.Header.Set("X-Scope-OrgID", h.cfg.Tenant)
	}
	if h.cfg.Username != "" || h.cfg.Password != "" {
		req.SetBasicAuth(h.cfg.Username, h.cfg.Password)
	}
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}

	h.st.requests.Add(1)
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &PushError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pe *PushError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return true
}
