package loki

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lokilog_loki"

// Collector is a prometheus.Collector exporting the delivery counters and
// queue depth of one Handler. Every metric carries an endpoint label, so
// handlers for different endpoints can share a registry.
type Collector struct {
	h *Handler

	enqueued *prometheus.Desc
	sent     *prometheus.Desc
	dropped  *prometheus.Desc
	failed   *prometheus.Desc
	requests *prometheus.Desc
	retries  *prometheus.Desc
	queued   *prometheus.Desc
}

// NewCollector returns a Collector reading from h.
func NewCollector(h *Handler) *Collector {
	labels := prometheus.Labels{"endpoint": h.endpoint}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, labels)
	}
	return &Collector{
		h:        h,
		enqueued: desc("records_enqueued_total", "Records accepted into the delivery queue."),
		sent:     desc("records_sent_total", "Records delivered to the push endpoint."),
		dropped:  desc("records_dropped_total", "Records dropped on a full queue or after shutdown."),
		failed:   desc("records_failed_total", "Records whose push failed after all retries."),
		requests: desc("push_requests_total", "HTTP push attempts, retries included."),
		retries:  desc("push_retries_total", "HTTP push attempts that were retries."),
		queued:   desc("queue_length", "Records waiting in the delivery queue."),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enqueued
	ch <- c.sent
	ch <- c.dropped
	ch <- c.failed
	ch <- c.requests
	ch <- c.retries
	ch <- c.queued
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.h.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.enqueued, s.Enqueued)
	counter(c.sent, s.Sent)
	counter(c.dropped, s.Dropped)
	counter(c.failed, s.Failed)
	counter(c.requests, s.Requests)
	counter(c.retries, s.Retries)
	ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(len(c.h.queue)))
}
