package loki

import "sync/atomic"

type stats struct {
	enqueued atomic.Uint64
	sent     atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	requests atomic.Uint64
	retries  atomic.Uint64
}

// StatsSnapshot is a point-in-time counters snapshot. Counts are records,
// except Requests and Retries which count HTTP attempts.
type StatsSnapshot struct {
	Enqueued uint64
	Sent     uint64
	Dropped  uint64
	Failed   uint64
	Requests uint64
	Retries  uint64
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Enqueued: s.enqueued.Load(),
		Sent:     s.sent.Load(),
		Dropped:  s.dropped.Load(),
		Failed:   s.failed.Load(),
		Requests: s.requests.Load(),
		Retries:  s.retries.Load(),
	}
}
