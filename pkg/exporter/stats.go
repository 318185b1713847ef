package exporter

import (
	"sync/atomic"
	"time"

	"github.com/hyp3rd/guance/pkg/transport"
)

// Stats accumulates the delivery outcome of one exporter. Export never reports failures to
// its caller, so these counters are the only record of lost telemetry.
type Stats struct {
	signal   string
	category string

	batchesSent    atomic.Int64
	batchesSkipped atomic.Int64
	batchesFailed  atomic.Int64
	itemsSent      atomic.Int64
	itemsDropped   atomic.Int64
	filtered       atomic.Int64
	encodeErrors   atomic.Int64
	lastError      atomic.Pointer[deliveryError]
}

type deliveryError struct {
	message string
	time    time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
// Items are counted as reported in X-Points; Filtered counts unsampled spans and
// unsupported metrics, EncodeErrors counts records the encoder rejected.
type StatsSnapshot struct {
	Signal         string
	Category       string
	BatchesSent    int64
	BatchesSkipped int64
	BatchesFailed  int64
	ItemsSent      int64
	ItemsDropped   int64
	Filtered       int64
	EncodeErrors   int64
	LastError      string
	LastErrorTime  time.Time
}

func newStats(signal, category string) *Stats {
	return &Stats{signal: signal, category: category}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}

	snap := StatsSnapshot{
		Signal:         s.signal,
		Category:       s.category,
		BatchesSent:    s.batchesSent.Load(),
		BatchesSkipped: s.batchesSkipped.Load(),
		BatchesFailed:  s.batchesFailed.Load(),
		ItemsSent:      s.itemsSent.Load(),
		ItemsDropped:   s.itemsDropped.Load(),
		Filtered:       s.filtered.Load(),
		EncodeErrors:   s.encodeErrors.Load(),
	}

	if last := s.lastError.Load(); last != nil {
		snap.LastError = last.message
		snap.LastErrorTime = last.time
	}

	return snap
}

func (s *Stats) record(res transport.Result) {
	items := int64(res.Items)

	switch res.Status {
	case transport.StatusSent:
		s.batchesSent.Add(1)
		s.itemsSent.Add(items)

		return
	case transport.StatusSkipped:
		s.batchesSkipped.Add(1)
	default:
		s.batchesFailed.Add(1)
	}

	s.itemsDropped.Add(items)

	if res.Err != nil {
		s.lastError.Store(&deliveryError{
			message: res.Err.Error(),
			time:    time.Now().UTC(),
		})
	}
}
