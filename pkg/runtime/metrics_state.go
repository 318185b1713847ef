package runtime

import (
	"sync/atomic"
	"time"
)

// MetricsState tracks runtime-level counters that must persist across reloads.
type MetricsState struct {
	configReloads atomic.Int64
	lastReload    atomic.Int64
}

// NewMetricsState constructs an empty MetricsState.
func NewMetricsState() *MetricsState {
	return &MetricsState{}
}

// RecordReload counts an applied configuration reload.
func (m *MetricsState) RecordReload(at time.Time) {
	if m == nil {
		return
	}

	m.configReloads.Add(1)
	m.lastReload.Store(at.UnixNano())
}

// ConfigReloads returns the current number of config reloads recorded.
func (m *MetricsState) ConfigReloads() int64 {
	if m == nil {
		return 0
	}

	return m.configReloads.Load()
}

// LastReload returns the time of the latest reload, or the zero time.
func (m *MetricsState) LastReload() time.Time {
	if m == nil {
		return time.Time{}
	}

	nanos := m.lastReload.Load()
	if nanos == 0 {
		return time.Time{}
	}

	return time.Unix(0, nanos).UTC()
}
