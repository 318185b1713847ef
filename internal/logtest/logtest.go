// Package logtest provides an in-memory logging adapter for tests.
package logtest

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// Entry is one recorded log event.
type Entry struct {
	Level string
	Msg   string
	Err   error
	Attrs []attribute.KeyValue
}

// Recorder records every event it receives. It satisfies logging.Adapter.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Debug records a debug event.
func (r *Recorder) Debug(_ context.Context, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: "debug", Msg: msg, Attrs: attrs})
}

// Info records an info event.
func (r *Recorder) Info(_ context.Context, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: "info", Msg: msg, Attrs: attrs})
}

// Warn records a warning.
func (r *Recorder) Warn(_ context.Context, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: "warn", Msg: msg, Attrs: attrs})
}

// Error records an error event.
func (r *Recorder) Error(_ context.Context, err error, msg string, attrs ...attribute.KeyValue) {
	r.add(Entry{Level: "error", Msg: msg, Err: err, Attrs: attrs})
}

// Entries returns a copy of the recorded events.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Entry(nil), r.entries...)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	entries := r.Entries()

	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Msg)
	}

	return out
}

// Count returns the number of events recorded at level.
func (r *Recorder) Count(level string) int {
	n := 0

	for _, entry := range r.Entries() {
		if entry.Level == level {
			n++
		}
	}

	return n
}

func (r *Recorder) add(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
}
