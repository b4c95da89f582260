package gateway

import "sync/atomic"

// Metrics tracks gateway-level counters using atomic operations for
// lock-free concurrency.
type Metrics struct {
	forks           atomic.Int64
	continuations   atomic.Int64
	references      atomic.Int64
	linkDeletes     atomic.Int64
	assemblies      atomic.Int64
	truncations     atomic.Int64
	assembledTokens atomic.Int64
	errors          atomic.Int64
}

// RecordFork records a successful fork.
func (m *Metrics) RecordFork() { m.forks.Add(1) }

// RecordContinuation records a successful continuation.
func (m *Metrics) RecordContinuation() { m.continuations.Add(1) }

// RecordReference records a successful reference link.
func (m *Metrics) RecordReference() { m.references.Add(1) }

// RecordLinkDelete records a link deletion.
func (m *Metrics) RecordLinkDelete() { m.linkDeletes.Add(1) }

// RecordAssembly records a context assembly and its token total.
func (m *Metrics) RecordAssembly(tokens int, truncated bool) {
	m.assemblies.Add(1)
	m.assembledTokens.Add(int64(tokens))
	if truncated {
		m.truncations.Add(1)
	}
}

// RecordError records a failed operation.
func (m *Metrics) RecordError() { m.errors.Add(1) }

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Forks:           m.forks.Load(),
		Continuations:   m.continuations.Load(),
		References:      m.references.Load(),
		LinkDeletes:     m.linkDeletes.Load(),
		Assemblies:      m.assemblies.Load(),
		Truncations:     m.truncations.Load(),
		AssembledTokens: m.assembledTokens.Load(),
		Errors:          m.errors.Load(),
	}
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Forks           int64 `json:"forks"`
	Continuations   int64 `json:"continuations"`
	References      int64 `json:"references"`
	LinkDeletes     int64 `json:"link_deletes"`
	Assemblies      int64 `json:"assemblies"`
	Truncations     int64 `json:"truncations"`
	AssembledTokens int64 `json:"assembled_tokens"`
	Errors          int64 `json:"errors"`
}
