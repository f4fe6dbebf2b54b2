// Package store holds scan results for the lifetime of a run and, when
// persistence is enabled, mirrors them into an embedded SQLite database.
// The in-memory store is the canonical view a run queries and exports from;
// the database lets later invocations browse earlier results.
package store

import (
	"sync"

	"github.com/scanweave/scanweave/internal/scanning"
)

// Filter narrows Query results. Zero-valued fields match everything.
// The port-level fields (Protocol, Port, PortState) must all match a
// single port entry of the result.
type Filter struct {
	// Host matches the scanned address exactly.
	Host string
	// State matches the host state ("up", "down", "unknown").
	State string
	// Protocol keeps only results with at least one port on this protocol.
	Protocol string
	// Port keeps only results with at least one scan of this port number.
	Port uint16
	// PortState keeps only results with at least one port in this state
	// ("open", "closed", "filtered").
	PortState string
}

// matches reports whether a result passes the filter.
func (f Filter) matches(r *scanning.ScanResult) bool {
	if f.Host != "" && r.Host != f.Host {
		return false
	}
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.Protocol == "" && f.Port == 0 && f.PortState == "" {
		return true
	}
	for _, p := range r.Ports {
		if f.Protocol != "" && p.Protocol != f.Protocol {
			continue
		}
		if f.Port != 0 && p.Number != f.Port {
			continue
		}
		if f.PortState != "" && p.State != f.PortState {
			continue
		}
		return true
	}
	return false
}

// MemoryStore is a concurrency-safe, insertion-ordered result store.
type MemoryStore struct {
	mu      sync.RWMutex
	results []scanning.ScanResult
}

// NewMemory creates an empty in-memory result store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Commit appends a copy of the result. Concurrent commits from multiple
// workers are safe; insertion order is commit order.
func (s *MemoryStore) Commit(result *scanning.ScanResult) {
	if result == nil {
		return
	}
	cp := *result
	cp.Ports = append([]scanning.Port(nil), result.Ports...)

	s.mu.Lock()
	s.results = append(s.results, cp)
	s.mu.Unlock()
}

// Query returns copies of all committed results that pass the filter,
// in insertion order.
func (s *MemoryStore) Query(filter Filter) []scanning.ScanResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []scanning.ScanResult
	for i := range s.results {
		if !filter.matches(&s.results[i]) {
			continue
		}
		cp := s.results[i]
		cp.Ports = append([]scanning.Port(nil), s.results[i].Ports...)
		out = append(out, cp)
	}
	return out
}

// All returns copies of every committed result in insertion order.
func (s *MemoryStore) All() []scanning.ScanResult {
	return s.Query(Filter{})
}

// Len returns the number of committed results.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Clear discards all committed results.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.results = nil
	s.mu.Unlock()
}
