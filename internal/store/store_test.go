package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanweave/scanweave/internal/scanning"
)

func sampleResult(host string) *scanning.ScanResult {
	return &scanning.ScanResult{
		Host:      host,
		State:     "up",
		ScannedAt: time.Now(),
		Ports: []scanning.Port{
			{Number: 22, Protocol: "tcp", State: "open", Service: "ssh"},
			{Number: 53, Protocol: "udp", State: "closed", Service: "domain"},
		},
	}
}

func TestMemoryStoreCommitAndQuery(t *testing.T) {
	s := NewMemory()

	s.Commit(sampleResult("10.0.0.1"))
	s.Commit(sampleResult("10.0.0.2"))
	down := &scanning.ScanResult{Host: "10.0.0.3", State: "down"}
	s.Commit(down)

	assert.Equal(t, 3, s.Len())

	t.Run("empty filter returns everything in insertion order", func(t *testing.T) {
		all := s.Query(Filter{})
		require.Len(t, all, 3)
		assert.Equal(t, "10.0.0.1", all[0].Host)
		assert.Equal(t, "10.0.0.2", all[1].Host)
		assert.Equal(t, "10.0.0.3", all[2].Host)
	})

	t.Run("filter by host", func(t *testing.T) {
		got := s.Query(Filter{Host: "10.0.0.2"})
		require.Len(t, got, 1)
		assert.Equal(t, "10.0.0.2", got[0].Host)
	})

	t.Run("filter by state", func(t *testing.T) {
		assert.Len(t, s.Query(Filter{State: "up"}), 2)
		assert.Len(t, s.Query(Filter{State: "down"}), 1)
	})

	t.Run("filter by protocol", func(t *testing.T) {
		got := s.Query(Filter{Protocol: "udp"})
		assert.Len(t, got, 2, "both up hosts carry a udp port")
	})

	t.Run("filter by port", func(t *testing.T) {
		assert.Len(t, s.Query(Filter{Port: 22}), 2)
		assert.Empty(t, s.Query(Filter{Port: 8080}))
	})

	t.Run("filter by port state", func(t *testing.T) {
		assert.Len(t, s.Query(Filter{PortState: "open"}), 2)
		assert.Empty(t, s.Query(Filter{PortState: "filtered"}))
	})

	t.Run("port-level fields must match the same port entry", func(t *testing.T) {
		assert.Len(t, s.Query(Filter{Protocol: "tcp", Port: 22}), 2)
		assert.Empty(t, s.Query(Filter{Protocol: "udp", Port: 22}))
		assert.Len(t, s.Query(Filter{Protocol: "tcp", PortState: "open"}), 2)
		assert.Empty(t, s.Query(Filter{Port: 22, PortState: "closed"}))
	})

	t.Run("no match returns empty", func(t *testing.T) {
		assert.Empty(t, s.Query(Filter{Host: "192.0.2.99"}))
	})
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemory()
	original := sampleResult("10.0.0.1")
	s.Commit(original)

	// Mutating the committed value must not leak into the store.
	original.State = "mutated"
	original.Ports[0].State = "mutated"

	got := s.Query(Filter{})
	require.Len(t, got, 1)
	assert.Equal(t, "up", got[0].State)
	assert.Equal(t, "open", got[0].Ports[0].State)

	// Mutating a queried value must not either.
	got[0].Ports[0].State = "also mutated"
	again := s.Query(Filter{})
	assert.Equal(t, "open", again[0].Ports[0].State)
}

func TestMemoryStoreIgnoresNil(t *testing.T) {
	s := NewMemory()
	s.Commit(nil)
	assert.Zero(t, s.Len())
}

func TestMemoryStoreConcurrentCommits(t *testing.T) {
	s := NewMemory()

	var wg sync.WaitGroup
	const writers = 20
	const perWriter = 50

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				s.Commit(sampleResult("10.0.0.1"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, s.Len())
}

func TestMemoryStoreClear(t *testing.T) {
	s := NewMemory()
	s.Commit(sampleResult("10.0.0.1"))
	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.All())
}
