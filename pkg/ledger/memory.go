package ledger

import (
	"context"
	"sync"
	"time"
)

// entry tracks when a proof was first claimed and when it may be forgotten
type entry struct {
	FirstSeen time.Time
	ExpiresAt time.Time
}

// Memory tracks claimed proofs in process memory. Claims are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	proofs map[string]entry
	ttl    time.Duration
	now    func() time.Time

	// Cleanup ticker
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewMemory creates an in-memory ledger. Claims are kept for ttl and swept
// every cleanupInterval.
func NewMemory(ttl, cleanupInterval time.Duration) *Memory {
	m := &Memory{
		proofs:      make(map[string]entry),
		ttl:         ttl,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	// A zero interval disables the sweeper
	if cleanupInterval > 0 {
		m.cleanupTicker = time.NewTicker(cleanupInterval)
		go m.cleanupExpired()
	}

	return m
}

// Claim implements Ledger
func (m *Memory) Claim(ctx context.Context, proof string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalize(proof)
	now := m.now()

	if e, exists := m.proofs[key]; exists && now.Before(e.ExpiresAt) {
		return false, nil
	}

	m.proofs[key] = entry{
		FirstSeen: now,
		ExpiresAt: now.Add(m.ttl),
	}

	return true, nil
}

// cleanupExpired removes expired claims from the store periodically
func (m *Memory) cleanupExpired() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.sweep()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.proofs {
		if !now.Before(e.ExpiresAt) {
			delete(m.proofs, key)
		}
	}
}

// Close stops the cleanup goroutine
func (m *Memory) Close() error {
	m.stopOnce.Do(func() {
		if m.cleanupTicker != nil {
			m.cleanupTicker.Stop()
		}
		close(m.stopCleanup)
	})
	return nil
}

// Stats implements Reporter
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Total: len(m.proofs)}
	now := m.now()
	for _, e := range m.proofs {
		if !now.Before(e.ExpiresAt) {
			stats.Expired++
		}
	}
	stats.Active = stats.Total - stats.Expired

	return stats
}
