package dedupe

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is a process-local set of in-flight message ids.
type Memory struct {
	mu         sync.Mutex
	inFlight   map[string]time.Time
	staleAfter time.Duration
	now        func() time.Time
	done       chan struct{}
	closed     bool
}

var _ Deduplicator = (*Memory)(nil)

// NewMemory creates an in-process deduplicator. Markers older than
// staleAfter are reclaimed by a background sweep in case a release was lost;
// zero disables the sweep.
func NewMemory(staleAfter time.Duration) *Memory {
	m := &Memory{
		inFlight:   make(map[string]time.Time),
		staleAfter: staleAfter,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	if staleAfter > 0 {
		go m.sweepLoop()
	}
	return m
}

// Admit records messageID as in flight. It returns false if it already is.
func (m *Memory) Admit(_ context.Context, messageID string) (bool, error) {
	if strings.TrimSpace(messageID) == "" {
		return false, ErrEmptyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.inFlight[messageID]; held {
		return false, nil
	}
	m.inFlight[messageID] = m.now()
	return true, nil
}

// Release removes the marker for messageID. Unknown ids are ignored.
func (m *Memory) Release(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, messageID)
	return nil
}

// Len reports how many markers are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inFlight)
}

func (m *Memory) sweepLoop() {
	interval := m.staleAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep drops markers held longer than staleAfter.
func (m *Memory) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	now := m.now()
	for id, admittedAt := range m.inFlight {
		if now.Sub(admittedAt) > m.staleAfter {
			delete(m.inFlight, id)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. It is safe to call multiple times.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
}
