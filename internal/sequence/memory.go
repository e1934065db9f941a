package sequence

import (
	"context"
	"sync"
)

// Memory is a process-local Sequencer. Counters start at zero and are
// created on first use, mirroring the store-backed upsert semantics.
type Memory struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemory() *Memory {
	return &Memory{counters: make(map[string]int64)}
}

func (m *Memory) NextSequence(_ context.Context, chatID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[chatID]++
	return m.counters[chatID], nil
}
