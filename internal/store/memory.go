package store

import (
	"sync"

	"movebook/internal/stats"
)

// Memory is the degraded-mode backend used when SQLite cannot be
// initialized. Same contract, no durability.
type Memory struct {
	mu   sync.RWMutex
	aggs map[[3]string]stats.MoveAggregate
	runs map[string]DatasetRun
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		aggs: make(map[[3]string]stats.MoveAggregate),
		runs: make(map[string]DatasetRun),
	}
}

func (m *Memory) Get(fen, move, source string) (*stats.MoveAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg, ok := m.aggs[[3]string{fen, move, source}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := agg
	copied.SourceFiles = append([]string(nil), agg.SourceFiles...)
	return &copied, nil
}

func (m *Memory) Put(agg *stats.MoveAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *agg
	copied.SourceFiles = append([]string(nil), agg.SourceFiles...)
	m.aggs[[3]string{agg.FEN, agg.Move, agg.Source}] = copied
	return nil
}

func (m *Memory) ForKey(fen, move string) ([]stats.MoveAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stats.MoveAggregate
	for key, agg := range m.aggs {
		if key[0] == fen && key[1] == move {
			out = append(out, agg)
		}
	}
	return out, nil
}

func (m *Memory) ForPosition(fen, source string) ([]stats.MoveAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stats.MoveAggregate
	for key, agg := range m.aggs {
		if key[0] != fen {
			continue
		}
		if source != "" && key[2] != source {
			continue
		}
		out = append(out, agg)
	}
	return out, nil
}

func (m *Memory) PutDatasetRun(run DatasetRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.Name] = run
	return nil
}

func (m *Memory) DatasetRun(name string) (DatasetRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[name]
	if !ok {
		return DatasetRun{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) Housekeep() error { return nil }

func (m *Memory) Close() error { return nil }
