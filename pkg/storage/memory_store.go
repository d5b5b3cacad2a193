package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/objmarket/pkg/txflow"
)

// MemoryStore keeps everything in process. Values are stored as JSON so it
// behaves like PebbleStore with respect to copying.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveSnapshot(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(snapshotKey(name))] = data
	return nil
}

func (s *MemoryStore) LoadSnapshot(name string, v any) (bool, error) {
	s.mu.RLock()
	data, ok := s.data[string(snapshotKey(name))]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot %s: %w", name, err)
	}
	return true, nil
}

func (s *MemoryStore) RecordOutcome(snap txflow.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(outcomeKey(snap.FinishedAt, snap.ID))] = data
	return nil
}

func (s *MemoryStore) RecentOutcomes(limit int) ([]txflow.Snapshot, error) {
	prefix := outcomePrefix()
	s.mu.RLock()
	var keys []string
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	var out []txflow.Snapshot
	for _, k := range keys {
		if len(out) >= limit {
			break
		}
		var snap txflow.Snapshot
		if err := json.Unmarshal(s.data[k], &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	s.mu.RUnlock()
	return out, nil
}
