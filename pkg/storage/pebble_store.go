package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/objmarket/pkg/txflow"
)

// Store persists view snapshots and the lifecycle outcome journal.
type Store interface {
	SaveSnapshot(name string, v any) error
	LoadSnapshot(name string, v any) (bool, error)
	RecordOutcome(s txflow.Snapshot) error
	RecentOutcomes(limit int) ([]txflow.Snapshot, error)
	Close() error
}

type PebbleStore struct {
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// SaveSnapshot replaces the stored projection for name.
func (s *PebbleStore) SaveSnapshot(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", name, err)
	}
	if err := s.db.Set(snapshotKey(name), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}

// LoadSnapshot decodes the stored projection for name into v.
// Returns false if nothing was stored.
func (s *PebbleStore) LoadSnapshot(name string, v any) (bool, error) {
	data, closer, err := s.db.Get(snapshotKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get snapshot %s: %w", name, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot %s: %w", name, err)
	}
	return true, nil
}

// RecordOutcome appends a terminal lifecycle to the journal.
func (s *PebbleStore) RecordOutcome(snap txflow.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := s.db.Set(outcomeKey(snap.FinishedAt, snap.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns up to limit outcomes, newest first.
func (s *PebbleStore) RecentOutcomes(limit int) ([]txflow.Snapshot, error) {
	prefix := outcomePrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome iterator: %w", err)
	}
	defer iter.Close()

	var out []txflow.Snapshot
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		var snap txflow.Snapshot
		if err := json.Unmarshal(iter.Value(), &snap); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, snap)
	}
	return out, nil
}
