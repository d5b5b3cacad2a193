package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/uhyunpark/objmarket/pkg/index"
	"github.com/uhyunpark/objmarket/pkg/txflow"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	pebbleStore, err := NewPebbleStore(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { pebbleStore.Close() })
	return map[string]Store{
		"pebble": pebbleStore,
		"memory": NewMemoryStore(),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var missing []index.ListingRecord
			ok, err := s.LoadSnapshot("listings/0xabc", &missing)
			if err != nil || ok {
				t.Fatalf("load missing = %v, %v", ok, err)
			}

			want := []index.ListingRecord{
				{ID: "0x1", ItemID: "0x2", Name: "Cat", PriceBaseUnits: 2_500_000_000, PriceDisplay: 2.5},
			}
			if err := s.SaveSnapshot("listings/0xabc", want); err != nil {
				t.Fatal(err)
			}
			var got []index.ListingRecord
			ok, err = s.LoadSnapshot("listings/0xabc", &got)
			if err != nil || !ok {
				t.Fatalf("load = %v, %v", ok, err)
			}
			if len(got) != 1 || got[0] != want[0] {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestRecentOutcomes_NewestFirst(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"a", "b", "c"} {
				err := s.RecordOutcome(txflow.Snapshot{
					ID:         id,
					Action:     txflow.ActionMint,
					State:      txflow.StateConfirmed,
					StartedAt:  base,
					FinishedAt: base.Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					t.Fatal(err)
				}
			}

			got, err := s.RecentOutcomes(2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
				t.Errorf("recent = %+v", got)
			}
		})
	}
}

func TestPebbleStore_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordOutcome(txflow.Snapshot{ID: "x", State: txflow.StateFailed, ErrorKind: txflow.KindSubmission}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewPebbleStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.RecentOutcomes(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ErrorKind != txflow.KindSubmission {
		t.Errorf("outcomes after reopen = %+v", got)
	}
}

func TestKeyUpperBound(t *testing.T) {
	if got := string(keyUpperBound([]byte("out:"))); got != "out;" {
		t.Errorf("upper bound = %q", got)
	}
}
