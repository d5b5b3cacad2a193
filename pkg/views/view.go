// Package views keeps headless projections of remote state current by
// refetching whenever the refresh bus says something changed.
package views

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/pkg/events"
	"github.com/uhyunpark/objmarket/pkg/util"
)

// ErrClosed is returned by Refresh on a view that has been closed.
var ErrClosed = errors.New("view closed")

// SnapshotStore persists the last good projection of a view.
type SnapshotStore interface {
	SaveSnapshot(key string, v any) error
	LoadSnapshot(key string, v any) (bool, error)
}

// State is what a view currently shows.
type State[T any] struct {
	Records   T         `json:"records"`
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	Banner    string    `json:"banner,omitempty"`
	Passes    uint64    `json:"passes"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

type persisted[T any] struct {
	Records   T         `json:"records"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Options are shared by every view constructor.
type Options struct {
	Store  SnapshotStore
	Clock  util.Clock
	Logger *zap.SugaredLogger
	// Context bounds fetches started by bus notifications. Closing the view
	// does not cancel them; their results are dropped instead.
	Context context.Context
}

// base does the bookkeeping common to all views: liveness, pass ordering,
// persistence and bus wiring.
type base[T any] struct {
	name     string
	storeKey string
	fetch    func(ctx context.Context) (T, error)
	failMsg  string

	store SnapshotStore
	clock util.Clock
	log   *zap.SugaredLogger
	ctx   context.Context

	mu      sync.Mutex
	state   State[T]
	seq     uint64 // last pass started
	applied uint64 // last pass whose result was written

	closed atomic.Bool
	unsubs []func()
	wg     sync.WaitGroup
}

func newBase[T any](name, storeKey, failMsg string, fetch func(context.Context) (T, error), opts Options) *base[T] {
	b := &base[T]{
		name:     name,
		storeKey: storeKey,
		fetch:    fetch,
		failMsg:  failMsg,
		store:    opts.Store,
		clock:    opts.Clock,
		log:      util.Sugar(opts.Logger).With("view", name),
		ctx:      opts.Context,
	}
	if b.clock == nil {
		b.clock = util.RealClock{}
	}
	if b.ctx == nil {
		b.ctx = context.Background()
	}
	b.seed()
	return b
}

func (b *base[T]) seed() {
	if b.store == nil || b.storeKey == "" {
		return
	}
	var p persisted[T]
	ok, err := b.store.LoadSnapshot(b.storeKey, &p)
	if err != nil {
		b.log.Warnw("snapshot_load_failed", "key", b.storeKey, "err", err)
		return
	}
	if ok {
		b.state.Records = p.Records
		b.state.UpdatedAt = p.UpdatedAt
	}
}

// subscribe refetches in the background whenever one of topics is published.
func (b *base[T]) subscribe(bus *events.Bus, topics ...events.Topic) {
	if bus == nil {
		return
	}
	for _, topic := range topics {
		topic := topic
		b.unsubs = append(b.unsubs, bus.Subscribe(topic, func() {
			// Add under mu so it never races the close that precedes wait
			b.mu.Lock()
			if b.closed.Load() {
				b.mu.Unlock()
				return
			}
			b.wg.Add(1)
			b.mu.Unlock()
			go func() {
				defer b.wg.Done()
				if err := b.refresh(b.ctx); err != nil && !errors.Is(err, ErrClosed) {
					b.log.Debugw("view_refresh_failed", "topic", topic, "err", err)
				}
			}()
		}))
	}
}

func (b *base[T]) refresh(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.state.Loading = true
	b.mu.Unlock()

	records, err := b.fetch(ctx)

	if b.closed.Load() {
		b.log.Debugw("view_result_discarded", "pass", seq)
		return ErrClosed
	}

	b.mu.Lock()
	b.state.Passes++
	if seq == b.seq {
		b.state.Loading = false
	}
	if seq < b.applied {
		b.mu.Unlock()
		return err
	}
	b.applied = seq
	if err != nil {
		b.state.Error = b.failMsg
		b.mu.Unlock()
		b.log.Warnw("view_fetch_failed", "err", err)
		return err
	}
	now := b.clock.Now()
	b.state.Records = records
	b.state.Error = ""
	b.state.UpdatedAt = now
	b.mu.Unlock()

	b.persist(records, now)
	return nil
}

func (b *base[T]) persist(records T, at time.Time) {
	if b.store == nil || b.storeKey == "" {
		return
	}
	if err := b.store.SaveSnapshot(b.storeKey, persisted[T]{Records: records, UpdatedAt: at}); err != nil {
		b.log.Warnw("snapshot_save_failed", "key", b.storeKey, "err", err)
	}
}

func (b *base[T]) snapshot() State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base[T]) setBanner(msg string) {
	b.mu.Lock()
	b.state.Banner = msg
	b.mu.Unlock()
}

// close unsubscribes and marks the view dead. Fetches already running are
// left to finish; their results are dropped.
func (b *base[T]) close() {
	b.mu.Lock()
	swapped := b.closed.CompareAndSwap(false, true)
	b.mu.Unlock()
	if !swapped {
		return
	}
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
}

// wait blocks until background refreshes triggered so far have returned.
// Publishes are synchronous, so refreshes they trigger are counted by the
// time Publish returns; after close no new ones are counted.
func (b *base[T]) wait() {
	b.wg.Wait()
}
