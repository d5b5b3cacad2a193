// Package events provides the in-process refresh bus that lets views learn
// that remote state probably changed.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/objmarket/pkg/util"
)

// Topic names a class of refresh notification.
type Topic string

const (
	TopicItemMinted      Topic = "item-minted"
	TopicItemListed      Topic = "item-listed"
	TopicListingChanged  Topic = "listing-changed" // buy or cancel settled
	TopicListingsRefresh Topic = "listings-refresh"
)

// AllTopics lists every topic the bus carries, in a stable order.
var AllTopics = []Topic{TopicItemMinted, TopicItemListed, TopicListingChanged, TopicListingsRefresh}

type Handler func()

type entry struct {
	id      uint64
	handler Handler
}

// Bus delivers topic notifications to subscribers synchronously. Handlers
// registered after a publish never see it.
type Bus struct {
	mu        sync.Mutex
	nextID    uint64
	handlers  map[Topic][]entry
	taps      []tapEntry
	published map[Topic]uint64
	log       *zap.SugaredLogger
}

type tapEntry struct {
	id uint64
	fn func(Topic)
}

func NewBus(log *zap.SugaredLogger) *Bus {
	return &Bus{
		handlers:  make(map[Topic][]entry),
		published: make(map[Topic]uint64),
		log:       util.Sugar(log),
	}
}

// Subscribe registers h for topic and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(topic Topic, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], entry{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		hs := b.handlers[topic]
		for i, e := range hs {
			if e.id == id {
				b.handlers[topic] = append(hs[:i:i], hs[i+1:]...)
				return
			}
		}
	}
}

// Tap observes every publish regardless of topic. Used by bridges such as
// the websocket hub and metrics.
func (b *Bus) Tap(fn func(Topic)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.taps = append(b.taps, tapEntry{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, t := range b.taps {
			if t.id == id {
				b.taps = append(b.taps[:i:i], b.taps[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every handler subscribed to topic at the moment of the
// call, at most once each. Handlers run on the caller's goroutine, outside
// the bus lock, so they may subscribe or unsubscribe freely.
func (b *Bus) Publish(topic Topic) {
	b.mu.Lock()
	snapshot := append([]entry(nil), b.handlers[topic]...)
	taps := append([]tapEntry(nil), b.taps...)
	b.published[topic]++
	b.mu.Unlock()

	b.log.Debugw("bus_publish", "topic", topic, "subscribers", len(snapshot))
	for _, e := range snapshot {
		b.invoke(topic, e.handler)
	}
	for _, t := range taps {
		t.fn(topic)
	}
}

func (b *Bus) invoke(topic Topic, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("bus_handler_panic", "topic", topic, "panic", r)
		}
	}()
	h()
}

func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}

// Published reports how many times topic has been published.
func (b *Bus) Published(topic Topic) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[topic]
}
