package events

import (
	"sync"
	"time"

	"github.com/uhyunpark/objmarket/pkg/util"
)

// PublishAfter publishes topic on bus once delay has elapsed on clock.
// The returned cancel stops a publish that has not happened yet; once cancel
// returns, the publish either already started or never will.
func PublishAfter(clock util.Clock, bus *Bus, topic Topic, delay time.Duration) (cancel func()) {
	if clock == nil {
		clock = util.RealClock{}
	}
	// armed before returning: the delay counts from the call, not from goroutine start
	fire := clock.After(delay)
	done := make(chan struct{})

	var mu sync.Mutex
	settled := false // fired or cancelled

	go func() {
		select {
		case <-fire:
		case <-done:
			return
		}
		mu.Lock()
		if settled {
			mu.Unlock()
			return
		}
		settled = true
		mu.Unlock()
		bus.Publish(topic)
	}()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		if !settled {
			settled = true
			close(done)
		}
	}
}
