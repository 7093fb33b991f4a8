package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEventA struct{ Value int }
type testEventB struct{ Name string }

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := New()
	var count int32
	var wg sync.WaitGroup
	wg.Add(2)

	Subscribe(b, func(e testEventA) {
		defer wg.Done()
		atomic.AddInt32(&count, int32(e.Value))
	})
	Subscribe(b, func(e testEventA) {
		defer wg.Done()
		atomic.AddInt32(&count, int32(e.Value))
	})

	Publish(b, testEventA{Value: 5})

	waitOrTimeout(t, &wg, time.Second)
	assert.EqualValues(t, 10, atomic.LoadInt32(&count))
}

func TestSubscriberOnlyReceivesItsOwnType(t *testing.T) {
	b := New()
	var gotA, gotB int32
	var wg sync.WaitGroup
	wg.Add(1)

	Subscribe(b, func(e testEventA) { atomic.AddInt32(&gotA, 1) })
	Subscribe(b, func(e testEventB) {
		defer wg.Done()
		atomic.AddInt32(&gotB, 1)
	})

	Publish(b, testEventB{Name: "x"})
	waitOrTimeout(t, &wg, time.Second)

	assert.EqualValues(t, 0, atomic.LoadInt32(&gotA))
	assert.EqualValues(t, 1, atomic.LoadInt32(&gotB))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var count int32
	token := Subscribe(b, func(e testEventA) { atomic.AddInt32(&count, 1) })

	b.Unsubscribe(token)
	Publish(b, testEventA{Value: 1})

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&count))
	require.Equal(t, 0, SubscriberCount[testEventA](b))
}

func TestDuplicateUnsubscribeIsNoOp(t *testing.T) {
	b := New()
	token := Subscribe(b, func(e testEventA) {})
	b.Unsubscribe(token)
	assert.NotPanics(t, func() { b.Unsubscribe(token) })
}

// TestRetainExactHandlerAcrossStartStop demonstrates the critical invariant
// from spec §4.1: a subscriber must retain the *exact* Token it subscribed
// with. This test simulates a component whose "compression on/off" flag
// changes the handler it would construct if re-derived, and shows that only
// storing the original Token (not recreating the handler) correctly removes
// the subscription.
func TestRetainExactHandlerAcrossStartStop(t *testing.T) {
	b := New()

	type compressingSubscriber struct {
		compressionEnabled bool
		token              Token
	}

	sub := &compressingSubscriber{compressionEnabled: false}
	makeHandler := func() func(testEventA) {
		// A handler whose behavior depends on mutable state — if stop()
		// reconstructed the handler via makeHandler() instead of reusing
		// sub.token, it would be unsubscribing a *different* closure value
		// than the one actually registered.
		enabled := sub.compressionEnabled
		return func(e testEventA) {
			_ = enabled
		}
	}

	start := func() { sub.token = Subscribe(b, makeHandler()) }
	stop := func() { b.Unsubscribe(sub.token) }

	start()
	require.Equal(t, 1, SubscriberCount[testEventA](b))

	// Mutate the flag between start and stop — if stop re-derived the
	// handler it would build a new, different closure and the
	// subscription would leak.
	sub.compressionEnabled = true
	stop()

	assert.Equal(t, 0, SubscriberCount[testEventA](b))
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for subscribers")
	}
}
