package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTypedSubscription(t *testing.T) {
	b := New()
	defer b.Close()

	var mu sync.Mutex
	var got []Event

	b.Subscribe(EventResolved, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	require.NoError(t, b.Publish(NewEvent(EventResolved, "req-1")))
	require.NoError(t, b.Publish(NewEvent(EventRouted, "req-1"))) // different type, not delivered

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	assert.Equal(t, EventResolved, got[0].Type)
	assert.Equal(t, "req-1", got[0].RequestID)
	mu.Unlock()
}

func TestWildcardSubscription(t *testing.T) {
	b := New()
	defer b.Close()

	var count sync.WaitGroup
	count.Add(3)
	b.Subscribe("", func(e Event) { count.Done() })

	b.Publish(NewEvent(EventClassified, "r"))
	b.Publish(NewEvent(EventRouted, "r"))
	b.Publish(NewEvent(EventResolved, "r"))

	done := make(chan struct{})
	go func() { count.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wildcard subscriber did not receive all events")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	id := b.Subscribe(EventResolved, func(e Event) {})
	require.Equal(t, 1, b.SubscriptionsCount())

	require.NoError(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionsCount())

	assert.Error(t, b.Unsubscribe(id))
}

func TestHistoryForRequest(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish(NewEvent(EventClassified, "req-a"))
	b.Publish(NewEvent(EventClassified, "req-b"))
	b.Publish(NewEvent(EventResolved, "req-a"))

	events := b.HistoryFor("req-a")
	require.Len(t, events, 2)
	assert.Equal(t, EventClassified, events[0].Type)
	assert.Equal(t, EventResolved, events[1].Type)

	assert.Len(t, b.History(), 3)
}

func TestHistoryBounded(t *testing.T) {
	b := NewWithHistory(5)
	defer b.Close()

	for i := 0; i < 20; i++ {
		b.Publish(NewEvent(EventBackendStarted, "req"))
	}

	assert.Len(t, b.History(), 5)
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New()
	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(NewEvent(EventResolved, "r")))
	assert.Error(t, b.Close())
}
