package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events retained for replay.
	DefaultHistorySize = 1000

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	DefaultChannelBuffer = 100
)

// SubscriptionID is a unique identifier for event subscriptions.
type SubscriptionID string

// subscription represents a single event subscription.
type subscription struct {
	id        SubscriptionID
	eventType EventType
	handler   func(Event)
	ch        chan Event
	done      chan struct{}
}

// Bus is a thread-safe pub/sub hub with wildcard support and bounded
// event history. Publishing never blocks: slow subscribers drop events.
type Bus struct {
	mu         sync.RWMutex
	subs       map[SubscriptionID]*subscription
	typedSubs  map[EventType]map[SubscriptionID]*subscription
	wildcards  map[SubscriptionID]*subscription
	subCounter uint64

	historyMu   sync.RWMutex
	history     []Event
	historySize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New creates a new bus with default configuration.
func New() *Bus {
	return NewWithHistory(DefaultHistorySize)
}

// NewWithHistory creates a new bus with a custom history size.
func NewWithHistory(historySize int) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subs:        make(map[SubscriptionID]*subscription),
		typedSubs:   make(map[EventType]map[SubscriptionID]*subscription),
		wildcards:   make(map[SubscriptionID]*subscription),
		history:     make([]Event, 0, historySize),
		historySize: historySize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a handler for a specific event type.
// Use EventType("") to subscribe to all events (wildcard).
func (b *Bus) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if b.closed.Load() {
		return ""
	}

	b.mu.Lock()
	b.subCounter++
	id := SubscriptionID(fmt.Sprintf("sub_%d", b.subCounter))

	sub := &subscription{
		id:        id,
		eventType: eventType,
		handler:   handler,
		ch:        make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}

	b.subs[id] = sub
	if eventType == "" {
		b.wildcards[id] = sub
	} else {
		if b.typedSubs[eventType] == nil {
			b.typedSubs[eventType] = make(map[SubscriptionID]*subscription)
		}
		b.typedSubs[eventType][id] = sub
	}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.drain(sub)

	return id
}

// drain delivers events to one subscriber until it is removed.
func (b *Bus) drain(sub *subscription) {
	defer b.wg.Done()

	for {
		select {
		case event := <-sub.ch:
			sub.handler(event)
		case <-sub.done:
			return
		case <-b.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes a subscription by ID.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	b.mu.Lock()
	sub, exists := b.subs[id]
	if !exists {
		b.mu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(b.subs, id)
	delete(b.wildcards, id)
	if subs, ok := b.typedSubs[sub.eventType]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.typedSubs, sub.eventType)
		}
	}
	b.mu.Unlock()

	close(sub.done)
	return nil
}

// Publish sends an event to all matching subscribers.
func (b *Bus) Publish(event Event) error {
	if b.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	b.addToHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.wildcards {
		select {
		case sub.ch <- event:
		default:
			// Channel full, drop event for this subscriber
		}
	}

	if subs, ok := b.typedSubs[event.Type]; ok {
		for _, sub := range subs {
			select {
			case sub.ch <- event:
			default:
			}
		}
	}

	return nil
}

// addToHistory appends an event to the bounded history buffer.
func (b *Bus) addToHistory(event Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
}

// History returns a copy of the recent event history.
func (b *Bus) History() []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	out := make([]Event, len(b.history))
	copy(out, b.history)
	return out
}

// HistoryFor returns the retained events for one request, oldest first.
func (b *Bus) HistoryFor(requestID string) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	var out []Event
	for _, e := range b.history {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out
}

// SubscriptionsCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionsCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the bus and all subscriptions.
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus already closed")
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[SubscriptionID]*subscription)
	b.typedSubs = make(map[EventType]map[SubscriptionID]*subscription)
	b.wildcards = make(map[SubscriptionID]*subscription)
	b.mu.Unlock()

	return nil
}
