package rt

import (
	"context"
	"sync"
)

// MemoryFeed is the single-server feed: events are fanned out in-process
// to every subscriber of the scope channel. Slow subscribers drop events
// rather than blocking the publisher; a drop is not signalled, so a
// lagging view only converges on its next explicit fetch.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[string][]*memorySubscription
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		subs: make(map[string][]*memorySubscription),
	}
}

type memorySubscription struct {
	feed    *MemoryFeed
	channel string
	events  chan Event
	once    sync.Once
}

func (s *memorySubscription) Events() <-chan Event {
	return s.events
}

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.events)
	})
}

func (f *MemoryFeed) Publish(ctx context.Context, ev Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs[channelName(ev.Table, ev.Key)] {
		select {
		case sub.events <- ev:
		default:
		}
	}

	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, table, key string) (Subscription, error) {
	sub := &memorySubscription{
		feed:    f,
		channel: channelName(table, key),
		events:  make(chan Event, 64),
	}

	f.mu.Lock()
	f.subs[sub.channel] = append(f.subs[sub.channel], sub)
	f.mu.Unlock()

	return sub, nil
}

func (f *MemoryFeed) remove(sub *memorySubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs := f.subs[sub.channel]
	for i, s := range subs {
		if s == sub {
			f.subs[sub.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(f.subs[sub.channel]) == 0 {
		delete(f.subs, sub.channel)
	}
}

// SubscriberCount reports how many subscriptions a scope has open.
// Useful for leak checks when a session ends.
func (f *MemoryFeed) SubscriberCount(table, key string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[channelName(table, key)])
}
