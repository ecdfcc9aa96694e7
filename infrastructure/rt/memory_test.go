package rt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Id      string `json:"id"`
	Content string `json:"content"`
}

func TestMemoryFeedDeliversToScopeSubscribers(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, TableMessages, "conv-1")
	require.NoError(t, err)
	defer sub.Close()

	other, err := feed.Subscribe(ctx, TableMessages, "conv-2")
	require.NoError(t, err)
	defer other.Close()

	ev, err := NewEvent(ActionInsert, TableMessages, "conv-1", row{Id: "m1", Content: "hi"}, nil)
	require.NoError(t, err)
	require.NoError(t, feed.Publish(ctx, ev))

	select {
	case got := <-sub.Events():
		var decoded row
		require.NoError(t, got.DecodeNew(&decoded))
		assert.Equal(t, "m1", decoded.Id)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the event")
	}

	select {
	case got := <-other.Events():
		t.Fatalf("unexpected delivery to another scope: %+v", got)
	default:
	}
}

func TestMemoryFeedCloseRemovesSubscriber(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, TableMessages, "conv-1")
	require.NoError(t, err)
	require.Equal(t, 1, feed.SubscriberCount(TableMessages, "conv-1"))

	sub.Close()
	assert.Equal(t, 0, feed.SubscriberCount(TableMessages, "conv-1"))

	// Double close is safe.
	sub.Close()

	// Publishing to the emptied scope is a no-op, not a panic.
	ev, err := NewEvent(ActionInsert, TableMessages, "conv-1", row{Id: "m1"}, nil)
	require.NoError(t, err)
	assert.NoError(t, feed.Publish(ctx, ev))

	// The closed subscription's channel is closed.
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestMemoryFeedSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	feed := NewMemoryFeed()
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, TableMessages, "conv-1")
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			ev, _ := NewEvent(ActionInsert, TableMessages, "conv-1", row{Id: "m"}, nil)
			feed.Publish(ctx, ev)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
