package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifications struct {
	mu      sync.Mutex
	stored  []entity.Notification // newest first
	markers [][]string
}

func (f *fakeNotifications) Notify(ctx context.Context, n entity.Notification) (entity.Notification, bool, error) {
	return n, true, nil
}

func (f *fakeNotifications) Recent(ctx context.Context, userId string) ([]entity.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.stored
	if len(out) > usecase.NotificationWindow {
		out = out[:usecase.NotificationWindow]
	}
	unread := 0
	for _, n := range out {
		if !n.IsRead() {
			unread++
		}
	}
	result := make([]entity.Notification, len(out))
	copy(result, out)
	return result, unread, nil
}

func (f *fakeNotifications) MarkRead(ctx context.Context, userId string, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers = append(f.markers, ids)

	now := time.Now()
	var modified int64
	for i := range f.stored {
		for _, id := range ids {
			if f.stored[i].Id == id && !f.stored[i].IsRead() {
				at := now
				f.stored[i].ReadAt = &at
				modified++
			}
		}
	}
	return modified, nil
}

func notif(id string, at int64, read bool) entity.Notification {
	n := entity.Notification{
		Id:          id,
		RecipientId: "self",
		ActorId:     "actor",
		Type:        entity.NotificationPostLike,
		CreatedAt:   testBase.Add(time.Duration(at) * time.Second),
	}
	if read {
		readAt := n.CreatedAt.Add(time.Second)
		n.ReadAt = &readAt
	}
	return n
}

func newTestFeed(fake *fakeNotifications) *NotificationFeed {
	return NewNotificationFeed("self", fake, zerolog.Nop())
}

func notifInsert(t *testing.T, n entity.Notification) rt.Event {
	t.Helper()
	ev, err := rt.NewEvent(rt.ActionInsert, rt.TableNotifications, n.RecipientId, n, nil)
	require.NoError(t, err)
	return ev
}

func notifUpdate(t *testing.T, n entity.Notification) rt.Event {
	t.Helper()
	ev, err := rt.NewEvent(rt.ActionUpdate, rt.TableNotifications, n.RecipientId, n, nil)
	require.NoError(t, err)
	return ev
}

func notifDelete(t *testing.T, n entity.Notification) rt.Event {
	t.Helper()
	ev, err := rt.NewEvent(rt.ActionDelete, rt.TableNotifications, n.RecipientId, nil, n)
	require.NoError(t, err)
	return ev
}

func TestNotificationFeedWindowBounded(t *testing.T) {
	f := newTestFeed(&fakeNotifications{})

	for i := 1; i <= usecase.NotificationWindow+10; i++ {
		f.ApplyEvent(notifInsert(t, notif(fmt.Sprintf("n-%03d", i), int64(i), false)))
	}

	snapshot := f.Snapshot()
	require.Len(t, snapshot, usecase.NotificationWindow)

	// Newest first, and the oldest ten fell out.
	assert.Equal(t, "n-040", snapshot[0].Id)
	assert.Equal(t, "n-011", snapshot[len(snapshot)-1].Id)
	assert.Equal(t, usecase.NotificationWindow, f.Unread())
}

func TestNotificationFeedUnreadMatchesWindowTruth(t *testing.T) {
	f := newTestFeed(&fakeNotifications{})

	f.ApplyEvent(notifInsert(t, notif("a", 1, false)))
	f.ApplyEvent(notifInsert(t, notif("b", 2, true)))
	f.ApplyEvent(notifInsert(t, notif("c", 3, false)))
	assert.Equal(t, 2, f.Unread())

	// Read transition via update.
	f.ApplyEvent(notifUpdate(t, notif("a", 1, true)))
	assert.Equal(t, 1, f.Unread())

	// Same update replayed must not double-decrement.
	f.ApplyEvent(notifUpdate(t, notif("a", 1, true)))
	assert.Equal(t, 1, f.Unread())

	// Deleting the remaining unread entry lands at zero, not below.
	f.ApplyEvent(notifDelete(t, notif("c", 3, false)))
	assert.Equal(t, 0, f.Unread())
	f.ApplyEvent(notifDelete(t, notif("b", 2, true)))
	assert.Equal(t, 0, f.Unread())
}

func TestNotificationFeedDuplicateInsertIgnored(t *testing.T) {
	f := newTestFeed(&fakeNotifications{})

	n := notif("a", 1, false)
	f.ApplyEvent(notifInsert(t, n))
	f.ApplyEvent(notifInsert(t, n))

	assert.Len(t, f.Snapshot(), 1)
	assert.Equal(t, 1, f.Unread())
}

func TestNotificationFeedOutOfOrderInsertKeepsDisplayOrder(t *testing.T) {
	f := newTestFeed(&fakeNotifications{})

	f.ApplyEvent(notifInsert(t, notif("newest", 10, false)))
	f.ApplyEvent(notifInsert(t, notif("older", 5, false)))

	snapshot := f.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, "newest", snapshot[0].Id)
	assert.Equal(t, "older", snapshot[1].Id)
}

func TestNotificationFeedMarkReadIsIdempotent(t *testing.T) {
	fake := &fakeNotifications{}
	for i := 5; i >= 1; i-- {
		fake.stored = append([]entity.Notification{notif(fmt.Sprintf("n-%d", i), int64(i), false)}, fake.stored...)
	}
	f := newTestFeed(fake)
	require.NoError(t, f.Refresh(context.Background()))
	require.Equal(t, 5, f.Unread())

	require.NoError(t, f.MarkRead(context.Background()))
	assert.Equal(t, 0, f.Unread())
	require.Len(t, fake.markers, 1)
	assert.Len(t, fake.markers[0], 5)

	// Second call has nothing unread locally and must not touch storage.
	require.NoError(t, f.MarkRead(context.Background()))
	assert.Len(t, fake.markers, 1)
}

func TestNotificationFeedIgnoresOtherRecipients(t *testing.T) {
	f := newTestFeed(&fakeNotifications{})

	foreign := notif("x", 1, false)
	foreign.RecipientId = "someone-else"
	f.ApplyEvent(notifInsert(t, foreign))

	assert.Len(t, f.Snapshot(), 0)
	assert.Equal(t, 0, f.Unread())
}
