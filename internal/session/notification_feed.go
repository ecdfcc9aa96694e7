package session

import (
	"context"
	"sync"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/rs/zerolog"
)

// NotificationFeed is the bounded per-user notification window. It keeps
// at most usecase.NotificationWindow entries, newest first, and an unread
// count scoped to that window. Deltas and refreshes both converge on the
// same invariant: unread equals the number of retained unread entries.
type NotificationFeed struct {
	userId        string
	notifications usecase.NotificationUsecase
	log           zerolog.Logger

	mu      sync.Mutex
	entries []entity.Notification
	unread  int
}

func NewNotificationFeed(userId string, notifications usecase.NotificationUsecase, log zerolog.Logger) *NotificationFeed {
	return &NotificationFeed{
		userId:        userId,
		notifications: notifications,
		log:           log.With().Str("component", "session.notifications").Str("userId", userId).Logger(),
	}
}

// Refresh replaces the window with the server's view.
func (f *NotificationFeed) Refresh(ctx context.Context) error {
	entries, unread, err := f.notifications.Recent(ctx, f.userId)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
	f.unread = unread
	return nil
}

// ApplyEvent folds one realtime change into the window.
func (f *NotificationFeed) ApplyEvent(ev rt.Event) {
	switch ev.Action {
	case rt.ActionInsert:
		var n entity.Notification
		if err := ev.DecodeNew(&n); err != nil {
			f.log.Error().Err(err).Msg("drop undecodable notification event")
			return
		}
		f.applyInsert(n)
	case rt.ActionUpdate:
		var n entity.Notification
		if err := ev.DecodeNew(&n); err != nil {
			f.log.Error().Err(err).Msg("drop undecodable notification event")
			return
		}
		f.applyUpdate(n)
	case rt.ActionDelete:
		var n entity.Notification
		if err := ev.DecodeOld(&n); err != nil {
			f.log.Error().Err(err).Msg("drop undecodable notification event")
			return
		}
		f.applyDelete(n.Id)
	}
}

func (f *NotificationFeed) applyInsert(n entity.Notification) {
	if n.RecipientId != f.userId {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.entries {
		if existing.Id == n.Id {
			return
		}
	}

	// Newest first; a fresh insert normally prepends, but a replayed
	// older one still lands in order.
	pos := 0
	for pos < len(f.entries) && f.entries[pos].CreatedAt.After(n.CreatedAt) {
		pos++
	}
	f.entries = append(f.entries, entity.Notification{})
	copy(f.entries[pos+1:], f.entries[pos:])
	f.entries[pos] = n

	if !n.IsRead() {
		f.unread++
	}

	// Trim to the window; an unread entry falling out leaves the count.
	for len(f.entries) > usecase.NotificationWindow {
		dropped := f.entries[len(f.entries)-1]
		f.entries = f.entries[:len(f.entries)-1]
		if !dropped.IsRead() {
			f.unread--
		}
	}
	if f.unread < 0 {
		f.unread = 0
	}
}

func (f *NotificationFeed) applyUpdate(n entity.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.entries {
		if f.entries[i].Id != n.Id {
			continue
		}
		wasRead := f.entries[i].IsRead()
		f.entries[i] = n
		if wasRead && !n.IsRead() {
			f.unread++
		} else if !wasRead && n.IsRead() {
			f.unread--
		}
		if f.unread < 0 {
			f.unread = 0
		}
		return
	}
}

func (f *NotificationFeed) applyDelete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.entries {
		if f.entries[i].Id != id {
			continue
		}
		wasUnread := !f.entries[i].IsRead()
		f.entries = append(f.entries[:i], f.entries[i+1:]...)
		if wasUnread {
			f.unread--
		}
		if f.unread < 0 {
			f.unread = 0
		}
		return
	}
}

// MarkRead persists read stamps for every unread entry in the window and
// zeroes the local count. Ids are taken from local state, so a second
// call with nothing unread is a no-op.
func (f *NotificationFeed) MarkRead(ctx context.Context) error {
	f.mu.Lock()
	ids := make([]string, 0, f.unread)
	for _, n := range f.entries {
		if !n.IsRead() {
			ids = append(ids, n.Id)
		}
	}
	f.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	if _, err := f.notifications.MarkRead(ctx, f.userId, ids); err != nil {
		return err
	}

	// Stamp locally as well; the update echoes then arrive as no-op
	// replacements instead of fresh read transitions.
	now := time.Now()
	f.mu.Lock()
	for i := range f.entries {
		if !f.entries[i].IsRead() {
			at := now
			f.entries[i].ReadAt = &at
		}
	}
	f.unread = 0
	f.mu.Unlock()
	return nil
}

// Unread reports the unread count within the retained window.
func (f *NotificationFeed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Snapshot returns the retained notifications, newest first.
func (f *NotificationFeed) Snapshot() []entity.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.Notification, len(f.entries))
	copy(out, f.entries)
	return out
}
