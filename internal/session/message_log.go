// Package session holds the per-user live view state: the open
// conversation's message log, the bounded notification feed, and the
// conversation list. Each value serializes its own mutations behind a
// mutex; readers get copied snapshots. Realtime events and fetch
// responses may interleave freely, so every applier is idempotent by
// record id.
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

type LogState int

const (
	LogEmpty LogState = iota
	LogLoading
	LogLoaded
	LogLoadingMore
)

// MessageLog is the in-memory log for one open conversation. Display
// order is ascending creation time, established at first observation;
// same-timestamp messages keep their per-conversation sequence order and
// are never re-sorted.
type MessageLog struct {
	conversationId string
	selfId         string
	messages       usecase.MessageUsecase
	log            zerolog.Logger

	// OnEvent, when set before Attach, observes each applied event.
	OnEvent func(ev rt.Event)

	mu      sync.Mutex
	state   LogState
	entries []entity.Message
	seen    map[string]struct{}
	pending []entity.Message
	page    int
	hasMore bool
	closed  bool
	sub     rt.Subscription
}

func NewMessageLog(conversationId, selfId string, messages usecase.MessageUsecase, log zerolog.Logger) *MessageLog {
	return &MessageLog{
		conversationId: conversationId,
		selfId:         selfId,
		messages:       messages,
		log:            log.With().Str("component", "session.log").Str("conversationId", conversationId).Logger(),
		seen:           make(map[string]struct{}),
		hasMore:        true,
	}
}

func (l *MessageLog) ConversationId() string {
	return l.conversationId
}

func (l *MessageLog) State() LogState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *MessageLog) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Attach hands the log its realtime subscription and starts the pump.
// The log owns the handle from here on and releases it in Close.
func (l *MessageLog) Attach(sub rt.Subscription) {
	l.mu.Lock()
	l.sub = sub
	l.mu.Unlock()

	go func() {
		for ev := range sub.Events() {
			if err := l.ApplyEvent(ev); err != nil {
				// The row in the event is unusable; fall back to a
				// delta fetch so the log still converges.
				l.log.Warn().Err(err).Msg("event not applicable, catching up")
				if err := l.CatchUp(context.Background()); err != nil {
					l.log.Error().Err(err).Msg("catch-up fetch failed")
				}
			}
			if l.OnEvent != nil {
				l.OnEvent(ev)
			}
		}
	}()
}

// LoadInitial fetches the newest page. The fetch runs without the lock;
// a log closed mid-flight discards the response instead of applying it
// to an abandoned scope.
func (l *MessageLog) LoadInitial(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.state = LogLoading
	l.mu.Unlock()

	page, err := l.messages.Page(ctx, l.conversationId, l.selfId, 0)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	if err != nil {
		l.state = LogEmpty
		return err
	}

	// Fetched newest-first; merge in display order. Live events that
	// raced the fetch are already in entries, the merge dedupes them.
	for i := len(page.Messages) - 1; i >= 0; i-- {
		l.insertLocked(page.Messages[i])
	}
	l.page = 0
	l.hasMore = page.HasMore
	l.state = LogLoaded
	return nil
}

// LoadOlder prepends the next older page. Existing entries keep their
// identity and order, so a scroll anchor over them survives the prepend.
func (l *MessageLog) LoadOlder(ctx context.Context) error {
	l.mu.Lock()
	if l.closed || l.state != LogLoaded || !l.hasMore {
		l.mu.Unlock()
		return nil
	}
	l.state = LogLoadingMore
	nextPage := l.page + 1
	l.mu.Unlock()

	page, err := l.messages.Page(ctx, l.conversationId, l.selfId, nextPage)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.state = LogLoaded
	if err != nil {
		return err
	}

	for i := len(page.Messages) - 1; i >= 0; i-- {
		l.insertLocked(page.Messages[i])
	}
	l.page = nextPage
	l.hasMore = page.HasMore
	return nil
}

// CatchUp fetches messages newer than the last one held, for delta
// recovery when an event could not be applied as delivered. The merge
// is idempotent, so overlap with already-delivered live events is
// harmless.
func (l *MessageLog) CatchUp(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	var after time.Time
	var afterSeq int64
	if len(l.entries) > 0 {
		last := l.entries[len(l.entries)-1]
		after = last.CreatedAt
		afterSeq = last.Seq
	}
	l.mu.Unlock()

	newer, err := l.messages.Since(ctx, l.conversationId, l.selfId, after, afterSeq)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	for _, msg := range newer {
		l.insertLocked(msg)
	}
	return nil
}

// ApplyEvent reconciles one realtime change into the log. A non-nil
// error means the event's row could not be decoded and the change was
// not applied.
func (l *MessageLog) ApplyEvent(ev rt.Event) error {
	switch ev.Action {
	case rt.ActionInsert, rt.ActionUpdate:
		var msg entity.Message
		if err := ev.DecodeNew(&msg); err != nil {
			return err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed || msg.ConversationId != l.conversationId {
			return nil
		}
		if ev.Action == rt.ActionInsert {
			l.insertLocked(msg)
		} else {
			l.replaceLocked(msg)
		}
	case rt.ActionDelete:
		var msg entity.Message
		if err := ev.DecodeOld(&msg); err != nil {
			return err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			return nil
		}
		l.removeLocked(msg.Id)
	}
	return nil
}

// AppendPending records an optimistic local entry. It renders after the
// confirmed log until the echo with the same client ref replaces it.
func (l *MessageLog) AppendPending(msg entity.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.pending = append(l.pending, msg)
}

// RemovePending rolls back an optimistic entry whose send failed.
func (l *MessageLog) RemovePending(clientRef string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.pending {
		if p.ClientRef == clientRef {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}

// MarkRead persists the read transition and mirrors it locally.
// Returns how many messages actually transitioned.
func (l *MessageLog) MarkRead(ctx context.Context) (int64, error) {
	modified, err := l.messages.MarkConversationRead(ctx, l.conversationId, l.selfId)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return modified, nil
	}
	for i := range l.entries {
		if l.entries[i].SenderId != l.selfId && !l.entries[i].IsRead() {
			at := now
			l.entries[i].ReadAt = &at
		}
	}
	return modified, nil
}

// Snapshot returns the display list: confirmed entries in order, then
// pending optimistic entries.
func (l *MessageLog) Snapshot() []entity.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]entity.Message, 0, len(l.entries)+len(l.pending))
	out = append(out, l.entries...)
	out = append(out, l.pending...)
	return out
}

func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close abandons the scope: the subscription is released and any
// fetch still in flight will be discarded when it lands.
func (l *MessageLog) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// insertLocked places msg in order, dropping duplicates by id and
// clearing a pending entry confirmed by the same client ref.
func (l *MessageLog) insertLocked(msg entity.Message) {
	if _, ok := l.seen[msg.Id]; ok {
		return
	}
	l.seen[msg.Id] = struct{}{}

	if msg.ClientRef != "" {
		for i, p := range l.pending {
			if p.ClientRef == msg.ClientRef {
				l.pending = append(l.pending[:i], l.pending[i+1:]...)
				break
			}
		}
	}

	// Common case: newest message appends.
	pos := len(l.entries)
	for pos > 0 && msg.Before(l.entries[pos-1]) {
		pos--
	}
	l.entries = append(l.entries, entity.Message{})
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = msg
}

func (l *MessageLog) replaceLocked(msg entity.Message) {
	for i := range l.entries {
		if l.entries[i].Id == msg.Id {
			l.entries[i] = msg
			return
		}
	}
}

func (l *MessageLog) removeLocked(id string) {
	for i := range l.entries {
		if l.entries[i].Id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			delete(l.seen, id)
			return
		}
	}
}
