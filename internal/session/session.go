package session

import (
	"context"
	"sync"

	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/rs/zerolog"
)

// Session is the live state for one connected user: the conversation
// list, the notification feed, and at most one open message log. Opening
// a conversation closes the previous log first, so a stale fetch can
// never write into the newly opened one.
type Session struct {
	userId        string
	conversations usecase.ConversationUsecase
	messages      usecase.MessageUsecase
	notifications usecase.NotificationUsecase
	feed          rt.Feed
	log           zerolog.Logger

	List          *ConversationList
	Notifications *NotificationFeed

	mu       sync.Mutex
	open     *MessageLog
	notifSub rt.Subscription
	closed   bool

	// OnEvent, when set before Start, observes every realtime event the
	// session consumes, after it has been applied. Used to push deltas
	// down a websocket.
	OnEvent func(ev rt.Event)

	// OnConversations, when set before Start, receives each new
	// conversation list snapshot: the basic phase, the refined phase,
	// and every recount after that.
	OnConversations func(summaries []entity.ConversationSummary)
}

func NewSession(
	userId string,
	conversations usecase.ConversationUsecase,
	messages usecase.MessageUsecase,
	notifications usecase.NotificationUsecase,
	feed rt.Feed,
	log zerolog.Logger,
) *Session {
	return &Session{
		userId:        userId,
		conversations: conversations,
		messages:      messages,
		notifications: notifications,
		feed:          feed,
		log:           log.With().Str("component", "session").Str("userId", userId).Logger(),
		List:          NewConversationList(userId, conversations),
		Notifications: NewNotificationFeed(userId, notifications, log),
	}
}

func (s *Session) UserId() string {
	return s.userId
}

// Start subscribes to the user's notification stream and loads the
// initial state: basic list first, then the refined list and the
// notification window.
func (s *Session) Start(ctx context.Context) error {
	sub, err := s.feed.Subscribe(ctx, rt.TableNotifications, s.userId)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Close()
		return nil
	}
	s.notifSub = sub
	s.mu.Unlock()

	go s.pumpNotifications(sub)

	// Two-phase list emission: the cheap placeholder snapshot goes out
	// first, the refined one follows.
	if err := s.List.RefreshBasic(ctx); err != nil {
		s.log.Warn().Err(err).Msg("basic conversation list failed")
	} else {
		s.emitList()
	}
	if err := s.List.Refresh(ctx); err != nil {
		return err
	}
	s.emitList()
	return s.Notifications.Refresh(ctx)
}

func (s *Session) pumpNotifications(sub rt.Subscription) {
	for ev := range sub.Events() {
		s.Notifications.ApplyEvent(ev)
		s.emit(ev)
	}
}

// OpenConversation switches the session's open log. The previous log is
// closed before the new one attaches, and the initial page loads after
// the subscription is live so nothing slips between fetch and stream.
func (s *Session) OpenConversation(ctx context.Context, conversationId string) (*MessageLog, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	prev := s.open
	s.open = nil
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	sub, err := s.feed.Subscribe(ctx, rt.TableMessages, conversationId)
	if err != nil {
		return nil, err
	}

	msgLog := NewMessageLog(conversationId, s.userId, s.messages, s.log)
	msgLog.OnEvent = s.emit
	msgLog.Attach(sub)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		msgLog.Close()
		return nil, nil
	}
	s.open = msgLog
	s.mu.Unlock()

	if err := msgLog.LoadInitial(ctx); err != nil {
		return msgLog, err
	}

	// Entering a conversation clears its unread state; the list badge
	// recounts right after.
	if _, err := msgLog.MarkRead(ctx); err != nil {
		s.log.Warn().Err(err).Str("conversationId", conversationId).Msg("mark read on open failed")
	} else if err := s.RefreshList(ctx); err != nil {
		s.log.Warn().Err(err).Msg("badge recount failed")
	}

	return msgLog, nil
}

// RefreshList rebuilds the conversation list, including unread badges,
// and emits the new snapshot.
func (s *Session) RefreshList(ctx context.Context) error {
	if err := s.List.Refresh(ctx); err != nil {
		return err
	}
	s.emitList()
	return nil
}

// OpenLog returns the currently open message log, if any.
func (s *Session) OpenLog() *MessageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session) CloseConversation() {
	s.mu.Lock()
	open := s.open
	s.open = nil
	s.mu.Unlock()

	if open != nil {
		open.Close()
	}
}

// Send sends through the message usecase and records an optimistic
// pending entry in the open log keyed by the client ref. A failed send
// rolls the pending entry back so no ghost message survives.
func (s *Session) Send(ctx context.Context, req usecase.SendMessageRequest) (entity.Message, error) {
	req.SenderId = s.userId

	s.mu.Lock()
	open := s.open
	s.mu.Unlock()

	var pendingIn *MessageLog
	if open != nil && open.ConversationId() == req.ConversationId && req.ClientRef != "" {
		pendingIn = open
		open.AppendPending(entity.Message{
			ConversationId: req.ConversationId,
			SenderId:       s.userId,
			Content:        req.Content,
			ClientRef:      req.ClientRef,
		})
	}

	sent, err := s.messages.Send(ctx, req)
	if err != nil && pendingIn != nil {
		pendingIn.RemovePending(req.ClientRef)
	}
	return sent, err
}

// Close tears the session down: the notification subscription and any
// open log are released. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	open := s.open
	s.open = nil
	sub := s.notifSub
	s.notifSub = nil
	s.mu.Unlock()

	if open != nil {
		open.Close()
	}
	if sub != nil {
		sub.Close()
	}
}

func (s *Session) emit(ev rt.Event) {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}

func (s *Session) emitList() {
	if s.OnConversations != nil {
		s.OnConversations(s.List.Snapshot())
	}
}
