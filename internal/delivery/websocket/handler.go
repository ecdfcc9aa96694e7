package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/infrastructure/ws"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/session"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler upgrades connections and binds each one to a live
// session. The session applies realtime events to its own state and the
// handler forwards them down the socket.
type WebsocketHandler struct {
	hub     ws.IHub
	authUc  usecase.AuthUsecase
	convUc  usecase.ConversationUsecase
	msgUc   usecase.MessageUsecase
	notifUc usecase.NotificationUsecase
	feed    rt.Feed
	log     zerolog.Logger

	// Sessions are keyed by connection, not user id: when a reconnect
	// replaces a client, the old connection's unregister must tear down
	// its own session, not the new one.
	mu       sync.Mutex
	sessions map[*ws.UserClient]*session.Session
}

func NewWebsocketHandler(
	hub ws.IHub,
	authUc usecase.AuthUsecase,
	convUc usecase.ConversationUsecase,
	msgUc usecase.MessageUsecase,
	notifUc usecase.NotificationUsecase,
	feed rt.Feed,
	log zerolog.Logger,
) *WebsocketHandler {
	h := &WebsocketHandler{
		hub:      hub,
		authUc:   authUc,
		convUc:   convUc,
		msgUc:    msgUc,
		notifUc:  notifUc,
		feed:     feed,
		log:      log.With().Str("component", "websocket").Logger(),
		sessions: make(map[*ws.UserClient]*session.Session),
	}
	hub.SetOnClientUnregister(h.handleUnregister)
	return h
}

// GET /ws?token=<access token>
func (h *WebsocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authUc.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("upgrade failed")
		return
	}

	userId := claims.UserId
	client := ws.NewClient(userId, h.hub, conn, h.log)
	h.hub.RegisterClient(client)

	sess := session.NewSession(userId, h.convUc, h.msgUc, h.notifUc, h.feed, h.log)
	sess.OnEvent = func(ev rt.Event) {
		h.push(userId, Frame{Type: FrameEvent, Event: ev})
	}
	// Start emits the basic snapshot before the refined one; both phases
	// reach the client as separate frames.
	sess.OnConversations = func(summaries []entity.ConversationSummary) {
		h.push(userId, Frame{Type: FrameConversations, Conversations: summaries})
	}

	h.mu.Lock()
	h.sessions[client] = sess
	h.mu.Unlock()

	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		h.log.Error().Err(err).Str("userId", userId).Msg("session start failed")
	}
	h.push(userId, Frame{
		Type:          FrameNotifications,
		Notifications: sess.Notifications.Snapshot(),
		Unread:        sess.Notifications.Unread(),
	})

	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.handleCommand(ctx, sess, data)
	})
}

func (h *WebsocketHandler) handleUnregister(client *ws.UserClient) error {
	h.mu.Lock()
	sess, ok := h.sessions[client]
	if ok {
		delete(h.sessions, client)
	}
	h.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	return nil
}

func (h *WebsocketHandler) handleCommand(ctx context.Context, sess *session.Session, data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		h.push(sess.UserId(), Frame{Type: FrameError, Message: "invalid frame"})
		return
	}

	switch cmd.Type {
	case CommandOpen:
		if cmd.ConversationId == "" {
			h.push(sess.UserId(), Frame{Type: FrameError, Message: "conversationId is required"})
			return
		}
		msgLog, err := sess.OpenConversation(ctx, cmd.ConversationId)
		if err != nil {
			h.log.Warn().Err(err).Str("conversationId", cmd.ConversationId).Msg("open conversation failed")
			h.push(sess.UserId(), Frame{Type: FrameError, Message: "could not open conversation"})
			return
		}
		if msgLog != nil {
			h.pushLog(sess.UserId(), msgLog)
		}

	case CommandClose:
		sess.CloseConversation()

	case CommandLoadOlder:
		msgLog := sess.OpenLog()
		if msgLog == nil {
			return
		}
		if err := msgLog.LoadOlder(ctx); err != nil {
			h.log.Warn().Err(err).Msg("load older failed")
			return
		}
		h.pushLog(sess.UserId(), msgLog)

	case CommandSend:
		_, err := sess.Send(ctx, usecase.SendMessageRequest{
			ConversationId: cmd.ConversationId,
			Content:        cmd.Content,
			ClientRef:      cmd.ClientRef,
		})
		if err != nil {
			h.log.Warn().Err(err).Str("conversationId", cmd.ConversationId).Msg("send failed")
			h.push(sess.UserId(), Frame{Type: FrameError, Message: "could not send message"})
		}

	case CommandRead:
		msgLog := sess.OpenLog()
		if msgLog == nil || msgLog.ConversationId() != cmd.ConversationId {
			return
		}
		if _, err := msgLog.MarkRead(ctx); err != nil {
			h.log.Warn().Err(err).Msg("mark read failed")
			return
		}
		// Badges recount after a read transition.
		if err := sess.RefreshList(ctx); err != nil {
			h.log.Warn().Err(err).Msg("badge recount failed")
		}

	case CommandReadNotifications:
		if err := sess.Notifications.MarkRead(ctx); err != nil {
			h.log.Warn().Err(err).Msg("mark notifications read failed")
			return
		}
		h.push(sess.UserId(), Frame{
			Type:          FrameNotifications,
			Notifications: sess.Notifications.Snapshot(),
			Unread:        sess.Notifications.Unread(),
		})

	default:
		h.push(sess.UserId(), Frame{Type: FrameError, Message: "unknown command"})
	}
}

func (h *WebsocketHandler) pushLog(userId string, msgLog *session.MessageLog) {
	h.push(userId, Frame{
		Type:           FrameMessages,
		ConversationId: msgLog.ConversationId(),
		Messages:       msgLog.Snapshot(),
		HasMore:        msgLog.HasMore(),
	})
}

func (h *WebsocketHandler) push(userId string, frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal frame")
		return
	}
	h.hub.SendToClient(userId, data)
}
