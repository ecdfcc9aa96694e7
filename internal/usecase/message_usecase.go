package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/blob"
	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/repository"

	"github.com/rs/zerolog"
)

var ErrEmptyMessage = errors.New("message needs content or an image")

// MessagePageSize is how many messages one page holds; page 0 is the most
// recent slice of the log.
const MessagePageSize = 50

type SendMessageRequest struct {
	ConversationId string
	SenderId       string
	Content        string
	ClientRef      string

	// Optional attached image.
	Image            []byte
	ImageContentType string
}

type MessageUsecase interface {
	// Page fetches one descending page. HasMore is derived from the page
	// being full, matching offset pagination against a growing log.
	Page(ctx context.Context, conversationId, userId string, page int) (entity.MessagePage, error)

	// Since fetches everything newer than the given position, ascending.
	// Used for delta catch-up after a realtime (re)subscribe.
	Since(ctx context.Context, conversationId, userId string, after time.Time, afterSeq int64) ([]entity.Message, error)

	Send(ctx context.Context, req SendMessageRequest) (entity.Message, error)

	// MarkConversationRead marks every unread message not sent by userId
	// as read now. Idempotent; returns how many actually transitioned.
	MarkConversationRead(ctx context.Context, conversationId, userId string) (int64, error)
}

type messageUsecase struct {
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	blobs       blob.Store
	feed        rt.Feed
	log         zerolog.Logger
}

func NewMessageUsecase(
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	blobs blob.Store,
	feed rt.Feed,
	log zerolog.Logger,
) MessageUsecase {
	return &messageUsecase{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		blobs:       blobs,
		feed:        feed,
		log:         log.With().Str("component", "messages").Logger(),
	}
}

func (m *messageUsecase) Page(ctx context.Context, conversationId, userId string, page int) (entity.MessagePage, error) {
	isMember, err := m.convRepo.IsMember(ctx, userId, conversationId)
	if err != nil {
		return entity.MessagePage{}, err
	}
	if !isMember {
		return entity.MessagePage{}, ErrNotMember
	}

	messages, err := m.messageRepo.PageDesc(ctx, entity.MessagePageFilter{
		ConversationId: conversationId,
		Limit:          MessagePageSize,
		Offset:         page * MessagePageSize,
	})
	if err != nil {
		return entity.MessagePage{}, err
	}

	return entity.MessagePage{
		Messages: messages,
		HasMore:  len(messages) == MessagePageSize,
	}, nil
}

func (m *messageUsecase) Since(ctx context.Context, conversationId, userId string, after time.Time, afterSeq int64) ([]entity.Message, error) {
	isMember, err := m.convRepo.IsMember(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	return m.messageRepo.Since(ctx, conversationId, after, afterSeq)
}

func (m *messageUsecase) Send(ctx context.Context, req SendMessageRequest) (entity.Message, error) {
	if req.Content == "" && len(req.Image) == 0 {
		return entity.Message{}, ErrEmptyMessage
	}

	isMember, err := m.convRepo.IsMember(ctx, req.SenderId, req.ConversationId)
	if err != nil {
		return entity.Message{}, err
	}
	if !isMember {
		return entity.Message{}, ErrNotMember
	}

	var imageUrl string
	if len(req.Image) > 0 {
		key := fmt.Sprintf("%s-%d.jpg", req.SenderId, time.Now().UnixMilli())
		imageUrl, err = m.blobs.Upload(ctx, key, req.Image, req.ImageContentType)
		if err != nil {
			return entity.Message{}, fmt.Errorf("image upload: %w", err)
		}
	}

	message, err := m.messageRepo.Insert(ctx, entity.Message{
		ConversationId: req.ConversationId,
		SenderId:       req.SenderId,
		Content:        req.Content,
		ImageUrl:       imageUrl,
		ClientRef:      req.ClientRef,
	})
	if err != nil {
		return entity.Message{}, err
	}

	if err := m.convRepo.Touch(ctx, req.ConversationId, message.CreatedAt); err != nil {
		m.log.Warn().Err(err).Str("conversationId", req.ConversationId).Msg("touch after send failed")
	}

	m.publish(ctx, rt.ActionInsert, message)
	return message, nil
}

func (m *messageUsecase) MarkConversationRead(ctx context.Context, conversationId, userId string) (int64, error) {
	isMember, err := m.convRepo.IsMember(ctx, userId, conversationId)
	if err != nil {
		return 0, err
	}
	if !isMember {
		return 0, ErrNotMember
	}

	return m.messageRepo.MarkRead(ctx, conversationId, userId, time.Now())
}

func (m *messageUsecase) publish(ctx context.Context, action rt.Action, message entity.Message) {
	ev, err := rt.NewEvent(action, rt.TableMessages, message.ConversationId, message, nil)
	if err != nil {
		m.log.Error().Err(err).Str("messageId", message.Id).Msg("encode message event")
		return
	}
	if err := m.feed.Publish(ctx, ev); err != nil {
		m.log.Error().Err(err).Str("messageId", message.Id).Msg("publish message event")
	}
}
