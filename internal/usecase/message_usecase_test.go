package usecase

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/blob"
	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlobStore struct {
	uploads map[string][]byte
}

func (s *memBlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.uploads == nil {
		s.uploads = make(map[string][]byte)
	}
	s.uploads[key] = data
	return "http://localhost:8080/media/" + key, nil
}

func (s *memBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := s.uploads[key]
	if !ok {
		return nil, "", blob.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "image/jpeg", nil
}

func newTestMessageUsecase(convRepo *memConvRepo, msgRepo *memMessageRepo, blobs *memBlobStore, feed rt.Feed) MessageUsecase {
	return NewMessageUsecase(msgRepo, convRepo, blobs, feed, zerolog.Nop())
}

func directConv(t *testing.T, convRepo *memConvRepo) string {
	t.Helper()
	ctx := context.Background()
	id, err := convRepo.Create(ctx, entity.Conversation{Kind: entity.ConversationDirect, CreatedBy: "alice"})
	require.NoError(t, err)
	require.NoError(t, convRepo.AddMember(ctx, id, "alice"))
	require.NoError(t, convRepo.AddMember(ctx, id, "bob"))
	return id
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	convRepo := newMemConvRepo()
	conversationId := directConv(t, convRepo)
	uc := newTestMessageUsecase(convRepo, &memMessageRepo{}, &memBlobStore{}, rt.NewMemoryFeed())

	_, err := uc.Send(context.Background(), SendMessageRequest{
		ConversationId: conversationId,
		SenderId:       "alice",
	})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendRequiresMembership(t *testing.T) {
	convRepo := newMemConvRepo()
	conversationId := directConv(t, convRepo)
	uc := newTestMessageUsecase(convRepo, &memMessageRepo{}, &memBlobStore{}, rt.NewMemoryFeed())

	_, err := uc.Send(context.Background(), SendMessageRequest{
		ConversationId: conversationId,
		SenderId:       "mallory",
		Content:        "hi",
	})
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestSendPublishesInsertAndTouchesConversation(t *testing.T) {
	convRepo := newMemConvRepo()
	conversationId := directConv(t, convRepo)
	feed := rt.NewMemoryFeed()
	uc := newTestMessageUsecase(convRepo, &memMessageRepo{}, &memBlobStore{}, feed)
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, rt.TableMessages, conversationId)
	require.NoError(t, err)
	defer sub.Close()

	before := convRepo.conversations[conversationId].UpdatedAt
	time.Sleep(time.Millisecond)

	sent, err := uc.Send(ctx, SendMessageRequest{
		ConversationId: conversationId,
		SenderId:       "alice",
		Content:        "hello",
		ClientRef:      "ref-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sent.Id)
	assert.Equal(t, "ref-1", sent.ClientRef)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, rt.ActionInsert, ev.Action)
		var got entity.Message
		require.NoError(t, ev.DecodeNew(&got))
		assert.Equal(t, sent.Id, got.Id)
	case <-time.After(time.Second):
		t.Fatal("insert event was not published")
	}

	assert.True(t, convRepo.conversations[conversationId].UpdatedAt.After(before))
}

func TestSendWithImageUploadsAndLinks(t *testing.T) {
	convRepo := newMemConvRepo()
	conversationId := directConv(t, convRepo)
	blobs := &memBlobStore{}
	uc := newTestMessageUsecase(convRepo, &memMessageRepo{}, blobs, rt.NewMemoryFeed())

	sent, err := uc.Send(context.Background(), SendMessageRequest{
		ConversationId:   conversationId,
		SenderId:         "alice",
		Image:            []byte{0xff, 0xd8},
		ImageContentType: "image/jpeg",
	})
	require.NoError(t, err)

	require.Len(t, blobs.uploads, 1)
	assert.True(t, strings.HasPrefix(sent.ImageUrl, "http://localhost:8080/media/alice-"))
	assert.True(t, strings.HasSuffix(sent.ImageUrl, ".jpg"))
}

func TestPageHasMoreOnlyWhenFull(t *testing.T) {
	convRepo := newMemConvRepo()
	conversationId := directConv(t, convRepo)
	msgRepo := &memMessageRepo{}
	uc := newTestMessageUsecase(convRepo, msgRepo, &memBlobStore{}, rt.NewMemoryFeed())
	ctx := context.Background()

	for i := 0; i < MessagePageSize+10; i++ {
		_, err := msgRepo.Insert(ctx, entity.Message{ConversationId: conversationId, SenderId: "bob", Content: "m"})
		require.NoError(t, err)
	}

	page, err := uc.Page(ctx, conversationId, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, MessagePageSize)
	assert.True(t, page.HasMore)

	page, err = uc.Page(ctx, conversationId, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 10)
	assert.False(t, page.HasMore)

	_, err = uc.Page(ctx, conversationId, "mallory", 0)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestSinceReturnsOnlyNewerMessages(t *testing.T) {
	convRepo := newMemConvRepo()
	conversationId := directConv(t, convRepo)
	msgRepo := &memMessageRepo{}
	uc := newTestMessageUsecase(convRepo, msgRepo, &memBlobStore{}, rt.NewMemoryFeed())
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := msgRepo.Insert(ctx, entity.Message{
			ConversationId: conversationId,
			SenderId:       "bob",
			Content:        "m",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	newer, err := uc.Since(ctx, conversationId, "alice", base.Add(2*time.Second), 3)
	require.NoError(t, err)
	assert.Len(t, newer, 2)
}
