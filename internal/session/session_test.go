package session

import (
	"context"
	"errors"
	"testing"

	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversations struct {
	basicCalls   int
	refinedCalls int
}

func (f *fakeConversations) IndexBasic(ctx context.Context, userId string) ([]entity.ConversationSummary, error) {
	f.basicCalls++
	return []entity.ConversationSummary{{Id: "conv-1", Name: "Chat"}}, nil
}

func (f *fakeConversations) Index(ctx context.Context, userId string) ([]entity.ConversationSummary, error) {
	f.refinedCalls++
	return []entity.ConversationSummary{{Id: "conv-1", Name: "Bob"}}, nil
}

func (f *fakeConversations) ResolveDirect(ctx context.Context, selfId, otherId string) (string, error) {
	return "conv-1", nil
}

func (f *fakeConversations) CreateDirect(ctx context.Context, selfId, otherId string) (string, error) {
	return "conv-1", nil
}

func (f *fakeConversations) CreateGroup(ctx context.Context, selfId, name string, memberIds []string) (string, error) {
	return "conv-2", nil
}

func (f *fakeConversations) AddMember(ctx context.Context, conversationId, actorId, userId string) error {
	return nil
}

func (f *fakeConversations) Leave(ctx context.Context, conversationId, userId string) error {
	return nil
}

func (f *fakeConversations) Members(ctx context.Context, conversationId, userId string) ([]entity.Profile, error) {
	return nil, nil
}

func (f *fakeConversations) Get(ctx context.Context, conversationId, userId string) (entity.Conversation, error) {
	return entity.Conversation{Id: conversationId}, nil
}

func newTestSession(feed rt.Feed) *Session {
	return NewSession("self", &fakeConversations{}, &fakeMessages{}, &fakeNotifications{}, feed, zerolog.Nop())
}

func TestSessionStartLoadsListAndNotifications(t *testing.T) {
	feed := rt.NewMemoryFeed()
	sess := newTestSession(feed)
	defer sess.Close()

	require.NoError(t, sess.Start(context.Background()))

	snapshot := sess.List.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Bob", snapshot[0].Name, "refined list wins")
	assert.True(t, sess.List.Refined())
	assert.Equal(t, 1, feed.SubscriberCount(rt.TableNotifications, "self"))
}

func TestSessionOpenSwitchReleasesPreviousScope(t *testing.T) {
	feed := rt.NewMemoryFeed()
	sess := newTestSession(feed)
	defer sess.Close()
	ctx := context.Background()

	first, err := sess.OpenConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, feed.SubscriberCount(rt.TableMessages, "conv-1"))

	second, err := sess.OpenConversation(ctx, "conv-2")
	require.NoError(t, err)
	require.NotNil(t, second)

	// Switching conversations abandons the old scope entirely.
	assert.Equal(t, 0, feed.SubscriberCount(rt.TableMessages, "conv-1"))
	assert.Equal(t, 1, feed.SubscriberCount(rt.TableMessages, "conv-2"))
	assert.Same(t, second, sess.OpenLog())
}

func TestSessionCloseReleasesEverything(t *testing.T) {
	feed := rt.NewMemoryFeed()
	sess := newTestSession(feed)
	ctx := context.Background()

	require.NoError(t, sess.Start(ctx))
	_, err := sess.OpenConversation(ctx, "conv-1")
	require.NoError(t, err)

	sess.Close()
	assert.Equal(t, 0, feed.SubscriberCount(rt.TableNotifications, "self"))
	assert.Equal(t, 0, feed.SubscriberCount(rt.TableMessages, "conv-1"))
	assert.Nil(t, sess.OpenLog())

	// Close twice is safe.
	sess.Close()
}

func TestSessionStartEmitsBasicThenRefinedList(t *testing.T) {
	feed := rt.NewMemoryFeed()
	sess := newTestSession(feed)
	defer sess.Close()

	var phases [][]entity.ConversationSummary
	sess.OnConversations = func(summaries []entity.ConversationSummary) {
		phases = append(phases, summaries)
	}

	require.NoError(t, sess.Start(context.Background()))

	require.Len(t, phases, 2)
	assert.Equal(t, "Chat", phases[0][0].Name, "placeholder phase goes out first")
	assert.Equal(t, "Bob", phases[1][0].Name)
}

func TestSessionMarkReadOnOpenRecountsList(t *testing.T) {
	feed := rt.NewMemoryFeed()
	sess := newTestSession(feed)
	defer sess.Close()
	ctx := context.Background()

	require.NoError(t, sess.Start(ctx))

	emissions := 0
	sess.OnConversations = func([]entity.ConversationSummary) { emissions++ }

	_, err := sess.OpenConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, emissions, "opening marks read and recounts the list")
}

func TestSessionFailedSendRollsBackPendingEntry(t *testing.T) {
	feed := rt.NewMemoryFeed()
	fakeMsgs := &fakeMessages{failSend: errors.New("write refused")}
	sess := NewSession("self", &fakeConversations{}, fakeMsgs, &fakeNotifications{}, feed, zerolog.Nop())
	defer sess.Close()
	ctx := context.Background()

	msgLog, err := sess.OpenConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, msgLog)

	_, err = sess.Send(ctx, usecase.SendMessageRequest{
		ConversationId: "conv-1",
		Content:        "hi",
		ClientRef:      "ref-1",
	})
	require.Error(t, err)
	assert.Empty(t, msgLog.Snapshot(), "a failed send must not leave a ghost entry")
}

func TestSessionSendRecordsPendingEntry(t *testing.T) {
	feed := rt.NewMemoryFeed()
	fakeMsgs := &fakeMessages{}
	sess := NewSession("self", &fakeConversations{}, fakeMsgs, &fakeNotifications{}, feed, zerolog.Nop())
	defer sess.Close()
	ctx := context.Background()

	msgLog, err := sess.OpenConversation(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, msgLog)

	_, err = sess.Send(ctx, usecase.SendMessageRequest{
		ConversationId: "conv-1",
		Content:        "hi",
		ClientRef:      "ref-1",
	})
	require.NoError(t, err)

	snapshot := msgLog.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "ref-1", snapshot[0].ClientRef)
}
