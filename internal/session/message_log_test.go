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

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, at int64, seq int64) entity.Message {
	return entity.Message{
		Id:             id,
		ConversationId: "conv-1",
		SenderId:       "other",
		Content:        "m " + id,
		CreatedAt:      testBase.Add(time.Duration(at) * time.Second),
		Seq:            seq,
	}
}

// fakeMessages serves pages from a fixed ascending log, newest first, the
// way the storage layer does.
type fakeMessages struct {
	mu       sync.Mutex
	log      []entity.Message // ascending
	gate     chan struct{}    // when set, Page blocks until closed
	marked   int64
	failSend error // when set, Send returns this
}

func (f *fakeMessages) Page(ctx context.Context, conversationId, userId string, page int) (entity.MessagePage, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	desc := make([]entity.Message, len(f.log))
	for i, m := range f.log {
		desc[len(f.log)-1-i] = m
	}

	start := page * usecase.MessagePageSize
	if start >= len(desc) {
		return entity.MessagePage{Messages: []entity.Message{}}, nil
	}
	end := start + usecase.MessagePageSize
	if end > len(desc) {
		end = len(desc)
	}
	slice := desc[start:end]
	return entity.MessagePage{Messages: slice, HasMore: len(slice) == usecase.MessagePageSize}, nil
}

func (f *fakeMessages) Since(ctx context.Context, conversationId, userId string, after time.Time, afterSeq int64) ([]entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []entity.Message
	for _, m := range f.log {
		if m.CreatedAt.After(after) || (m.CreatedAt.Equal(after) && m.Seq > afterSeq) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessages) Send(ctx context.Context, req usecase.SendMessageRequest) (entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSend != nil {
		return entity.Message{}, f.failSend
	}

	m := entity.Message{
		Id:             "sent-" + req.ClientRef,
		ConversationId: req.ConversationId,
		SenderId:       req.SenderId,
		Content:        req.Content,
		ClientRef:      req.ClientRef,
		CreatedAt:      time.Now(),
		Seq:            int64(len(f.log) + 1),
	}
	f.log = append(f.log, m)
	return m, nil
}

func (f *fakeMessages) MarkConversationRead(ctx context.Context, conversationId, userId string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked++
	return 2, nil
}

func newTestLog(fake *fakeMessages) *MessageLog {
	return NewMessageLog("conv-1", "self", fake, zerolog.Nop())
}

func insertEvent(t *testing.T, m entity.Message) rt.Event {
	t.Helper()
	ev, err := rt.NewEvent(rt.ActionInsert, rt.TableMessages, m.ConversationId, m, nil)
	require.NoError(t, err)
	return ev
}

func TestMessageLogDuplicateInsertIsNoop(t *testing.T) {
	l := newTestLog(&fakeMessages{})

	m := msg("a", 1, 1)
	l.ApplyEvent(insertEvent(t, m))
	l.ApplyEvent(insertEvent(t, m))

	assert.Equal(t, 1, l.Len())
}

func TestMessageLogInitialThenOlderIsFullAscendingLog(t *testing.T) {
	fake := &fakeMessages{}
	for i := 1; i <= 120; i++ {
		fake.log = append(fake.log, msg(fmt.Sprintf("m-%03d", i), int64(i), int64(i)))
	}

	l := newTestLog(fake)
	ctx := context.Background()

	require.NoError(t, l.LoadInitial(ctx))
	assert.Equal(t, 50, l.Len())
	assert.True(t, l.HasMore())

	require.NoError(t, l.LoadOlder(ctx))
	assert.Equal(t, 100, l.Len())

	require.NoError(t, l.LoadOlder(ctx))
	assert.Equal(t, 120, l.Len())
	assert.False(t, l.HasMore())

	snapshot := l.Snapshot()
	for i := 1; i < len(snapshot); i++ {
		assert.True(t, snapshot[i-1].Before(snapshot[i]),
			"log must stay ascending at index %d", i)
	}
}

func TestMessageLogLiveEventDuringFetchIsNotDuplicated(t *testing.T) {
	fake := &fakeMessages{log: []entity.Message{msg("a", 1, 1), msg("b", 2, 2), msg("c", 3, 3)}}
	l := newTestLog(fake)

	// The newest message also arrives live before the fetch lands.
	l.ApplyEvent(insertEvent(t, msg("c", 3, 3)))
	require.NoError(t, l.LoadInitial(context.Background()))

	assert.Equal(t, 3, l.Len())
	snapshot := l.Snapshot()
	assert.Equal(t, "a", snapshot[0].Id)
	assert.Equal(t, "b", snapshot[1].Id)
	assert.Equal(t, "c", snapshot[2].Id)
}

func TestMessageLogCloseDiscardsInFlightFetch(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeMessages{log: []entity.Message{msg("a", 1, 1)}, gate: gate}
	l := newTestLog(fake)

	done := make(chan error, 1)
	go func() {
		done <- l.LoadInitial(context.Background())
	}()

	// Conversation switched away while the fetch was in flight.
	time.Sleep(10 * time.Millisecond)
	l.Close()
	close(gate)

	require.NoError(t, <-done)
	assert.Equal(t, 0, l.Len(), "closed log must not absorb a late response")
}

func TestMessageLogSameTimestampOrderedBySeq(t *testing.T) {
	l := newTestLog(&fakeMessages{})

	// Same created_at, delivered out of sequence order.
	l.ApplyEvent(insertEvent(t, msg("second", 5, 2)))
	l.ApplyEvent(insertEvent(t, msg("first", 5, 1)))
	l.ApplyEvent(insertEvent(t, msg("third", 5, 3)))

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "first", snapshot[0].Id)
	assert.Equal(t, "second", snapshot[1].Id)
	assert.Equal(t, "third", snapshot[2].Id)
}

func TestMessageLogPendingReplacedByEcho(t *testing.T) {
	l := newTestLog(&fakeMessages{})

	l.AppendPending(entity.Message{ConversationId: "conv-1", SenderId: "self", Content: "hi", ClientRef: "ref-1"})
	require.Len(t, l.Snapshot(), 1)

	echo := msg("real-id", 1, 1)
	echo.SenderId = "self"
	echo.ClientRef = "ref-1"
	l.ApplyEvent(insertEvent(t, echo))

	snapshot := l.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "real-id", snapshot[0].Id)
}

func TestMessageLogUpdateAndDelete(t *testing.T) {
	l := newTestLog(&fakeMessages{})
	l.ApplyEvent(insertEvent(t, msg("a", 1, 1)))
	l.ApplyEvent(insertEvent(t, msg("b", 2, 2)))

	edited := msg("a", 1, 1)
	edited.Content = "edited"
	ev, err := rt.NewEvent(rt.ActionUpdate, rt.TableMessages, "conv-1", edited, nil)
	require.NoError(t, err)
	l.ApplyEvent(ev)

	snapshot := l.Snapshot()
	assert.Equal(t, "edited", snapshot[0].Content)

	ev, err = rt.NewEvent(rt.ActionDelete, rt.TableMessages, "conv-1", nil, msg("b", 2, 2))
	require.NoError(t, err)
	l.ApplyEvent(ev)

	assert.Equal(t, 1, l.Len())
}

func TestMessageLogOtherConversationEventIgnored(t *testing.T) {
	l := newTestLog(&fakeMessages{})

	foreign := msg("x", 1, 1)
	foreign.ConversationId = "conv-2"
	ev, err := rt.NewEvent(rt.ActionInsert, rt.TableMessages, "conv-2", foreign, nil)
	require.NoError(t, err)
	l.ApplyEvent(ev)

	assert.Equal(t, 0, l.Len())
}

func TestMessageLogUnusableEventFallsBackToDeltaFetch(t *testing.T) {
	fake := &fakeMessages{log: []entity.Message{msg("a", 1, 1)}}
	l := newTestLog(fake)

	feed := rt.NewMemoryFeed()
	sub, err := feed.Subscribe(context.Background(), rt.TableMessages, "conv-1")
	require.NoError(t, err)
	l.Attach(sub)
	defer l.Close()

	// A row the log cannot decode must not be silently lost; the pump
	// recovers it with a delta fetch.
	ev, err := rt.NewEvent(rt.ActionInsert, rt.TableMessages, "conv-1", "garbage", nil)
	require.NoError(t, err)
	require.NoError(t, feed.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool { return l.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestMessageLogMarkReadStampsLocalEntries(t *testing.T) {
	fake := &fakeMessages{}
	l := newTestLog(fake)

	mine := msg("mine", 1, 1)
	mine.SenderId = "self"
	l.ApplyEvent(insertEvent(t, mine))
	l.ApplyEvent(insertEvent(t, msg("theirs", 2, 2)))

	modified, err := l.MarkRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	for _, m := range l.Snapshot() {
		if m.SenderId != "self" {
			assert.True(t, m.IsRead())
		} else {
			assert.False(t, m.IsRead(), "own messages keep their read state")
		}
	}
}
