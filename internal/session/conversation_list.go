package session

import (
	"context"
	"sync"

	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/usecase"
)

// ConversationList holds the user's conversation index. Emission is
// two-phase: RefreshBasic lands a fast skeleton (placeholder names, no
// previews), Refresh overwrites it with the refined list. A refined list
// is never replaced by a later-arriving basic one.
type ConversationList struct {
	userId        string
	conversations usecase.ConversationUsecase

	mu      sync.Mutex
	entries []entity.ConversationSummary
	refined bool
}

func NewConversationList(userId string, conversations usecase.ConversationUsecase) *ConversationList {
	return &ConversationList{
		userId:        userId,
		conversations: conversations,
	}
}

func (c *ConversationList) RefreshBasic(ctx context.Context) error {
	entries, err := c.conversations.IndexBasic(ctx, c.userId)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refined {
		return nil
	}
	c.entries = entries
	return nil
}

func (c *ConversationList) Refresh(ctx context.Context) error {
	entries, err := c.conversations.Index(ctx, c.userId)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.refined = true
	return nil
}

// Refined reports whether the current snapshot came from a full refresh.
func (c *ConversationList) Refined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refined
}

func (c *ConversationList) Snapshot() []entity.ConversationSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entity.ConversationSummary, len(c.entries))
	copy(out, c.entries)
	return out
}
