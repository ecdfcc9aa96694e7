package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/cache"
	"github.com/justinMonserrat/plop/internal/entity"
	"github.com/justinMonserrat/plop/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotMember            = errors.New("you are not a member of this conversation")
	ErrAlreadyMember        = errors.New("user is already a member")
	ErrDirectWithSelf       = errors.New("cannot start a direct conversation with yourself")
	ErrGroupNameRequired    = errors.New("group name is required")
	ErrNotGroup             = errors.New("not a group conversation")
	ErrMembershipWrite      = errors.New("membership write failed")
)

const (
	// How many recent messages are fetched in one query to attach
	// last-message previews to the conversation list.
	recentPreviewLimit = 100

	profileCacheTTL = 5 * time.Minute
)

type ConversationUsecase interface {
	// IndexBasic is the first phase of the two-phase list emission:
	// conversations with placeholder names, no previews. Index is the
	// refined phase; both converge to the same ordering.
	IndexBasic(ctx context.Context, userId string) ([]entity.ConversationSummary, error)
	Index(ctx context.Context, userId string) ([]entity.ConversationSummary, error)

	// ResolveDirect finds the direct conversation for the unordered
	// (selfId, otherId) pair. ErrConversationNotFound is the expected
	// miss, not a failure.
	ResolveDirect(ctx context.Context, selfId, otherId string) (string, error)

	CreateDirect(ctx context.Context, selfId, otherId string) (string, error)
	CreateGroup(ctx context.Context, selfId, name string, memberIds []string) (string, error)
	AddMember(ctx context.Context, conversationId, actorId, userId string) error
	Leave(ctx context.Context, conversationId, userId string) error
	Members(ctx context.Context, conversationId, userId string) ([]entity.Profile, error)
	Get(ctx context.Context, conversationId, userId string) (entity.Conversation, error)
}

type conversationUsecase struct {
	convRepo    repository.ConversationRepository
	profileRepo repository.ProfileRepository
	messageRepo repository.MessageRepository
	profiles    *cache.MemCache
	log         zerolog.Logger
}

func NewConversationUsecase(
	convRepo repository.ConversationRepository,
	profileRepo repository.ProfileRepository,
	messageRepo repository.MessageRepository,
	profiles *cache.MemCache,
	log zerolog.Logger,
) ConversationUsecase {
	return &conversationUsecase{
		convRepo:    convRepo,
		profileRepo: profileRepo,
		messageRepo: messageRepo,
		profiles:    profiles,
		log:         log.With().Str("component", "conversations").Logger(),
	}
}

func (c *conversationUsecase) IndexBasic(ctx context.Context, userId string) ([]entity.ConversationSummary, error) {
	conversations, err := c.convRepo.Index(ctx, userId)
	if err != nil {
		return nil, err
	}

	summaries := make([]entity.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		name := conv.Name
		if conv.Kind == entity.ConversationDirect {
			name = "Chat"
		}
		summaries = append(summaries, entity.ConversationSummary{
			Id:        conv.Id,
			Kind:      conv.Kind,
			Name:      name,
			UpdatedAt: conv.UpdatedAt,
		})
	}

	sortSummaries(summaries)
	return summaries, nil
}

// Index builds the refined conversation list: membership, last-message
// previews, unread badges, and display names resolved from the other
// member's profile for direct conversations.
func (c *conversationUsecase) Index(ctx context.Context, userId string) ([]entity.ConversationSummary, error) {
	conversations, err := c.convRepo.Index(ctx, userId)
	if err != nil {
		return nil, err
	}
	if len(conversations) == 0 {
		return []entity.ConversationSummary{}, nil
	}

	conversationIds := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		conversationIds = append(conversationIds, conv.Id)
	}

	members, err := c.convRepo.MembersForConversations(ctx, conversationIds)
	if err != nil {
		return nil, err
	}
	memberIdsByConv := make(map[string][]string)
	for _, member := range members {
		memberIdsByConv[member.ConversationId] = append(memberIdsByConv[member.ConversationId], member.UserId)
	}

	recent, err := c.messageRepo.Recent(ctx, conversationIds, recentPreviewLimit)
	if err != nil {
		return nil, err
	}
	lastByConv := make(map[string]entity.Message)
	for _, msg := range recent {
		if _, ok := lastByConv[msg.ConversationId]; !ok {
			lastByConv[msg.ConversationId] = msg
		}
	}

	summaries := make([]entity.ConversationSummary, 0, len(conversations))
	var otherUserIds []string
	for _, conv := range conversations {
		summary := entity.ConversationSummary{
			Id:        conv.Id,
			Kind:      conv.Kind,
			Name:      conv.Name,
			MemberIds: memberIdsByConv[conv.Id],
			UpdatedAt: conv.UpdatedAt,
		}

		if last, ok := lastByConv[conv.Id]; ok {
			lastCopy := last
			summary.LastMessage = &lastCopy
			// Only an unread preview warrants the count query.
			if last.SenderId != userId && !last.IsRead() {
				count, err := c.messageRepo.CountUnread(ctx, conv.Id, userId)
				if err != nil {
					c.log.Warn().Err(err).Str("conversationId", conv.Id).Msg("unread count failed")
					count = 1
				}
				summary.UnreadCount = int(count)
			}
		}

		if conv.Kind == entity.ConversationDirect {
			summary.Name = "Chat"
			for _, memberId := range summary.MemberIds {
				if memberId != userId {
					summary.OtherUserId = memberId
					otherUserIds = append(otherUserIds, memberId)
					break
				}
			}
		}

		summaries = append(summaries, summary)
	}

	if len(otherUserIds) > 0 {
		profileById, err := c.cachedProfiles(ctx, otherUserIds)
		if err != nil {
			// Names degrade to placeholders; the list itself is intact.
			c.log.Warn().Err(err).Msg("profile lookup for direct conversations failed")
		} else {
			for i := range summaries {
				if summaries[i].Kind != entity.ConversationDirect || summaries[i].OtherUserId == "" {
					continue
				}
				if profile, ok := profileById[summaries[i].OtherUserId]; ok {
					summaries[i].Name = profile.DisplayName()
					summaries[i].AvatarUrl = profile.AvatarUrl
				}
			}
		}
	}

	sortSummaries(summaries)
	return summaries, nil
}

func sortSummaries(summaries []entity.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivityAt().After(summaries[j].LastActivityAt())
	})
}

func (c *conversationUsecase) ResolveDirect(ctx context.Context, selfId, otherId string) (string, error) {
	if selfId == otherId {
		return "", ErrDirectWithSelf
	}

	conv, err := c.convRepo.FindDirectBetween(ctx, selfId, otherId)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return "", ErrConversationNotFound
		}
		return "", err
	}

	return conv.Id, nil
}

// CreateDirect returns the existing direct conversation for the pair when
// one resolves, otherwise creates the conversation and both memberships.
// Two users racing here can still create duplicates; the storage layer has
// no pair uniqueness constraint, and the resolver's two-member check keeps
// half-created rows invisible either way.
func (c *conversationUsecase) CreateDirect(ctx context.Context, selfId, otherId string) (string, error) {
	if selfId == otherId {
		return "", ErrDirectWithSelf
	}

	if _, err := c.profileRepo.Get(ctx, otherId); err != nil {
		return "", fmt.Errorf("participant not found: %w", err)
	}

	existingId, err := c.ResolveDirect(ctx, selfId, otherId)
	if err == nil {
		return existingId, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return "", err
	}

	conversationId, err := c.convRepo.Create(ctx, entity.Conversation{
		Kind:      entity.ConversationDirect,
		CreatedBy: selfId,
	})
	if err != nil {
		return "", err
	}

	for _, memberId := range []string{selfId, otherId} {
		if err := c.convRepo.AddMember(ctx, conversationId, memberId); err != nil {
			c.log.Error().Err(err).
				Str("conversationId", conversationId).
				Str("userId", memberId).
				Msg("direct conversation left degenerate")
			return "", fmt.Errorf("%w: %v", ErrMembershipWrite, err)
		}
	}

	return conversationId, nil
}

func (c *conversationUsecase) CreateGroup(ctx context.Context, selfId, name string, memberIds []string) (string, error) {
	if name == "" {
		return "", ErrGroupNameRequired
	}
	if len(memberIds) == 0 {
		return "", fmt.Errorf("at least one member is required")
	}

	profiles, err := c.profileRepo.Index(ctx, entity.ProfileIndexFilter{Ids: memberIds})
	if err != nil {
		return "", err
	}
	if len(profiles) != len(memberIds) {
		return "", fmt.Errorf("some user ids are invalid")
	}

	conversationId, err := c.convRepo.Create(ctx, entity.Conversation{
		Kind:      entity.ConversationGroup,
		Name:      name,
		CreatedBy: selfId,
	})
	if err != nil {
		return "", err
	}

	if err := c.convRepo.AddMember(ctx, conversationId, selfId); err != nil {
		c.log.Error().Err(err).Str("conversationId", conversationId).Msg("group left degenerate")
		return "", fmt.Errorf("%w: %v", ErrMembershipWrite, err)
	}
	for _, memberId := range memberIds {
		if memberId == selfId {
			continue
		}
		if err := c.convRepo.AddMember(ctx, conversationId, memberId); err != nil {
			c.log.Error().Err(err).
				Str("conversationId", conversationId).
				Str("userId", memberId).
				Msg("group left degenerate")
			return "", fmt.Errorf("%w: %v", ErrMembershipWrite, err)
		}
	}

	return conversationId, nil
}

func (c *conversationUsecase) AddMember(ctx context.Context, conversationId, actorId, userId string) error {
	conv, err := c.convRepo.Get(ctx, conversationId)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if conv.Kind != entity.ConversationGroup {
		return ErrNotGroup
	}

	isMember, err := c.convRepo.IsMember(ctx, actorId, conversationId)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotMember
	}

	if _, err := c.profileRepo.Get(ctx, userId); err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	if err := c.convRepo.AddMember(ctx, conversationId, userId); err != nil {
		if errors.Is(err, repository.ErrAlreadyMember) {
			return ErrAlreadyMember
		}
		return err
	}

	return c.convRepo.Touch(ctx, conversationId, time.Now())
}

// Leave removes the user's membership. A group that loses its last member
// stays around; it is never hard-deleted here.
func (c *conversationUsecase) Leave(ctx context.Context, conversationId, userId string) error {
	conv, err := c.convRepo.Get(ctx, conversationId)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if conv.Kind != entity.ConversationGroup {
		return ErrNotGroup
	}

	isMember, err := c.convRepo.IsMember(ctx, userId, conversationId)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotMember
	}

	return c.convRepo.RemoveMember(ctx, conversationId, userId)
}

func (c *conversationUsecase) Members(ctx context.Context, conversationId, userId string) ([]entity.Profile, error) {
	isMember, err := c.convRepo.IsMember(ctx, userId, conversationId)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	members, err := c.convRepo.Members(ctx, conversationId)
	if err != nil {
		return nil, err
	}

	memberIds := make([]string, 0, len(members))
	for _, member := range members {
		memberIds = append(memberIds, member.UserId)
	}

	profiles, err := c.profileRepo.Index(ctx, entity.ProfileIndexFilter{Ids: memberIds})
	if err != nil {
		return nil, err
	}

	for i := range profiles {
		profiles[i].Password = ""
	}

	return profiles, nil
}

func (c *conversationUsecase) Get(ctx context.Context, conversationId, userId string) (entity.Conversation, error) {
	isMember, err := c.convRepo.IsMember(ctx, userId, conversationId)
	if err != nil {
		return entity.Conversation{}, err
	}
	if !isMember {
		return entity.Conversation{}, ErrNotMember
	}

	conv, err := c.convRepo.Get(ctx, conversationId)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return entity.Conversation{}, ErrConversationNotFound
		}
		return entity.Conversation{}, err
	}

	return conv, nil
}

// cachedProfiles resolves profiles by id through the TTL cache, fetching
// only the misses.
func (c *conversationUsecase) cachedProfiles(ctx context.Context, ids []string) (map[string]entity.Profile, error) {
	result := make(map[string]entity.Profile, len(ids))
	var misses []string

	for _, id := range ids {
		if _, ok := result[id]; ok {
			continue
		}
		if c.profiles != nil {
			if cached, ok := c.profiles.Get("profile:" + id); ok {
				if profile, ok := cached.(entity.Profile); ok {
					result[id] = profile
					continue
				}
			}
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return result, nil
	}

	profiles, err := c.profileRepo.Index(ctx, entity.ProfileIndexFilter{Ids: misses})
	if err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		profile.Password = ""
		result[profile.Id] = profile
		if c.profiles != nil {
			c.profiles.Set("profile:"+profile.Id, profile, profileCacheTTL)
		}
	}

	return result, nil
}
