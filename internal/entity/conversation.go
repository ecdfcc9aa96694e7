package entity

import "time"

type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

type Conversation struct {
	Id        string           `bson:"_id" json:"id"`
	Kind      ConversationKind `bson:"kind" json:"kind"`
	Name      string           `bson:"name,omitempty" json:"name,omitempty"` // groups only
	CreatedBy string           `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time        `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time        `bson:"updatedAt" json:"updatedAt"`
}

type ConversationMember struct {
	Id             string    `bson:"_id" json:"id"`
	ConversationId string    `bson:"chatId" json:"chatId"`
	UserId         string    `bson:"userId" json:"userId"`
	JoinedAt       time.Time `bson:"joinedAt" json:"joinedAt"`
}

// ConversationSummary is the list-view projection of a conversation.
// Direct conversations take Name/AvatarUrl from the other member's
// profile once the refinement phase has run.
type ConversationSummary struct {
	Id          string           `json:"id"`
	Kind        ConversationKind `json:"kind"`
	Name        string           `json:"name"`
	AvatarUrl   string           `json:"avatarUrl,omitempty"`
	MemberIds   []string         `json:"memberIds,omitempty"`
	OtherUserId string           `json:"otherUserId,omitempty"`
	LastMessage *Message         `json:"lastMessage,omitempty"`
	UnreadCount int              `json:"unreadCount"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// LastActivityAt is the sort key for the conversation list: the last
// message time when one exists, the conversation's updatedAt otherwise.
func (s ConversationSummary) LastActivityAt() time.Time {
	if s.LastMessage != nil && s.LastMessage.CreatedAt.After(s.UpdatedAt) {
		return s.LastMessage.CreatedAt
	}
	return s.UpdatedAt
}
