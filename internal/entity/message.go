package entity

import "time"

type Message struct {
	Id             string     `bson:"_id" json:"id"`
	ConversationId string     `bson:"chatId" json:"chatId"`
	SenderId       string     `bson:"senderId" json:"senderId"`
	Content        string     `bson:"content,omitempty" json:"content,omitempty"`
	ImageUrl       string     `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	Seq            int64      `bson:"seq" json:"seq"`
	ReadAt         *time.Time `bson:"readAt,omitempty" json:"readAt,omitempty"`

	// ClientRef is the sender-generated correlation id that lets an
	// optimistic local entry be replaced by its server echo.
	ClientRef string `bson:"clientRef,omitempty" json:"clientRef,omitempty"`
}

func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

// Before reports whether m sorts ahead of other in a conversation log.
// CreatedAt is the ordering key, the per-conversation insert sequence
// breaks ties so placement is stable.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.Seq < other.Seq
}

// MessagePageFilter selects one descending page of a conversation's log.
type MessagePageFilter struct {
	ConversationId string
	Limit          int
	Offset         int
}

type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}
