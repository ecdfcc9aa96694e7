package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationPostLike     NotificationType = "post_like"
	NotificationPostComment  NotificationType = "post_comment"
	NotificationCommentReply NotificationType = "comment_reply"
	NotificationFollow       NotificationType = "follow"
)

type Notification struct {
	Id          string           `bson:"_id" json:"id"`
	RecipientId string           `bson:"recipientId" json:"recipientId"`
	ActorId     string           `bson:"actorId" json:"actorId"`
	Type        NotificationType `bson:"type" json:"type"`
	Payload     json.RawMessage  `bson:"payload,omitempty" json:"payload,omitempty"`
	PostId      string           `bson:"postId,omitempty" json:"postId,omitempty"`
	CommentId   string           `bson:"commentId,omitempty" json:"commentId,omitempty"`
	CreatedAt   time.Time        `bson:"createdAt" json:"createdAt"`
	ReadAt      *time.Time       `bson:"readAt,omitempty" json:"readAt,omitempty"`
}

func (n Notification) IsRead() bool {
	return n.ReadAt != nil
}

// NotificationPayload is the decoded form of Notification.Payload,
// keyed by Notification.Type.
type NotificationPayload interface {
	notificationPayload()
}

type PostLikePayload struct {
	ActorName string `json:"actorName"`
	PostTitle string `json:"postTitle,omitempty"`
}

type PostCommentPayload struct {
	ActorName string `json:"actorName"`
	Snippet   string `json:"snippet,omitempty"`
}

type CommentReplyPayload struct {
	ActorName string `json:"actorName"`
	Snippet   string `json:"snippet,omitempty"`
}

type FollowPayload struct {
	ActorName string `json:"actorName"`
}

func (PostLikePayload) notificationPayload()     {}
func (PostCommentPayload) notificationPayload()  {}
func (CommentReplyPayload) notificationPayload() {}
func (FollowPayload) notificationPayload()       {}

// DecodePayload parses the raw payload into the variant for the
// notification's type.
func (n Notification) DecodePayload() (NotificationPayload, error) {
	raw := n.Payload
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	switch n.Type {
	case NotificationPostLike:
		var p PostLikePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case NotificationPostComment:
		var p PostCommentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case NotificationCommentReply:
		var p CommentReplyPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case NotificationFollow:
		var p FollowPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", n.Type)
	}
}

// EncodePayload is the write-side counterpart of DecodePayload.
func EncodePayload(p NotificationPayload) (json.RawMessage, error) {
	return json.Marshal(p)
}
