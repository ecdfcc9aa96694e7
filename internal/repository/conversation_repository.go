package repository

import (
	"context"
	"errors"
	"time"

	"github.com/justinMonserrat/plop/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotMember            = errors.New("user is not a member")
	ErrAlreadyMember        = errors.New("user is already a member")
)

type ConversationRepository interface {
	// Conversation operations
	Index(ctx context.Context, userId string) ([]entity.Conversation, error)
	Get(ctx context.Context, conversationId string) (entity.Conversation, error)
	Create(ctx context.Context, conversation entity.Conversation) (string, error)
	Touch(ctx context.Context, conversationId string, at time.Time) error

	// Member operations
	AddMember(ctx context.Context, conversationId, userId string) error
	Members(ctx context.Context, conversationId string) ([]entity.ConversationMember, error)
	MembersForConversations(ctx context.Context, conversationIds []string) ([]entity.ConversationMember, error)
	IsMember(ctx context.Context, userId, conversationId string) (bool, error)
	RemoveMember(ctx context.Context, conversationId, userId string) error

	// Direct conversation fingerprint lookup
	FindDirectBetween(ctx context.Context, userId1, userId2 string) (entity.Conversation, error)
}

type conversationRepository struct {
	db mongo.Database
}

func NewConversationRepository(db mongo.Database) ConversationRepository {
	return &conversationRepository{
		db: db,
	}
}

// Index returns all conversations the user is a member of, most recently
// updated first.
func (r *conversationRepository) Index(ctx context.Context, userId string) ([]entity.Conversation, error) {
	collection := r.db.Collection("chats")

	lookupStage := bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "chat_members"},
		{Key: "localField", Value: "_id"},
		{Key: "foreignField", Value: "chatId"},
		{Key: "as", Value: "members"},
	}}}
	matchStage := bson.D{{Key: "$match", Value: bson.D{
		{Key: "members.userId", Value: userId},
	}}}
	sortStage := bson.D{{Key: "$sort", Value: bson.D{{Key: "updatedAt", Value: -1}}}}

	cursor, err := collection.Aggregate(ctx, mongo.Pipeline{lookupStage, matchStage, sortStage})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []entity.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}

	return conversations, nil
}

func (r *conversationRepository) Get(ctx context.Context, conversationId string) (entity.Conversation, error) {
	collection := r.db.Collection("chats")
	filter := bson.M{"_id": conversationId}

	var conversation entity.Conversation
	err := collection.FindOne(ctx, filter).Decode(&conversation)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Conversation{}, ErrConversationNotFound
		}
		return entity.Conversation{}, err
	}

	return conversation, nil
}

func (r *conversationRepository) Create(ctx context.Context, conversation entity.Conversation) (string, error) {
	collection := r.db.Collection("chats")
	conversation.Id = uuid.New().String()
	conversation.CreatedAt = time.Now()
	conversation.UpdatedAt = conversation.CreatedAt

	_, err := collection.InsertOne(ctx, conversation)
	if err != nil {
		return "", err
	}

	return conversation.Id, nil
}

// Touch bumps the conversation's updatedAt, which drives list ordering.
func (r *conversationRepository) Touch(ctx context.Context, conversationId string, at time.Time) error {
	collection := r.db.Collection("chats")
	filter := bson.M{"_id": conversationId}
	update := bson.M{
		"$set": bson.M{
			"updatedAt": at,
		},
	}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}

// AddMember inserts a membership row. Adding an existing member returns
// ErrAlreadyMember instead of duplicating the row.
func (r *conversationRepository) AddMember(ctx context.Context, conversationId, userId string) error {
	collection := r.db.Collection("chat_members")

	count, err := collection.CountDocuments(ctx, bson.M{
		"chatId": conversationId,
		"userId": userId,
	})
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrAlreadyMember
	}

	member := entity.ConversationMember{
		Id:             uuid.New().String(),
		ConversationId: conversationId,
		UserId:         userId,
		JoinedAt:       time.Now(),
	}

	_, err = collection.InsertOne(ctx, member)
	return err
}

func (r *conversationRepository) Members(ctx context.Context, conversationId string) ([]entity.ConversationMember, error) {
	collection := r.db.Collection("chat_members")
	filter := bson.M{"chatId": conversationId}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var members []entity.ConversationMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	return members, nil
}

func (r *conversationRepository) MembersForConversations(ctx context.Context, conversationIds []string) ([]entity.ConversationMember, error) {
	collection := r.db.Collection("chat_members")
	filter := bson.M{"chatId": bson.M{"$in": conversationIds}}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var members []entity.ConversationMember
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}

	return members, nil
}

func (r *conversationRepository) IsMember(ctx context.Context, userId, conversationId string) (bool, error) {
	collection := r.db.Collection("chat_members")
	filter := bson.M{
		"chatId": conversationId,
		"userId": userId,
	}

	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *conversationRepository) RemoveMember(ctx context.Context, conversationId, userId string) error {
	collection := r.db.Collection("chat_members")
	filter := bson.M{
		"chatId": conversationId,
		"userId": userId,
	}

	_, err := collection.DeleteMany(ctx, filter)
	return err
}

// FindDirectBetween looks up the direct conversation for an unordered user
// pair. A candidate is only accepted when it has exactly two members, so a
// conversation left half-created by a failed membership insert is never
// surfaced.
func (r *conversationRepository) FindDirectBetween(ctx context.Context, userId1, userId2 string) (entity.Conversation, error) {
	collection := r.db.Collection("chats")

	lookupStage := bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: "chat_members"},
		{Key: "localField", Value: "_id"},
		{Key: "foreignField", Value: "chatId"},
		{Key: "as", Value: "members"},
	}}}
	matchStage := bson.D{{Key: "$match", Value: bson.D{
		{Key: "kind", Value: entity.ConversationDirect},
		{Key: "members.userId", Value: bson.D{{Key: "$all", Value: bson.A{userId1, userId2}}}},
	}}}

	cursor, err := collection.Aggregate(ctx, mongo.Pipeline{lookupStage, matchStage})
	if err != nil {
		return entity.Conversation{}, err
	}
	defer cursor.Close(ctx)

	var candidates []struct {
		entity.Conversation `bson:",inline"`
		Members             []entity.ConversationMember `bson:"members"`
	}
	if err := cursor.All(ctx, &candidates); err != nil {
		return entity.Conversation{}, err
	}

	for _, candidate := range candidates {
		if len(candidate.Members) == 2 {
			return candidate.Conversation, nil
		}
	}

	return entity.Conversation{}, ErrConversationNotFound
}
