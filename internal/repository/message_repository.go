package repository

import (
	"context"
	"errors"
	"time"

	"github.com/justinMonserrat/plop/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyMessage    = errors.New("message needs content or an image")
)

type MessageRepository interface {
	PageDesc(ctx context.Context, filter entity.MessagePageFilter) ([]entity.Message, error)
	Since(ctx context.Context, conversationId string, after time.Time, afterSeq int64) ([]entity.Message, error)
	Recent(ctx context.Context, conversationIds []string, limit int) ([]entity.Message, error)
	Get(ctx context.Context, messageId string) (entity.Message, error)
	Insert(ctx context.Context, message entity.Message) (entity.Message, error)
	MarkRead(ctx context.Context, conversationId, readerId string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, conversationId, userId string) (int64, error)
}

type messageRepository struct {
	db mongo.Database
}

func NewMessageRepository(db mongo.Database) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// PageDesc returns one page of a conversation's log, newest first. Callers
// reverse it for display; page 0 is the most recent messages.
func (r *messageRepository) PageDesc(ctx context.Context, filter entity.MessagePageFilter) ([]entity.Message, error) {
	collection := r.db.Collection("messages")
	bsonFilter := bson.M{"chatId": filter.ConversationId}

	opts := options.Find()
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	opts.SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}})

	cursor, err := collection.Find(ctx, bsonFilter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []entity.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// Since returns messages newer than the given position in ascending order.
// A zero time returns the whole log.
func (r *messageRepository) Since(ctx context.Context, conversationId string, after time.Time, afterSeq int64) ([]entity.Message, error) {
	collection := r.db.Collection("messages")

	bsonFilter := bson.M{"chatId": conversationId}
	if !after.IsZero() {
		bsonFilter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$gt": after}},
			bson.M{"createdAt": after, "seq": bson.M{"$gt": afterSeq}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "seq", Value: 1}})

	cursor, err := collection.Find(ctx, bsonFilter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []entity.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// Recent returns the newest messages across a set of conversations, used to
// attach last-message previews to the conversation list in one query.
func (r *messageRepository) Recent(ctx context.Context, conversationIds []string, limit int) ([]entity.Message, error) {
	collection := r.db.Collection("messages")
	bsonFilter := bson.M{"chatId": bson.M{"$in": conversationIds}}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := collection.Find(ctx, bsonFilter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []entity.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}

	var message entity.Message
	err := collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

// Insert stores a message, assigning its id, creation time and the
// per-conversation sequence number that breaks same-timestamp ties.
func (r *messageRepository) Insert(ctx context.Context, message entity.Message) (entity.Message, error) {
	if message.Content == "" && message.ImageUrl == "" {
		return entity.Message{}, ErrEmptyMessage
	}

	seq, err := r.nextSeq(ctx, message.ConversationId)
	if err != nil {
		return entity.Message{}, err
	}

	collection := r.db.Collection("messages")
	message.Id = uuid.New().String()
	message.CreatedAt = time.Now()
	message.Seq = seq

	if _, err := collection.InsertOne(ctx, message); err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

// MarkRead sets readAt on every unread message in the conversation not sent
// by the reader. Returns the number of messages actually transitioned, so
// repeated calls are harmless to unread counters.
func (r *messageRepository) MarkRead(ctx context.Context, conversationId, readerId string, at time.Time) (int64, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"chatId":   conversationId,
		"senderId": bson.M{"$ne": readerId},
		"readAt":   bson.M{"$exists": false},
	}
	update := bson.M{
		"$set": bson.M{
			"readAt": at,
		},
	}

	result, err := collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}

	return result.ModifiedCount, nil
}

func (r *messageRepository) CountUnread(ctx context.Context, conversationId, userId string) (int64, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"chatId":   conversationId,
		"senderId": bson.M{"$ne": userId},
		"readAt":   bson.M{"$exists": false},
	}

	return collection.CountDocuments(ctx, filter)
}

// nextSeq increments the conversation's message counter atomically.
func (r *messageRepository) nextSeq(ctx context.Context, conversationId string) (int64, error) {
	collection := r.db.Collection("message_counters")
	filter := bson.M{"_id": conversationId}
	update := bson.M{"$inc": bson.M{"seq": int64(1)}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	if err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter); err != nil {
		return 0, err
	}

	return counter.Seq, nil
}
