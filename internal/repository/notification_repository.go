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

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Recent(ctx context.Context, recipientId string, limit int) ([]entity.Notification, error)
	Get(ctx context.Context, notificationId string) (entity.Notification, error)
	Insert(ctx context.Context, notification entity.Notification) (entity.Notification, error)
	MarkRead(ctx context.Context, recipientId string, ids []string, at time.Time) (int64, error)
	Delete(ctx context.Context, notificationId string) error
}

type notificationRepository struct {
	db mongo.Database
}

func NewNotificationRepository(db mongo.Database) NotificationRepository {
	return &notificationRepository{
		db: db,
	}
}

func (r *notificationRepository) Recent(ctx context.Context, recipientId string, limit int) ([]entity.Notification, error) {
	collection := r.db.Collection("notifications")
	filter := bson.M{"recipientId": recipientId}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notifications []entity.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) Get(ctx context.Context, notificationId string) (entity.Notification, error) {
	collection := r.db.Collection("notifications")
	filter := bson.M{"_id": notificationId}

	var notification entity.Notification
	err := collection.FindOne(ctx, filter).Decode(&notification)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Notification{}, ErrNotificationNotFound
		}
		return entity.Notification{}, err
	}

	return notification, nil
}

func (r *notificationRepository) Insert(ctx context.Context, notification entity.Notification) (entity.Notification, error) {
	collection := r.db.Collection("notifications")
	notification.Id = uuid.New().String()
	notification.CreatedAt = time.Now()

	if _, err := collection.InsertOne(ctx, notification); err != nil {
		return entity.Notification{}, err
	}

	return notification, nil
}

// MarkRead sets readAt on the given notifications, skipping ones already
// read. Only the recipient's own rows match, so guessed ids cannot touch
// another user's read state. The modified count is what unread counters
// may decrement by.
func (r *notificationRepository) MarkRead(ctx context.Context, recipientId string, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	collection := r.db.Collection("notifications")
	filter := bson.M{
		"_id":         bson.M{"$in": ids},
		"recipientId": recipientId,
		"readAt":      bson.M{"$exists": false},
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

func (r *notificationRepository) Delete(ctx context.Context, notificationId string) error {
	collection := r.db.Collection("notifications")
	filter := bson.M{"_id": notificationId}

	_, err := collection.DeleteOne(ctx, filter)
	return err
}
