package repository

import (
	"context"
	"time"

	"github.com/justinMonserrat/plop/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type FollowRepository interface {
	Following(ctx context.Context, followerId string) ([]entity.Follow, error)
	IsFollowing(ctx context.Context, followerId, followeeId string) (bool, error)
	Create(ctx context.Context, follow entity.Follow) (string, error)
	Delete(ctx context.Context, followerId, followeeId string) error
}

type followRepository struct {
	db mongo.Database
}

func NewFollowRepository(db mongo.Database) FollowRepository {
	return &followRepository{
		db: db,
	}
}

func (r *followRepository) Following(ctx context.Context, followerId string) ([]entity.Follow, error) {
	collection := r.db.Collection("follows")
	filter := bson.M{"followerId": followerId}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var follows []entity.Follow
	if err := cursor.All(ctx, &follows); err != nil {
		return nil, err
	}

	return follows, nil
}

func (r *followRepository) IsFollowing(ctx context.Context, followerId, followeeId string) (bool, error) {
	collection := r.db.Collection("follows")
	filter := bson.M{
		"followerId": followerId,
		"followeeId": followeeId,
	}

	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *followRepository) Create(ctx context.Context, follow entity.Follow) (string, error) {
	collection := r.db.Collection("follows")
	follow.Id = uuid.New().String()
	follow.CreatedAt = time.Now()

	_, err := collection.InsertOne(ctx, follow)
	if err != nil {
		return "", err
	}

	return follow.Id, nil
}

func (r *followRepository) Delete(ctx context.Context, followerId, followeeId string) error {
	collection := r.db.Collection("follows")
	filter := bson.M{
		"followerId": followerId,
		"followeeId": followeeId,
	}

	_, err := collection.DeleteMany(ctx, filter)
	return err
}
