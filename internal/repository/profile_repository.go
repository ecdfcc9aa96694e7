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

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository interface {
	Get(ctx context.Context, userId string) (entity.Profile, error)
	GetByEmail(ctx context.Context, email string) (entity.Profile, error)
	Index(ctx context.Context, filter entity.ProfileIndexFilter) ([]entity.Profile, error)
	Create(ctx context.Context, profile entity.Profile) (string, error)
	Update(ctx context.Context, profile entity.Profile) error
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

type profileRepository struct {
	db mongo.Database
}

func NewProfileRepository(db mongo.Database) ProfileRepository {
	return &profileRepository{
		db: db,
	}
}

func (r *profileRepository) Get(ctx context.Context, userId string) (entity.Profile, error) {
	collection := r.db.Collection("profiles")
	filter := bson.M{"_id": userId}

	var profile entity.Profile
	err := collection.FindOne(ctx, filter).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Profile{}, ErrProfileNotFound
		}
		return entity.Profile{}, err
	}

	return profile, nil
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (entity.Profile, error) {
	collection := r.db.Collection("profiles")
	filter := bson.M{"email": email}

	var profile entity.Profile
	err := collection.FindOne(ctx, filter).Decode(&profile)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Profile{}, ErrProfileNotFound
		}
		return entity.Profile{}, err
	}

	return profile, nil
}

func (r *profileRepository) Index(ctx context.Context, filter entity.ProfileIndexFilter) ([]entity.Profile, error) {
	collection := r.db.Collection("profiles")

	bsonFilter := bson.M{}
	if len(filter.Ids) > 0 {
		bsonFilter["_id"] = bson.M{"$in": filter.Ids}
	}

	cursor, err := collection.Find(ctx, bsonFilter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []entity.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}

func (r *profileRepository) Create(ctx context.Context, profile entity.Profile) (string, error) {
	collection := r.db.Collection("profiles")
	profile.Id = uuid.New().String()
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt

	_, err := collection.InsertOne(ctx, profile)
	if err != nil {
		return "", err
	}

	return profile.Id, nil
}

func (r *profileRepository) Update(ctx context.Context, profile entity.Profile) error {
	collection := r.db.Collection("profiles")
	filter := bson.M{"_id": profile.Id}
	update := bson.M{
		"$set": bson.M{
			"nickname":  profile.Nickname,
			"avatarUrl": profile.AvatarUrl,
			"updatedAt": time.Now(),
		},
	}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}

func (r *profileRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	collection := r.db.Collection("profiles")
	count, err := collection.CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *profileRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	collection := r.db.Collection("profiles")
	count, err := collection.CountDocuments(ctx, bson.M{"username": username})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
