// Package blob is the object store behind message and avatar images:
// upload-by-key with overwrite semantics and a public URL per key.
package blob

import (
	"bytes"
	"context"
	"errors"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrBlobNotFound = errors.New("blob not found")

type Store interface {
	// Upload stores data under key, replacing any previous blob with the
	// same key, and returns the public URL for it.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// GridFSStore keeps blobs in a GridFS bucket next to the rest of the
// data, so a single Mongo deployment serves both.
type GridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewGridFSStore(db *mongo.Database, bucketName, baseURL string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, err
	}

	return &GridFSStore{
		bucket:  bucket,
		baseURL: baseURL,
	}, nil
}

func (s *GridFSStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	// Upsert: drop any existing blob under this key first.
	if err := s.deleteByName(ctx, key); err != nil {
		return "", err
	}

	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := s.bucket.UploadFromStream(key, bytes.NewReader(data), opts); err != nil {
		return "", err
	}

	return s.baseURL + "/media/" + key, nil
}

func (s *GridFSStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	stream, err := s.bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, "", ErrBlobNotFound
		}
		return nil, "", err
	}

	contentType := "application/octet-stream"
	if file := stream.GetFile(); file != nil && file.Metadata != nil {
		var meta struct {
			ContentType string `bson:"contentType"`
		}
		if err := bson.Unmarshal(file.Metadata, &meta); err == nil && meta.ContentType != "" {
			contentType = meta.ContentType
		}
	}

	return stream, contentType, nil
}

func (s *GridFSStore) deleteByName(ctx context.Context, key string) error {
	cursor, err := s.bucket.Find(bson.M{"filename": key})
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var file struct {
			Id primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&file); err != nil {
			return err
		}
		if err := s.bucket.Delete(file.Id); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}

	return cursor.Err()
}
