package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"linkhealth/domain/repository"
	"linkhealth/infrastructure/configuration"
	"linkhealth/infrastructure/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NewMongoDb connects using database.mongo.uri, or builds a URI from host and credentials.
func NewMongoDb(cfg configuration.Db) (*mongo.Client, error) {
	uri := cfg.URI
	if uri == "" {
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == "" {
			port = "27017"
		}
		if cfg.User != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s:%s", cfg.User, cfg.Password, host, port)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%s", host, port)
		}
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return client, nil
}

// MongoStore keeps each collection in a Mongo collection with the document id as _id.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{db: client.Database(database)}
}

// EnsureIndexes creates the lookup indexes used by scan queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context, indexes map[string][]string) error {
	for collection, fields := range indexes {
		models := make([]mongo.IndexModel, 0, len(fields))
		for _, f := range fields {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
		}
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func (s *MongoStore) Put(ctx context.Context, collection, id string, doc any) error {
	_, err := s.db.Collection(collection).ReplaceOne(ctx, bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, id string, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filter repository.Filter, out any) error {
	keys, err := filterKeys(filter)
	if err != nil {
		return err
	}
	query := bson.D{}
	for _, k := range keys {
		query = append(query, bson.E{Key: k, Value: filter[k]})
	}
	cursor, err := s.db.Collection(collection).Find(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", collection, err)
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		if err := cursor.Close(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while closing cursor")
		}
	}(cursor, ctx)
	return cursor.All(ctx, out)
}
