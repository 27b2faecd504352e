package geocache

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sells-group/fire-incidents/pkg/geocode"
)

type mongoEntry struct {
	Address   string    `bson:"address"`
	Latitude  float64   `bson:"latitude"`
	Longitude float64   `bson:"longitude"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo connects to uri and pings the server.
func NewMongo(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if collection == "" {
		collection = TableName
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, eris.Wrap(err, "mongo: ping")
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// NewMongoCollection wraps an existing collection. Close is a no-op.
func NewMongoCollection(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// Get implements geocode.Cache.
func (s *MongoStore) Get(ctx context.Context, key string) (geocode.Coordinates, bool, error) {
	var entry mongoEntry
	err := s.coll.FindOne(ctx, bson.M{"address": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return geocode.Coordinates{}, false, nil
	}
	if err != nil {
		return geocode.Coordinates{}, false, eris.Wrapf(err, "mongo: get %q", key)
	}
	return geocode.Coordinates{Latitude: entry.Latitude, Longitude: entry.Longitude}, true, nil
}

// Put implements geocode.Cache. $setOnInsert keeps the first stored value.
func (s *MongoStore) Put(ctx context.Context, key string, c geocode.Coordinates) error {
	if !c.Valid() {
		return eris.Errorf("mongo: refusing invalid coordinates for %q", key)
	}
	update := bson.M{"$setOnInsert": mongoEntry{
		Address:   key,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		CreatedAt: time.Now().UTC(),
	}}
	_, err := s.coll.UpdateOne(ctx, bson.M{"address": key}, update, options.Update().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race; the winner's value is equivalent.
		return nil
	}
	return eris.Wrapf(err, "mongo: put %q", key)
}

// Migrate creates the unique index on address.
func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return eris.Wrap(err, "mongo: create index")
}

// Close disconnects the client when the store owns it.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
