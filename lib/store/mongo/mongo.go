// Package mongo implements a store.KeySource for API keys kept in a MongoDB collection.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/chainquery/lib/store"
)

const connectTimeout = 5 * time.Second

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c          *mgo.Client
	database   string
	collection string
}

var _ store.KeySource = (*Mongo)(nil)

// MongoKey is an API key document.
type MongoKey struct {
	Key    string `bson:"key"`
	Name   string `bson:"name,omitempty"`
	Active bool   `bson:"active"`
}

// New returns a Mongo client connection to the specified MongoDB database uri. Keys are read from collection in
// database.
func New(uri, database, collection string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c, database: database, collection: collection}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// APIKeys returns the keys of the active documents in the key collection.
func (m *Mongo) APIKeys(ctx context.Context) ([]string, error) {
	cur, err := m.c.Database(m.database).Collection(m.collection).Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("error reading api keys from mongo DB: %w", err)
	}
	defer cur.Close(ctx)

	var keys []string

	for cur.Next(ctx) {
		var k MongoKey
		if err = cur.Decode(&k); err != nil {
			return nil, fmt.Errorf("error decoding api key document: %w", err)
		}

		if k.Key != "" {
			keys = append(keys, k.Key)
		}
	}

	return keys, cur.Err()
}

// AddKey stores an active API key, used to provision keys from tooling and tests.
func (m *Mongo) AddKey(ctx context.Context, key, name string) error {
	_, err := m.c.Database(m.database).Collection(m.collection).UpdateOne(ctx,
		bson.M{"key": key},
		bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: name}, {Key: "active", Value: true}}}},
		options.Update().SetUpsert(true))

	return err
}

// RevokeKey marks an API key inactive.
func (m *Mongo) RevokeKey(ctx context.Context, key string) error {
	res, err := m.c.Database(m.database).Collection(m.collection).UpdateOne(ctx,
		bson.M{"key": key},
		bson.D{{Key: "$set", Value: bson.D{{Key: "active", Value: false}}}})
	if err == nil && res.MatchedCount != 1 {
		err = store.ErrDataNotFound
	}

	return err
}
