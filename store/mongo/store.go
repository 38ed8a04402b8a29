// Package mongo implements the record store on MongoDB, one document per
// client key.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/entitle/entitlement"
	entitlestore "github.com/xraph/entitle/store"
)

// Collection name constants.
const (
	colRecords = "entitle_records"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	owned  bool
}

// Connect dials uri and uses the named database. The returned store owns
// the client and disconnects it on Close.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, fmt.Errorf("entitle/mongo: ping: %w", err)
	}
	s := New(client.Database(database))
	s.owned = true
	return s, nil
}

// New wraps an existing database handle. Close does not disconnect a
// client the store did not create.
func New(db *mongo.Database) *Store {
	return &Store{client: db.Client(), db: db}
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) records() *mongo.Collection { return s.db.Collection(colRecords) }

// Migrate creates indexes for the records collection.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.records().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "last_updated", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("entitle/mongo: migrate %s indexes: %w", colRecords, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client when the store owns it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

func (s *Store) Load(ctx context.Context) (map[string]*entitlement.Record, error) {
	cursor, err := s.records().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: load: %w", err)
	}

	var models []recordModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("entitle/mongo: load: %w", err)
	}

	out := make(map[string]*entitlement.Record, len(models))
	for i := range models {
		out[models[i].ClientKey] = fromRecordModel(&models[i])
	}
	return out, nil
}

// Save replaces or inserts one document per supplied record.
func (s *Store) Save(ctx context.Context, records map[string]*entitlement.Record) error {
	writes := make([]mongo.WriteModel, 0, len(records))
	for key, r := range records {
		if r == nil {
			continue
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": key}).
			SetReplacement(toRecordModel(key, r)).
			SetUpsert(true))
	}
	if len(writes) == 0 {
		return nil
	}

	if _, err := s.records().BulkWrite(ctx, writes); err != nil {
		return fmt.Errorf("entitle/mongo: save: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, clientKey string) (*entitlement.Record, error) {
	var m recordModel
	err := s.records().FindOne(ctx, bson.M{"_id": clientKey}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitlement.ErrNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get: %w", err)
	}
	return fromRecordModel(&m), nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}
