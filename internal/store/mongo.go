package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"mealduty-service/internal/models"
)

const (
	defaultMongoDatabase = "whereisjulien"
	bookingsCollection   = "bookings"
)

type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// OpenMongo connects, pings and ensures the unique (date, meal) index.
// The database named in the URI is used, falling back to whereisjulien.
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongodb uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(dbName).Collection(bookingsCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}, {Key: "meal", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("date_meal_unique"),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create bookings index: %w", err)
	}

	log.Printf("[store] connected to mongodb database %q", dbName)
	return &MongoStore{client: client, coll: coll}, nil
}

func keyFilter(key models.Key) bson.M {
	return bson.M{"date": key.Date, "meal": key.Meal}
}

func (s *MongoStore) Upsert(ctx context.Context, b models.Booking) (bool, error) {
	set := bson.M{
		"remboursee": b.Remboursee,
		"updatedAt":  b.UpdatedAt,
	}
	unset := bson.M{}
	if b.Reason != "" {
		set["reason"] = b.Reason
	} else {
		unset["reason"] = ""
	}
	if b.ReimbursedBy != "" {
		set["reimbursedBy"] = b.ReimbursedBy
	} else {
		unset["reimbursedBy"] = ""
	}

	// date and meal come from the filter on insert
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": b.UpdatedAt},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := s.coll.UpdateOne(ctx, keyFilter(b.Key()), update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("upsert booking: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *MongoStore) MarkReimbursed(ctx context.Context, key models.Key, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx, keyFilter(key), bson.M{
		"$set": bson.M{"remboursee": true, "updatedAt": at},
	})
	if err != nil {
		return fmt.Errorf("mark booking reimbursed: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key models.Key) error {
	res, err := s.coll.DeleteOne(ctx, keyFilter(key))
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context) ([]models.Booking, error) {
	cursor, err := s.coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Booking{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
