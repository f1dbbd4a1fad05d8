package persistence

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const recordsCollection = "user_records"

//MongoClient stores one document per user, using the user ID as the document _id
type MongoClient struct {
	client  *mongo.Client
	records *mongo.Collection
}

//NewMongoClient connects and pings the configured MongoDB deployment
func NewMongoClient(ctx context.Context, uri string, database string) (*MongoClient, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	log.WithField("database", database).Info("mongo record store initialized")
	return &MongoClient{
		client:  client,
		records: client.Database(database).Collection(recordsCollection),
	}, nil
}

//GetRecord will look up the document stored for the provided user ID
func (c *MongoClient) GetRecord(ctx context.Context, userID string) (UserRecord, Status) {
	var ur UserRecord
	err := c.records.FindOne(ctx, bson.M{"_id": userID}).Decode(&ur)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return UserRecord{}, NOT_FOUND
	}
	if err != nil {
		log.WithError(err).WithField("UserID", userID).Error("could not retrieve user document")
		return UserRecord{}, BACKEND_ERROR
	}
	return ur, OK
}

//PutRecord replaces the whole document for the record's user ID, inserting it when absent
func (c *MongoClient) PutRecord(ctx context.Context, record UserRecord) Status {
	if record.UserID == "" {
		log.Error("refusing to store a record without a user ID")
		return BACKEND_ERROR
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := c.records.ReplaceOne(ctx, bson.M{"_id": record.UserID}, record, opts); err != nil {
		log.WithError(err).WithField("UserID", record.UserID).Error("could not store user document")
		return BACKEND_ERROR
	}
	log.WithField("UserID", record.UserID).Info("stored user document")
	return UPSERTED
}

//ActiveConnection pings the primary
func (c *MongoClient) ActiveConnection(ctx context.Context) bool {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		log.WithError(err).Error("could not connect to mongo")
		return false
	}
	return true
}

func (c *MongoClient) Close() error {
	return c.client.Disconnect(context.Background())
}
