package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colProperties  = "agg_property"
	colBookings    = "agg_booking"
	colPayments    = "agg_payment"
	colOutbox      = "app_outbox"
	colIdempotency = "app_idempotency"
	colInbox       = "app_inbox"
)

type Client struct {
	DB *mongo.Database
}

// New connects to a replica set; multi-document transactions need one.
func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on for correctness.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colBookings: {
			{Keys: bson.D{{Key: "property_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "guest_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colPayments: {
			{
				Keys:    bson.D{{Key: "booking_id", Value: 1}},
				Options: options.Index().SetName("one_pending_per_booking").SetUnique(true).SetPartialFilterExpression(bson.M{"status": "PENDING"}),
			},
			{
				Keys:    bson.D{{Key: "external_id", Value: 1}},
				Options: options.Index().SetName("unique_external_id").SetUnique(true).SetPartialFilterExpression(bson.M{"external_id": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "booking_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colOutbox: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		},
		colInbox: {
			{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
