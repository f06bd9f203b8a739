package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colUnits       = "fleet_units"
	colGroups      = "fleet_groups"
	colBookings    = "bookings"
	colOccupancy   = "unit_occupancy"
	colOutbox      = "app_outbox"
	colIdempotency = "app_idempotency"
)

type Client struct {
	DB *mongo.Database
	// IdempotencyTTL bounds how long replayable results live. Zero means a week.
	IdempotencyTTL time.Duration
}

func (c *Client) idempotencyTTL() time.Duration {
	if c.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.IdempotencyTTL
}

// New connects to a replica set. Transactions need one, so a standalone
// server is rejected on first Begin rather than here.
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

// EnsureIndexes creates the indexes the repositories rely on. It is idempotent.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		colUnits: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "position", Value: 1}}},
		},
		colBookings: {
			{Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start", Value: 1}}},
			{Keys: bson.D{{Key: "unit_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colOutbox: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		},
		colIdempotency: {
			{Keys: bson.D{{Key: "created_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(c.idempotencyTTL().Seconds()))},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
