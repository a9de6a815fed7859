// Package mongo wires the materialized CDC document store, grounded on
// the teacher's common/mmongo/mongo.go MongoConnection.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cebartling/orderflow/internal/telemetry"
)

// Connection is a hub that deals with mongodb connections, mirroring
// common/mmongo.MongoConnection.
type Connection struct {
	URI      string
	Database string
	Client   *mongo.Client
}

// Connect dials mongo and pings it.
func (c *Connection) Connect(ctx context.Context) error {
	logger := telemetry.LoggerFromContext(ctx)
	logger.Infow("connecting to mongodb")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return fmt.Errorf("mongo: connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo: ping: %w", err)
	}

	c.Client = client
	logger.Infow("connected to mongodb")

	return nil
}

// DB returns the configured database handle.
func (c *Connection) DB() *mongo.Database {
	return c.Client.Database(c.Database)
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}

	return c.Client.Disconnect(ctx)
}
