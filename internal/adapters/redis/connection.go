// Package redis holds the Redis-backed implementations of C6's
// idempotency.Store and C7's scheduler.Locker, grounded on the
// teacher's common/mredis.RedisConnection connection hub.
package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/escrowcore/ledgercore/internal/mlog"
)

// Connection is a lazily-connected singleton hub for the shared Redis
// deployment, mirroring the teacher's RedisConnection.
type Connection struct {
	ConnectionStringSource string
	Client                 *redis.Client
	Logger                 mlog.Logger
}

// Connect dials Redis and verifies reachability with a PING.
func (c *Connection) Connect(ctx context.Context) error {
	logger := c.logger(ctx)
	logger.Info("connecting to redis")

	opts, err := redis.ParseURL(c.ConnectionStringSource)
	if err != nil {
		return err
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Errorf("redis ping failed: %v", err)
		return err
	}

	logger.Info("connected to redis")
	c.Client = client

	return nil
}

// GetClient returns the live client, connecting on first use.
func (c *Connection) GetClient(ctx context.Context) (*redis.Client, error) {
	if c.Client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.Client, nil
}

func (c *Connection) logger(ctx context.Context) mlog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return mlog.NewLoggerFromContext(ctx)
}
