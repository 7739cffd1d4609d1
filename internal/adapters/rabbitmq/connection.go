// Package rabbitmq publishes outbound domain events (escrow released/
// refunded/disputed, webhook processed) for external collaborators,
// grounded on the teacher's common/mrabbitmq.RabbitMQConnection
// connection hub and its consumer/producer adapters, ported from
// streadway/amqp to this project's rabbitmq/amqp091-go (the
// drop-in-compatible successor fork the ecosystem moved to).
package rabbitmq

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/escrowcore/ledgercore/internal/mlog"
)

// Connection is a lazily-connected singleton hub for the shared
// RabbitMQ deployment, mirroring the teacher's RabbitMQConnection.
type Connection struct {
	ConnectionStringSource string
	Logger                 mlog.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials RabbitMQ and opens one channel for publishing.
func (c *Connection) Connect(ctx context.Context) error {
	logger := c.logger(ctx)
	logger.Info("connecting to rabbitmq")

	conn, err := amqp.Dial(c.ConnectionStringSource)
	if err != nil {
		logger.Errorf("rabbitmq dial failed: %v", err)
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		logger.Errorf("rabbitmq channel open failed: %v", err)
		return err
	}

	if err := channel.ExchangeDeclare(domainEventsExchange, "topic", true, false, false, false, nil); err != nil {
		logger.Errorf("rabbitmq exchange declare failed: %v", err)
		return err
	}

	logger.Info("connected to rabbitmq")
	c.conn = conn
	c.channel = channel

	return nil
}

// GetChannel returns the live channel, connecting on first use.
func (c *Connection) GetChannel(ctx context.Context) (*amqp.Channel, error) {
	if c.channel == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.channel, nil
}

// Close tears down the channel and connection, if open.
func (c *Connection) Close() error {
	var errs []error

	if c.channel != nil {
		errs = append(errs, c.channel.Close())
	}

	if c.conn != nil {
		errs = append(errs, c.conn.Close())
	}

	return errors.Join(errs...)
}

func (c *Connection) logger(ctx context.Context) mlog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return mlog.NewLoggerFromContext(ctx)
}
