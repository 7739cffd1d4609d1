package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/escrowcore/ledgercore/internal/events"
	"github.com/escrowcore/ledgercore/internal/mlog"
)

// domainEventsExchange is the single topic exchange every outbound
// domain event is published to, routed by events.Kind as the routing
// key so external collaborators can bind only the kinds they care
// about (e.g. "escrow.*").
const domainEventsExchange = "ledgercore.domain_events"

// Publisher implements events.Publisher against the shared RabbitMQ
// deployment, grounded on the teacher's ProducerRabbitMQRepository.
type Publisher struct {
	Conn *Connection
}

func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{Conn: conn}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	logger := mlog.NewLoggerFromContext(ctx)

	channel, err := p.Conn.GetChannel(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := channel.PublishWithContext(ctx, domainEventsExchange, string(event.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		logger.Errorf("rabbitmq: publish %s failed: %v", event.Kind, err)
		return err
	}

	logger.Infof("rabbitmq: published %s", event.Kind)

	return nil
}

var _ events.Publisher = (*Publisher)(nil)
