package events

import (
	"context"
	"encoding/json"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/contracts"
	"github.com/hilthontt/reelsync/internal/infrastructure/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker is the slice of *messaging.RabbitMQ the change fan-out needs.
type Broker interface {
	PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error
	ConsumeExclusive(routingKey string) (<-chan amqp.Delivery, func(), error)
}

type ChangePublisher struct {
	broker Broker
}

func NewChangePublisher(broker Broker) *ChangePublisher {
	return &ChangePublisher{
		broker: broker,
	}
}

func (p *ChangePublisher) PublishChangeAppended(ctx context.Context, record domain.ChangeRecord) error {
	payload := messaging.ChangeEventData{
		Record: record,
	}

	recordJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return p.broker.PublishMessage(ctx, contracts.ProjectRoutingKey(record.ProjectID), contracts.AmqpMessage{
		ActorID: record.ActorID,
		Data:    recordJSON,
	})
}
