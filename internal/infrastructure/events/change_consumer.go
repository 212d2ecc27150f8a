package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/hilthontt/reelsync/internal/infrastructure/contracts"
	"github.com/hilthontt/reelsync/internal/infrastructure/logging"
	"github.com/hilthontt/reelsync/internal/infrastructure/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
)

type ChangeConsumer struct {
	broker Broker
	logger logging.Logger
	buffer int
}

func NewChangeConsumer(broker Broker, logger logging.Logger, buffer int) *ChangeConsumer {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChangeConsumer{
		broker: broker,
		logger: logger,
		buffer: buffer,
	}
}

// Listen streams every change published for projectID until ctx ends or the
// subscription is closed.
func (c *ChangeConsumer) Listen(ctx context.Context, projectID string) (domain.ChangeSubscription, error) {
	deliveries, cleanup, err := c.broker.ConsumeExclusive(contracts.ProjectRoutingKey(projectID))
	if err != nil {
		return nil, fmt.Errorf("consuming changes: %w: %v", domain.ErrStoreUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &amqpChangeSubscription{
		ch:      make(chan domain.ChangeRecord, c.buffer),
		cancel:  cancel,
		cleanup: cleanup,
		done:    make(chan struct{}),
	}
	go sub.pump(ctx, deliveries, c.logger)

	return sub, nil
}

type amqpChangeSubscription struct {
	ch      chan domain.ChangeRecord
	cancel  context.CancelFunc
	cleanup func()
	done    chan struct{}
	once    sync.Once
}

func (s *amqpChangeSubscription) pump(ctx context.Context, deliveries <-chan amqp.Delivery, logger logging.Logger) {
	defer close(s.done)
	defer close(s.ch)
	defer s.cleanup()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}

			var message contracts.AmqpMessage
			if err := json.Unmarshal(msg.Body, &message); err != nil {
				logger.Warn(logging.RabbitMQ, logging.Subscribe, "failed to unmarshal message", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
				continue
			}

			var payload messaging.ChangeEventData
			if err := json.Unmarshal(message.Data, &payload); err != nil {
				logger.Warn(logging.RabbitMQ, logging.Subscribe, "failed to unmarshal change event", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
				continue
			}

			select {
			case s.ch <- payload.Record:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *amqpChangeSubscription) Changes() <-chan domain.ChangeRecord {
	return s.ch
}

func (s *amqpChangeSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
