package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hilthontt/reelsync/internal/infrastructure/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
	// amqp channels are not safe for concurrent publishes
	publishMu sync.Mutex
}

func NewRabbitMQ(uri string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		Channel: ch,
	}

	if err := rmq.setupExchanges(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *RabbitMQ) setupExchanges() error {
	err := r.Channel.ExchangeDeclare(
		ChangesExchange, // name
		"topic",         // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", ChangesExchange, err)
	}
	return nil
}

func (r *RabbitMQ) PublishMessage(ctx context.Context, routingKey string, message contracts.AmqpMessage) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	return r.Channel.PublishWithContext(ctx,
		ChangesExchange, // exchange
		routingKey,      // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         contracts.EventChangeAppended,
			DeliveryMode: amqp.Transient,
			Body:         body,
		},
	)
}

// ConsumeExclusive declares a server-named, exclusive, auto-delete queue bound
// to routingKey and consumes it on a dedicated channel. The returned cleanup
// closes that channel, which drops the queue.
func (r *RabbitMQ) ConsumeExclusive(routingKey string) (<-chan amqp.Delivery, func(), error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ChangesExchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to bind queue to %s: %w", routingKey, err)
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to consume %s: %w", q.Name, err)
	}

	return deliveries, func() { ch.Close() }, nil
}
