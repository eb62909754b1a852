package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/DEEPML1818/dsoc/common/logger"
)

// AMQPQueue implements Queue on a RabbitMQ topic exchange
type AMQPQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *logger.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewAMQPQueue dials url and declares a durable topic exchange
func NewAMQPQueue(url, exchange string, log *logger.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPQueue{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		log:      log,
	}, nil
}

// Publish sends message with the topic as routing key
func (q *AMQPQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.channel.PublishWithContext(ctx,
		q.exchange,
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    key,
			Body:         message,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe declares a durable queue per (topic, group) and consumes it
func (q *AMQPQueue) Subscribe(ctx context.Context, topic, group string, handler MessageHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	queueName := fmt.Sprintf("%s.%s.%s", q.exchange, topic, group)
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(queueName, topic, q.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to consume %s: %w", queueName, err)
	}

	q.log.Info("subscribing to amqp queue", "queue", queueName, "routing_key", topic)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := handler(ctx, d.MessageId, d.Body); err != nil {
					q.log.Error("message handler error", "queue", queueName, "error", err)
					d.Nack(false, false)
					continue
				}
				d.Ack(false)
			}
		}
	}()

	return nil
}

// Close closes the channel and connection
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.channel.Close(); err != nil {
		q.log.Warn("failed to close amqp channel", "error", err)
	}
	err := q.conn.Close()
	q.wg.Wait()
	return err
}
