package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/DEEPML1818/dsoc/common/logger"
)

// ErrClosed is returned when publishing to a closed queue
var ErrClosed = errors.New("queue closed")

// Queue interface for message passing.
//
// Subscribers sharing a group compete for messages; every distinct group
// receives its own copy of each message.
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic, group string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

// Message represents a queue message
type Message struct {
	Topic string
	Key   string
	Value []byte
}

// MemoryQueue is an in-process queue
type MemoryQueue struct {
	groups map[string]map[string]chan *Message // topic -> group -> channel
	mu     sync.RWMutex
	wg     sync.WaitGroup
	closed bool
	log    *logger.Logger
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		groups: make(map[string]map[string]chan *Message),
		log:    log,
	}
}

// Publish publishes a message to every group subscribed to topic
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	msg := &Message{
		Topic: topic,
		Key:   key,
		Value: message,
	}

	for group, ch := range q.groups[topic] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			q.log.Warn("queue full, dropping message", "topic", topic, "group", group)
		}
	}
	return nil
}

// Subscribe subscribes to a topic and processes messages until ctx is done
func (q *MemoryQueue) Subscribe(ctx context.Context, topic, group string, handler MessageHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.groups[topic] == nil {
		q.groups[topic] = make(map[string]chan *Message)
	}
	ch, exists := q.groups[topic][group]
	if !exists {
		ch = make(chan *Message, 1000)
		q.groups[topic][group] = ch
	}
	q.wg.Add(1)
	q.mu.Unlock()

	q.log.Info("subscribing to topic", "topic", topic, "group", group)

	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				q.log.Debug("subscription cancelled", "topic", topic, "group", group)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, msg.Key, msg.Value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.Key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close closes all topic channels and waits for subscribers to return
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for topic, groups := range q.groups {
		for _, ch := range groups {
			close(ch)
		}
		q.log.Info("closed topic", "topic", topic)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
