package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DEEPML1818/dsoc/common/logger"
	rediscommon "github.com/DEEPML1818/dsoc/common/redis"
)

// RedisStreamQueue implements Queue on Redis streams with consumer groups
type RedisStreamQueue struct {
	client   *rediscommon.Client
	log      *logger.Logger
	maxLen   int64
	consumer string

	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

// NewRedisStreamQueue creates a stream-backed queue
func NewRedisStreamQueue(client *rediscommon.Client, maxLen int64, log *logger.Logger) *RedisStreamQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisStreamQueue{
		client:   client,
		log:      log,
		maxLen:   maxLen,
		consumer: fmt.Sprintf("consumer_%s", uuid.NewString()[:8]),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Publish appends the message to the topic stream
func (q *RedisStreamQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	_, err := q.client.AddToStream(ctx, topic, q.maxLen, map[string]interface{}{
		"key":   key,
		"value": string(message),
	})
	return err
}

// Subscribe reads the topic stream as a member of group
func (q *RedisStreamQueue) Subscribe(ctx context.Context, topic, group string, handler MessageHandler) error {
	if err := q.client.CreateStreamGroup(ctx, topic, group); err != nil {
		return err
	}

	q.log.Info("subscribing to stream",
		"stream", topic,
		"group", group,
		"consumer", q.consumer)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.ctx.Done():
				return
			default:
			}

			if err := q.readOnce(ctx, topic, group, handler); err != nil {
				if ctx.Err() != nil || q.ctx.Err() != nil {
					return
				}
				q.log.Warn("stream read failed", "stream", topic, "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}()

	return nil
}

func (q *RedisStreamQueue) readOnce(ctx context.Context, topic, group string, handler MessageHandler) error {
	streams, err := q.client.ReadFromStreamGroup(ctx, group, q.consumer, topic, 10, 2*time.Second)
	if err != nil {
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			key, _ := msg.Values["key"].(string)
			value, _ := msg.Values["value"].(string)

			if err := handler(ctx, key, []byte(value)); err != nil {
				q.log.Error("message handler error", "stream", topic, "message_id", msg.ID, "error", err)
			}

			if err := q.client.AckStreamMessage(ctx, topic, group, msg.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close stops all subscriptions
func (q *RedisStreamQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
