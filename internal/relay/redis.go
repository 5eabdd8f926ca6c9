package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher appends relay messages somewhere.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Source yields relay messages and accepts acknowledgements.
type Source interface {
	Next(ctx context.Context) (*Message, string, error)
	Ack(ctx context.Context, id string) error
}

// RedisPublisher appends messages to a Redis Stream.
type RedisPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisPublisher constructs a publisher for the provided stream. maxLen
// caps the stream approximately; 0 leaves it unbounded.
func NewRedisPublisher(client redis.UniversalClient, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish adds one message.
func (p *RedisPublisher) Publish(ctx context.Context, msg Message) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("relay publisher not configured")
	}
	data, err := msg.encode()
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		ID:     "*",
		Values: map[string]interface{}{
			"data":      data,
			"kronos_id": msg.Event.ID(),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}

// RedisConsumer reads relay messages from a Redis Stream consumer group.
type RedisConsumer struct {
	client   redis.UniversalClient
	stream   string
	group    string
	name     string
	blockDur time.Duration
	// replay reads this consumer's pending entries before new ones.
	replay bool
}

// NewRedisConsumer creates a consumer bound to a stream and group.
func NewRedisConsumer(client redis.UniversalClient, stream, group, name string) *RedisConsumer {
	if stream == "" {
		stream = DefaultStream
	}
	if group == "" {
		group = DefaultGroup
	}
	if name == "" {
		name = "kronos-" + uuid.NewString()
	}
	return &RedisConsumer{
		client:   client,
		stream:   stream,
		group:    group,
		name:     name,
		blockDur: 5 * time.Second,
		replay:   true,
	}
}

// EnsureGroup creates the consumer group if it does not exist.
func (c *RedisConsumer) EnsureGroup(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("relay consumer not configured")
	}
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Next blocks for the next message. Entries delivered to this consumer
// name but never acked are returned first. It returns a nil message when the
// block window passes without data. An undecodable entry is returned with
// its id and an error so the caller can ack it away.
func (c *RedisConsumer) Next(ctx context.Context) (*Message, string, error) {
	if c == nil || c.client == nil {
		return nil, "", fmt.Errorf("relay consumer not configured")
	}
	start := ">"
	if c.replay {
		start = "0"
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, start},
		Count:    1,
		Block:    c.blockDur,
	}
	res, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if c.replay && pendingDrained(res) {
		c.replay = false
		return c.Next(ctx)
	}
	for _, stream := range res {
		for _, entry := range stream.Messages {
			raw, ok := entry.Values["data"].(string)
			if !ok {
				return nil, entry.ID, fmt.Errorf("entry %s has no data field", entry.ID)
			}
			msg, err := decodeMessage([]byte(raw))
			if err != nil {
				return nil, entry.ID, fmt.Errorf("entry %s: %w", entry.ID, err)
			}
			return &msg, entry.ID, nil
		}
	}
	return nil, "", nil
}

// Ack confirms processing of a message.
func (c *RedisConsumer) Ack(ctx context.Context, id string) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	return c.client.XAck(ctx, c.stream, c.group, id).Err()
}

func pendingDrained(res []redis.XStream) bool {
	for _, stream := range res {
		if len(stream.Messages) > 0 {
			return false
		}
	}
	return true
}
