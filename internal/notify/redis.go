// Redis-backed notification sink.
//
// Messages are published to a per-chat pub/sub channel ("<prefix>:<chatID>").
// A separate websocket termination service subscribes to the channels of
// the chats its connections care about and forwards payloads to clients.
// Pub/sub gives at-most-once, no-backlog semantics, which matches the
// fire-and-forget contract of the sink boundary.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"direct-chat/internal/domain"
)

// Envelope is the JSON payload published for every new message. The chat id
// is repeated inside the body so subscribers multiplexing several channels
// over one connection do not need to parse the channel name.
type Envelope struct {
	ChatID  string          `json:"chat_id"`
	Message *domain.Message `json:"message"`
}

// RedisSink publishes message envelopes to Redis pub/sub.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink dials Redis at addr and returns a sink publishing under the
// given channel prefix (e.g. "chat"). The connection is verified lazily; a
// down Redis surfaces as Publish errors, which callers log and count.
func NewRedisSink(addr, prefix string) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &RedisSink{client: client, prefix: prefix}
}

// NewRedisSinkFromClient wraps an existing client (used by tests and by
// deployments that share one client across components).
func NewRedisSinkFromClient(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel name for a chat.
func (s *RedisSink) Channel(chatID string) string {
	return s.prefix + ":" + chatID
}

// Publish implements Sink. It marshals the envelope and publishes it to the
// chat's channel. Errors are returned for the caller to log; they never
// affect the already-committed message.
func (s *RedisSink) Publish(ctx context.Context, chatID string, msg *domain.Message) error {
	payload, err := MarshalEnvelope(chatID, msg)
	if err != nil {
		failedTotal.WithLabelValues("redis").Inc()
		return err
	}
	if err := s.client.Publish(ctx, s.Channel(chatID), payload).Err(); err != nil {
		failedTotal.WithLabelValues("redis").Inc()
		return err
	}
	publishedTotal.WithLabelValues("redis").Inc()
	return nil
}

// Close releases the underlying client connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// MarshalEnvelope builds the wire payload for a message notification.
func MarshalEnvelope(chatID string, msg *domain.Message) ([]byte, error) {
	return json.Marshal(Envelope{ChatID: chatID, Message: msg})
}
