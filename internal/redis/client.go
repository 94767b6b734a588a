package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PresenceKey is the hash holding one presence entry per participant.
const PresenceKey = "presence"

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// TopicChannel maps a broker topic (a chat session id, "lobby" or "presence")
// to its pub/sub channel.
func TopicChannel(topic string) string {
	return fmt.Sprintf("chat:%s", topic)
}
