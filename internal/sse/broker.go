package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/klumsiland/chat-server/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
	clientBufferSize  = 100
)

// Well-known topics besides per-session ones.
const (
	// LobbyTopic receives a copy of every session event for admin dashboards.
	LobbyTopic = "lobby"
	// PresenceTopic carries presence changes to every connected participant.
	PresenceTopic = "presence"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

type Client struct {
	Topics []string
	Events chan Event
	Done   chan struct{}
}

// Broker fans Redis pub/sub messages out to local SSE clients. One Redis
// subscription is held per topic while at least one local client listens.
type Broker struct {
	redis   *redis.Client
	clients map[string]map[*Client]bool // topic -> set of clients
	cancels map[string]context.CancelFunc
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redis.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		cancels: make(map[string]context.CancelFunc),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(topics ...string) *Client {
	client := &Client{
		Topics: topics,
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	b.mu.Lock()
	for _, topic := range topics {
		if b.clients[topic] == nil {
			b.clients[topic] = make(map[*Client]bool)
			ctx, cancel := context.WithCancel(b.ctx)
			b.cancels[topic] = cancel
			go b.subscribeToRedis(ctx, topic)
		}
		b.clients[topic][client] = true
	}
	b.mu.Unlock()

	log.Info().
		Strs("topics", topics).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for _, topic := range client.Topics {
		clients, ok := b.clients[topic]
		if !ok || !clients[client] {
			continue
		}
		delete(clients, client)
		removed = true

		if len(clients) == 0 {
			delete(b.clients, topic)
			if cancel, ok := b.cancels[topic]; ok {
				cancel()
				delete(b.cancels, topic)
			}
		}
	}

	if removed {
		close(client.Done)
		log.Info().
			Strs("topics", client.Topics).
			Msg("sse client unsubscribed")
	}
}

func (b *Broker) Publish(ctx context.Context, topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.redis.Publish(ctx, redisclient.TopicChannel(topic), data).Err()
}

func (b *Broker) subscribeToRedis(ctx context.Context, topic string) {
	channel := redisclient.TopicChannel(topic)
	pubsub := b.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("topic", topic).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(topic, event)
		}
	}
}

func (b *Broker) broadcast(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[topic] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("topic", topic).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	closed := make(map[*Client]bool)
	for _, clients := range b.clients {
		for client := range clients {
			if !closed[client] {
				close(client.Done)
				closed[client] = true
			}
		}
	}
	b.clients = make(map[string]map[*Client]bool)
	b.cancels = make(map[string]context.CancelFunc)
}

func (b *Broker) ClientCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[topic])
}
