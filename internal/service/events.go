package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/sse"
)

// publishEvent sends data to each topic. Delivery is best effort: a failed
// publish is logged and never fails the operation that produced the event.
func publishEvent(ctx context.Context, publisher EventPublisher, eventType string, data any, topics ...string) {
	if publisher == nil {
		return
	}

	event, err := sse.NewEvent(eventType, data)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("failed to encode event")
		return
	}

	for _, topic := range topics {
		if err := publisher.Publish(ctx, topic, event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Str("type", eventType).Msg("failed to publish event")
		}
	}
}
