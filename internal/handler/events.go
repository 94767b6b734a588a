package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/middleware"
	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/sse"
	"github.com/klumsiland/chat-server/internal/util"
)

// EventsHandler streams broker topics to browsers as server-sent events.
type EventsHandler struct {
	broker Subscriber
}

func NewEventsHandler(broker Subscriber) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// ServeChat streams the visitor's own session plus presence changes. The
// stream closes after the session ends.
func (h *EventsHandler) ServeChat(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetChatSession(r.Context())
	if session == nil {
		writeError(w, apperrors.Unauthorized("Session token required"))
		return
	}

	h.stream(w, r, true, map[string]any{"sessionId": session.ID}, session.ID, sse.PresenceTopic)
}

// ServeAdmin streams one chat session to an admin.
func (h *EventsHandler) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !util.IsValidUUID(id) {
		writeError(w, apperrors.InvalidInput("id", "must be a UUID"))
		return
	}

	h.stream(w, r, false, map[string]any{"sessionId": id}, id, sse.PresenceTopic)
}

// ServeLobby streams every session's events to an admin dashboard.
func (h *EventsHandler) ServeLobby(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, false, map[string]any{"lobby": true}, sse.LobbyTopic, sse.PresenceTopic)
}

func (h *EventsHandler) stream(w http.ResponseWriter, r *http.Request, closeOnEnd bool, hello map[string]any, topics ...string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(topics...)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Strs("topics", topics).
		Msg("sse connection established")

	ctx := r.Context()

	if err := h.sendEvent(w, flusher, model.EventConnected, hello); err != nil {
		return
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Strs("topics", topics).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Strs("topics", topics).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}
			if closeOnEnd && event.Type == model.EventSessionEnded {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Strs("topics", topics).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
