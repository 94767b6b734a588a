package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klumsiland/chat-server/internal/middleware"
	"github.com/klumsiland/chat-server/internal/model"
	"github.com/klumsiland/chat-server/internal/sse"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	clients      chan *sse.Client
	topics       [][]string
	unsubscribed int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{clients: make(chan *sse.Client, 4)}
}

func (f *fakeSubscriber) Subscribe(topics ...string) *sse.Client {
	client := &sse.Client{
		Topics: topics,
		Events: make(chan sse.Event, 8),
		Done:   make(chan struct{}),
	}
	f.mu.Lock()
	f.topics = append(f.topics, topics)
	f.mu.Unlock()
	f.clients <- client
	return client
}

func (f *fakeSubscriber) Unsubscribe(client *sse.Client) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed++
}

func withChatSession(r *http.Request, session *model.ChatSession) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.ChatSessionContextKey, session)
	return r.WithContext(ctx)
}

func TestEventsHandler_ServeChat(t *testing.T) {
	t.Run("returns 401 without a session in context", func(t *testing.T) {
		h := NewEventsHandler(newFakeSubscriber())

		req := httptest.NewRequest(http.MethodGet, "/api/chat/events", nil)
		rec := httptest.NewRecorder()
		h.ServeChat(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":false`)
	})

	t.Run("streams until the session ends", func(t *testing.T) {
		broker := newFakeSubscriber()
		h := NewEventsHandler(broker)

		req := withChatSession(httptest.NewRequest(http.MethodGet, "/api/chat/events", nil), &model.ChatSession{ID: "sess-1", Active: true})
		rec := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			h.ServeChat(rec, req)
			close(done)
		}()

		var client *sse.Client
		select {
		case client = <-broker.clients:
		case <-time.After(time.Second):
			t.Fatal("handler never subscribed")
		}
		assert.Equal(t, []string{"sess-1", sse.PresenceTopic}, client.Topics)

		msg, err := sse.NewEvent(model.EventMessage, map[string]string{"content": "hello"})
		require.NoError(t, err)
		ended, err := sse.NewEvent(model.EventSessionEnded, map[string]string{"sessionId": "sess-1"})
		require.NoError(t, err)
		client.Events <- msg
		client.Events <- ended

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stream did not close after session_ended")
		}

		body := rec.Body.String()
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Contains(t, body, "event: connected\n")
		assert.Contains(t, body, `"sessionId":"sess-1"`)
		assert.Contains(t, body, "event: message\n")
		assert.Contains(t, body, "event: session_ended\n")
		assert.Equal(t, 1, broker.unsubscribed)
	})
}

func TestEventsHandler_ServeAdmin(t *testing.T) {
	t.Run("rejects a malformed session id", func(t *testing.T) {
		h := NewEventsHandler(newFakeSubscriber())

		r := chi.NewRouter()
		r.Get("/sessions/{id}/events", h.ServeAdmin)

		req := httptest.NewRequest(http.MethodGet, "/sessions/not-a-uuid/events", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stays open across session_ended until the client leaves", func(t *testing.T) {
		broker := newFakeSubscriber()
		h := NewEventsHandler(broker)

		r := chi.NewRouter()
		r.Get("/sessions/{id}/events", h.ServeAdmin)

		id := "3b241101-e2bb-4255-8caf-4136c566a962"
		ctx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+id+"/events", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			r.ServeHTTP(rec, req)
			close(done)
		}()

		client := <-broker.clients
		assert.Equal(t, []string{id, sse.PresenceTopic}, client.Topics)

		ended, err := sse.NewEvent(model.EventSessionEnded, map[string]string{"sessionId": id})
		require.NoError(t, err)
		client.Events <- ended

		select {
		case <-done:
			t.Fatal("admin stream closed on session_ended")
		case <-time.After(50 * time.Millisecond):
		}

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stream did not close on client disconnect")
		}
	})
}

func TestEventsHandler_ServeLobby(t *testing.T) {
	broker := newFakeSubscriber()
	h := NewEventsHandler(broker)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/events", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeLobby(rec, req)
		close(done)
	}()

	client := <-broker.clients
	assert.Equal(t, []string{sse.LobbyTopic, sse.PresenceTopic}, client.Topics)

	close(client.Done)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not close when the broker dropped the client")
	}
	assert.Contains(t, rec.Body.String(), `"lobby":true`)
}

func TestEventsHandler_sendEvent(t *testing.T) {
	h := &EventsHandler{}
	rec := httptest.NewRecorder()

	err := h.sendEvent(rec, rec, model.EventConnected, map[string]any{"sessionId": "sess-1"})

	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "event: connected\n")
	assert.Contains(t, body, `data: {"sessionId":"sess-1"}`)
}

func TestEventsHandler_sendRawEvent(t *testing.T) {
	h := &EventsHandler{}
	rec := httptest.NewRecorder()

	event := sse.Event{
		Type: model.EventMessage,
		Data: json.RawMessage(`{"content":"hello"}`),
	}

	err := h.sendRawEvent(rec, rec, event)

	require.NoError(t, err)
	assert.Equal(t, "event: message\ndata: {\"content\":\"hello\"}\n\n", rec.Body.String())
}
