package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/config"
	"github.com/klumsiland/chat-server/internal/middleware"
	"github.com/klumsiland/chat-server/internal/service"
)

// ChatHandler serves the visitor's chat: messages, presence, the event stream
// and the role-play generators.
type ChatHandler struct {
	chat         ChatManager
	presence     PresenceManager
	story        StoryTeller
	events       *EventsHandler
	session      func(http.Handler) http.Handler
	messageLimit func(http.Handler) http.Handler
}

func NewChatHandler(
	chat ChatManager,
	presence PresenceManager,
	story StoryTeller,
	events *EventsHandler,
	session func(http.Handler) http.Handler,
	messageLimit func(http.Handler) http.Handler,
) *ChatHandler {
	return &ChatHandler{
		chat:         chat,
		presence:     presence,
		story:        story,
		events:       events,
		session:      session,
		messageLimit: messageLimit,
	}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(chimiddleware.Timeout(config.ServerRequestTimeout)).Get("/status", h.Status)

	r.Group(func(r chi.Router) {
		r.Use(h.session)

		r.Get("/events", h.events.ServeChat)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Post("/presence", h.SetPresence)
			r.Get("/messages", h.ListMessages)
			r.With(h.messageLimit).Post("/messages", h.SendMessage)
			r.With(h.messageLimit).Post("/story", h.GenerateStory)
			r.With(h.messageLimit).Post("/image", h.GenerateImage)
			r.With(h.messageLimit).Post("/suggestion", h.Suggest)
			r.With(h.messageLimit).Post("/translate", h.Translate)
		})
	})

	return r
}

func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.presence.Status(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to get chat status")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"klumOnline":    status.KlumOnline,
		"hasActiveUser": status.HasActiveUser,
		"chatAvailable": status.ChatAvailable,
	})
}

func (h *ChatHandler) SetPresence(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetChatSession(r.Context())

	var req struct {
		Online      bool   `json:"online"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.presence.SetUser(r.Context(), session.ID, req.Online, req.DisplayName); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to update presence")
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetChatSession(r.Context())
	p := ParseMessagePagination(r)

	messages, total, err := h.chat.List(r.Context(), session.ID, p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to list messages")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"messages": orEmpty(messages), "total": total})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetChatSession(r.Context())

	var req service.SendMessageParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.chat.SendAsUser(r.Context(), session, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"message": msg})
}

func (h *ChatHandler) GenerateStory(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetChatSession(r.Context())

	var req struct {
		Era  string `json:"era"`
		Year string `json:"year"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	story, err := h.story.GenerateStory(r.Context(), session.ID, req.Era, req.Year)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"story": story})
}

func (h *ChatHandler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Era        string   `json:"era"`
		Characters []string `json:"characters"`
		Scene      string   `json:"scene"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	url, err := h.story.GenerateImage(r.Context(), req.Era, req.Characters, req.Scene)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"url": url})
}

func (h *ChatHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetChatSession(r.Context())

	var req struct {
		UserName   string `json:"userName"`
		IsRolePlay bool   `json:"isRolePlay"`
		Era        string `json:"era"`
		Character  string `json:"character"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	suggestion, err := h.story.Suggest(r.Context(), session.ID, service.SuggestParams{
		UserName:   req.UserName,
		IsRolePlay: req.IsRolePlay,
		Era:        req.Era,
		Character:  req.Character,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"suggestion": suggestion})
}

func (h *ChatHandler) Translate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message        string `json:"message"`
		TargetLanguage string `json:"targetLanguage"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	translation, err := h.story.Translate(r.Context(), req.Message, req.TargetLanguage)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"translation": translation})
}
