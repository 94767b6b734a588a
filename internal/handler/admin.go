package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/audit"
	"github.com/klumsiland/chat-server/internal/config"
	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/middleware"
	"github.com/klumsiland/chat-server/internal/service"
	"github.com/klumsiland/chat-server/internal/util"
)

type AdminHandler struct {
	access       AccessManager
	chat         ChatManager
	presence     PresenceManager
	events       *EventsHandler
	gateway      func(http.Handler) http.Handler
	loginLimiter func(http.Handler) http.Handler
}

func NewAdminHandler(
	access AccessManager,
	chat ChatManager,
	presence PresenceManager,
	events *EventsHandler,
	gateway func(http.Handler) http.Handler,
	loginLimiter func(http.Handler) http.Handler,
) *AdminHandler {
	return &AdminHandler{
		access:       access,
		chat:         chat,
		presence:     presence,
		events:       events,
		gateway:      gateway,
		loginLimiter: loginLimiter,
	}
}

// Routes mounts the admin API. Every route except /auth runs behind the gateway.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.loginLimiter, chimiddleware.Timeout(config.ServerRequestTimeout)).Post("/auth", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.gateway)

		r.Get("/events", h.events.ServeLobby)
		r.Get("/sessions/{id}/events", h.events.ServeAdmin)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

			r.Post("/logout", h.Logout)
			r.Post("/generate-code", h.GenerateCode)
			r.Get("/codes", h.ListCodes)
			r.Post("/codes/{code}/deactivate", h.DeactivateCode)
			r.Get("/sessions", h.ListSessions)
			r.Get("/sessions/{id}", h.GetSession)
			r.Get("/sessions/{id}/messages", h.ListMessages)
			r.Post("/sessions/{id}/messages", h.SendMessage)
			r.Get("/admin-sessions", h.ListAdminSessions)
			r.Get("/status", h.Status)
			r.Post("/presence", h.SetPresence)
		})
	})

	return r
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.access.RedeemAdminCode(r.Context(), req.Code)
	if err != nil {
		if apperrors.IsAuthError(err) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminLoginFailure})
		} else if apperrors.GetCode(err) == apperrors.ErrCodeDatabase || !apperrors.IsAppError(err) {
			log.Error().Err(err).Msg("admin login error")
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminLogin})
	writeSuccess(w, map[string]any{"adminToken": token})
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetAdminSession(r.Context())

	if err := h.access.EndAdminSession(r.Context(), middleware.GetAdminToken(r.Context())); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventAdminLogout, AdminSessionID: admin.ID})
	writeSuccess(w, nil)
}

func (h *AdminHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	admin := middleware.GetAdminSession(r.Context())

	var req struct {
		AdminKey string `json:"adminKey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	code, err := h.access.IssueAccessCode(r.Context(), middleware.GetAdminToken(r.Context()), req.AdminKey)
	if err != nil {
		if apperrors.IsAuthError(err) {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeIssueFailure, AdminSessionID: admin.ID})
		} else {
			log.Error().Err(err).Msg("failed to issue access code")
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:           audit.EventCodeIssue,
		AdminSessionID: admin.ID,
		Details:        map[string]interface{}{"code": util.MaskCode(code.Code)},
	})
	writeSuccess(w, map[string]any{"code": code.Code})
}

func (h *AdminHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	codes, total, err := h.access.ListCodes(r.Context(), p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list codes")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"codes": orEmpty(codes), "total": total})
}

func (h *AdminHandler) DeactivateCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.access.DeactivateCode(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:           audit.EventCodeDeactivate,
		AdminSessionID: middleware.GetAdminSession(r.Context()).ID,
		Details:        map[string]interface{}{"code": util.MaskCode(util.NormalizeCode(code))},
	})
	writeSuccess(w, nil)
}

func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	sessions, total, err := h.access.ListSessions(r.Context(), p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"sessions": orEmpty(sessions), "total": total})
}

func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.access.FindSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"session": session})
}

func (h *AdminHandler) ListAdminSessions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r)

	sessions, total, err := h.access.ListAdminSessions(r.Context(), p.Limit, p.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list admin sessions")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"sessions": orEmpty(sessions), "total": total})
}

func (h *AdminHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p := ParseMessagePagination(r)

	messages, total, err := h.chat.ListForAdmin(r.Context(), chi.URLParam(r, "id"), p.Limit, p.Offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"messages": orEmpty(messages), "total": total})
}

func (h *AdminHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req service.SendMessageParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.chat.SendAsKlum(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{"message": msg})
}

func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.access.GetStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get stats")
		writeError(w, err)
		return
	}

	chatStatus, err := h.presence.Status(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("failed to get chat status")
		writeError(w, err)
		return
	}

	writeSuccess(w, map[string]any{
		"status": map[string]any{
			"codes":          stats.Codes,
			"activeCodes":    stats.ActiveCodes,
			"sessions":       stats.Sessions,
			"activeSessions": stats.ActiveSessions,
			"messages":       stats.Messages,
			"klumOnline":     chatStatus.KlumOnline,
			"hasActiveUser":  chatStatus.HasActiveUser,
			"chatAvailable":  chatStatus.ChatAvailable,
		},
	})
}

func (h *AdminHandler) SetPresence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Online == nil {
		writeError(w, apperrors.MissingRequired("online"))
		return
	}

	if err := h.presence.SetKlum(r.Context(), *req.Online); err != nil {
		log.Warn().Err(err).Msg("failed to update klum presence")
		writeError(w, err)
		return
	}

	writeSuccess(w, nil)
}
