package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/audit"
	"github.com/klumsiland/chat-server/internal/config"
	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/util"
)

// AuthHandler serves the visitor side of the access flow: redeeming a code,
// checking a session and ending it.
type AuthHandler struct {
	access       AccessManager
	loginLimiter func(http.Handler) http.Handler
}

func NewAuthHandler(access AccessManager, loginLimiter func(http.Handler) http.Handler) *AuthHandler {
	return &AuthHandler{
		access:       access,
		loginLimiter: loginLimiter,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.With(h.loginLimiter).Post("/validate-code", h.ValidateCode)
	r.Post("/validate-session", h.ValidateSession)
	r.Post("/end-session", h.EndSession)

	return r
}

func (h *AuthHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, err := h.access.RedeemAccessCode(r.Context(), req.Code)
	if err != nil {
		if apperrors.IsAuthError(err) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventCodeRejected,
				Details: map[string]interface{}{"code": util.MaskCode(util.NormalizeCode(req.Code))},
			})
		} else if !apperrors.IsAppError(err) || apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			log.Error().Err(err).Msg("failed to redeem access code")
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventCodeRedeemed,
		Details: map[string]interface{}{"code": util.MaskCode(util.NormalizeCode(req.Code))},
	})
	writeSuccess(w, map[string]any{"sessionToken": token})
}

func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	valid, err := h.access.ValidateSession(r.Context(), req.SessionToken)
	if err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			log.Error().Err(err).Msg("failed to validate session")
		}
		writeError(w, err)
		return
	}
	if !valid {
		writeError(w, apperrors.InvalidSession())
		return
	}

	writeSuccess(w, nil)
}

func (h *AuthHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.access.EndSession(r.Context(), req.SessionToken); err != nil {
		if apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
			log.Error().Err(err).Msg("failed to end session")
		}
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventSessionEnd})
	writeSuccess(w, nil)
}
