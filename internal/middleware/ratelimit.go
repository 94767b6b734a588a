package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/klumsiland/chat-server/internal/audit"
	apperrors "github.com/klumsiland/chat-server/internal/errors"
	"github.com/klumsiland/chat-server/internal/service"
)

type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit service.Limit) (allowed bool, resetAt time.Time)
}

// KeyFunc picks the bucket a request is counted in. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

// ByIP counts requests per client address.
func ByIP(r *http.Request) string {
	return audit.ClientIP(r)
}

// BySession counts requests per chat session. It must run after SessionMiddleware.
func BySession(r *http.Request) string {
	if session := GetChatSession(r.Context()); session != nil {
		return session.ID
	}
	return ""
}

type RateLimitMiddleware struct {
	limiter Limiter
	limit   service.Limit
	prefix  string
	keyFunc KeyFunc
}

func NewRateLimitMiddleware(limiter Limiter, limit service.Limit, prefix string, keyFunc KeyFunc) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		prefix:  prefix,
		keyFunc: keyFunc,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.keyFunc(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("%s:%s", m.prefix, id)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit.Requests))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			log.Warn().Str("bucket", m.prefix).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"bucket": m.prefix, "path": r.URL.Path},
			})
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
