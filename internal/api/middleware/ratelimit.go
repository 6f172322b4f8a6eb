package middleware

import (
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"algoverse/internal/common"
	"algoverse/internal/platform/logger"
	"algoverse/internal/platform/queue"
)

// RateLimit rejects callers over limiter's budget with 429. Callers are keyed
// by identity when RequireAuth ran first, else by client address. A nil
// limiter disables the check. Limiter failures let the request through.
func RateLimit(limiter queue.Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithContext(r.Context(), log).Warn("rate limiter unavailable", zap.String("caller", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				common.RespondWithDomainError(w, fmt.Errorf("too many requests, try again later: %w", common.ErrRateLimited))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if identity, ok := GetIdentityFromContext(r.Context()); ok {
		return "user:" + identity.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
