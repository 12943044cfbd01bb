package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/secmon-lab/utmcraft/pkg/domain/types"
	"github.com/secmon-lab/utmcraft/pkg/utils/logging"
)

type ctxUserKey struct{}

// userMiddleware trusts the identity header set by the front proxy. Requests
// without it are rejected.
func userMiddleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(header))
			if user == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserKey{}, types.UserID(user))
			ctx = logging.With(ctx, logging.From(ctx).With("user_id", user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userFrom(ctx context.Context) types.UserID {
	user, _ := ctx.Value(ctxUserKey{}).(types.UserID)
	return user
}

func bodyLimit(size int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, size)
			}
			next.ServeHTTP(w, r)
		})
	}
}
