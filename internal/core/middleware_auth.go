package core

import (
	"net/http"
	"strings"

	"copyforge/internal/types"
)

// userIDHeader carries the authenticated user's id, set by the gateway in
// front of this service. Authentication itself is out of scope here; the
// header is trusted because only the gateway can reach this listener.
const userIDHeader = "X-User-Id"

// RequireUser rejects requests without an authenticated user id and puts
// the id into the request context for handlers. Applied to every /v1 route;
// the webhook endpoint authenticates by signature instead and is mounted
// outside this middleware.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		if userID == "" {
			Error(w, r, types.NewAppError(
				types.ErrCodeAuthUserMissing,
				"authenticated user required",
				nil,
			))
			return
		}

		ctx := types.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
