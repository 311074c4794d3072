package branches

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/shared"
)

// Middleware authenticates the bearer credential and stores the branch in the request
// context. Requests without a valid credential receive 401.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			credential, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(credential) == "" {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			branch, err := service.Authenticate(r.Context(), credential)
			if err != nil {
				logger.Warn("branch authentication failed",
					slog.String("remote_addr", r.RemoteAddr),
					slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithBranch(r.Context(), branch)))
		})
	}
}
