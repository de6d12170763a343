package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/autevo/filmtechos-backend/api/responses"
	"github.com/autevo/filmtechos-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Inbound ids from the edge proxy are trusted only when short and log-safe.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// RequestID propagates or mints X-Request-Id and tags the request logger with it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !requestIDPattern.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := responses.WithRequestID(r.Context(), id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
