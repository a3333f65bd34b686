package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/loomline/erp-backend/pkg/logger"
	"github.com/loomline/erp-backend/pkg/outbox"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags the request with an ID for logs and for the actor recorded
// on every outbox event the request emits.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := outbox.WithActor(r.Context(), outbox.ActorRef{Source: "api", RequestID: reqID})
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
