package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/cors"
)

const corsMaxAge = 5 * time.Minute

// CORS lets browser clients on origins call the API. Last-Event-ID is
// allowed so an EventSource can resume the notification stream, and
// Retry-After is exposed so clients can back off after a 429.
func CORS(origins []string, credentials bool) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "Last-Event-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: credentials,
		MaxAge:           int(corsMaxAge.Seconds()),
	}
	// browsers reject "*" with credentials; echo the caller's origin instead
	if credentials && slices.Contains(origins, "*") {
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return cors.Handler(opts)
}
