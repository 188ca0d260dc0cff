package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/cccs-paul/rcbudget/pkg/observability"
)

// IdentityHeader carries the authenticated username, set by the
// authenticating reverse proxy in front of the service. How a request is
// proven to belong to that username is the proxy's concern.
const IdentityHeader = "X-Authenticated-User"

// RequestIDHeader carries the request correlation id
const RequestIDHeader = "X-Request-ID"

// requestIDMiddleware assigns each request a correlation id, honouring one
// supplied by the caller.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityMiddleware copies the proxy-asserted username into the request
// context. Requests without one proceed; handlers that need a requester
// reject them.
func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identifier := r.Header.Get(IdentityHeader); identifier != "" {
			r = r.WithContext(observability.WithRequester(r.Context(), identifier))
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware attaches the service logger to the request context so
// handlers can log with request id and requester fields.
func loggingMiddleware(logger *observability.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.WithLogger(r.Context(), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// routeTemplate returns the mux route pattern for metrics labels, falling
// back to a fixed label for unmatched paths to keep cardinality bounded.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
