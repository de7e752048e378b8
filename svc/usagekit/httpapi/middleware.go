package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
)

// observe reports method, route pattern, status and latency of each request.
// The route pattern keeps label cardinality bounded.
func observe(o Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			o.ObserveHTTP(r.Method, route, status, time.Since(start))
		})
	}
}

// tagOwner puts the account named by the request headers into the context so
// log records carry it. Malformed headers are left to the handlers.
func tagOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subject, err := subjectFrom(r); err == nil {
			owner := subject.Owner
			if owner == uuid.Nil {
				owner = subject.Identity
			}
			r = r.WithContext(logger.WithOwner(r.Context(), owner))
		}
		next.ServeHTTP(w, r)
	})
}
