// Package middleware holds small HTTP middleware shared by the admin
// and metrics surface (§5.1). The websocket upgrade route is mounted on
// the same router, so its upgrade request passes through this stack
// too; the frames exchanged after the upgrade do not.
package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// CORS allows a configured origin (typically a local editor-plugin
// dev server) to read the read-only admin/metrics endpoints from a
// browser-hosted dashboard.
func CORS(allowedOrigin string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				logger.Debug("handled CORS preflight", zap.String("path", r.URL.Path))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
