// Package http exposes the review/commit surface and the message-ingress
// endpoint as a JSON API.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"gastos/internal/services"
)

type Server struct {
	*http.Server
	svc     *services.ReviewService
	started time.Time
}

func NewServer(addr string, svc *services.ReviewService) *Server {
	s := &Server{
		svc:     svc,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/messages", s.handleAppendMessage)
	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("GET /api/review", s.handleReview)
	mux.HandleFunc("PATCH /api/review/{index}", s.handleEdit)
	mux.HandleFunc("POST /api/commit", s.handleCommit)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("GET /api/balance", s.handleBalance)

	s.Server = &http.Server{
		Addr:           addr,
		Handler:        logRequests(mux),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   120 * time.Second, // sync waits on the classifier
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16, // 64KB
	}
	return s
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.InfoContext(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
