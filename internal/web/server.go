package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// NewServer creates and configures the HTTP server for the Fern JSON API.
func NewServer(h *Handlers, bind string, port int) *http.Server {
	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("POST /v1/complete", h.HandleComplete)
	mux.HandleFunc("POST /v1/accept", h.HandleAccept)
	mux.HandleFunc("POST /v1/cancel", h.HandleCancel)
	mux.HandleFunc("GET /v1/status", h.HandleStatus)
	mux.HandleFunc("POST /v1/convert", h.HandleConvert)
	mux.HandleFunc("POST /v1/revert", h.HandleRevert)
	mux.HandleFunc("POST /v1/classify", h.HandleClassify)
	mux.HandleFunc("GET /v1/history", h.HandleHistory)
	mux.HandleFunc("GET /v1/suggestions/{id}", h.HandleFetch)
	mux.HandleFunc("DELETE /v1/suggestions/{id}", h.HandleDelete)
	mux.HandleFunc("POST /v1/purge", h.HandlePurge)
	mux.HandleFunc("GET /v1/check", h.HandleCheck)

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           securityHeaders(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("fern API listening", "addr", "http://"+srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
