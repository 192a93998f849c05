// Package server opens the Admission & Status API's HTTP listener,
// grounded on the teacher's internal/app/server.OpenRoutes: an
// http.Server wrapping a mux, serving until the process is told to stop.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Run starts an http.Server bound to host:port serving handler, and blocks
// until ctx is cancelled, at which point it shuts the server down
// gracefully.
func Run(ctx context.Context, host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: listen and serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server: graceful shutdown failed", "error", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
