// Package api provides the HTTP surface of drilldial: the Twilio SMS webhook
// that feeds inbound messages onto the command queue, plus read-only progress
// and drill-instance endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/relieftext/drilldial/internal/store"
	"github.com/relieftext/drilldial/internal/transport"
)

// DefaultShutdownTimeout bounds graceful shutdown of in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// ServerStore is the read surface the API exposes.
type ServerStore interface {
	store.ProgressRepo
	store.InstanceRepo
}

// Server is the drilldial HTTP server.
type Server struct {
	addr      string
	publisher transport.Publisher
	store     ServerStore
}

// NewServer creates the HTTP server. The publisher receives inbound SMS from
// the webhook; the store serves the read endpoints.
func NewServer(addr string, publisher transport.Publisher, st ServerStore) *Server {
	return &Server{addr: addr, publisher: publisher, store: st}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/sms", s.webhookSMSHandler)
	mux.HandleFunc("/progress", s.progressHandler)
	mux.HandleFunc("/instances/", s.instanceHandler)
	mux.HandleFunc("/health", s.healthHandler)

	srv := &http.Server{Addr: s.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		slog.Info("Server.Run: shutting down")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
