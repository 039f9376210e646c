package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vkuksa/trendwatch/internal/platform/observability"
)

// Server hosts the API handler with graceful shutdown on context cancel.
type Server struct {
	handler *Handler
	port    int
	logger  *zerolog.Logger
}

func NewServer(handler *Handler, port int, logger *zerolog.Logger) *Server {
	return &Server{handler: handler, port: port, logger: logger}
}

func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		defer cancel()

		//nolint:errcheck,contextcheck // shutdown in signal handler is best-effort, non-inherited context intentional
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Int("port", s.port).Msg("API server starting")

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server error: %w", err)
	}

	return nil
}

func recordRequest(endpoint string, status int) {
	observability.APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}
