// Package httpt is the HTTP surface of the notification engine: ingress,
// status and inbox queries, acknowledgments and the operator overrides.
package httpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hrnotify/internal/metric"
	"hrnotify/internal/service"
)

type Handler struct {
	ingress *service.Ingress
	status  *service.Status
	acks    *service.Acks
	metrics *metric.Metrics
	log     zerolog.Logger
	router  *gin.Engine
}

func NewHandler(
	ingress *service.Ingress,
	status *service.Status,
	acks *service.Acks,
	metrics *metric.Metrics,
	log zerolog.Logger,
) *Handler {
	h := &Handler{
		ingress: ingress,
		status:  status,
		acks:    acks,
		metrics: metrics,
		log:     log.With().Str("component", "http").Logger(),
	}

	router := gin.New()
	router.Use(h.requestIDMiddleware())
	router.Use(h.loggingMiddleware())
	router.Use(gin.Recovery())

	h.router = router
	h.setupRoutes()

	return h
}

func (h *Handler) Engine() *gin.Engine {
	return h.router
}

// Server wraps the handler in an http.Server with a graceful shutdown tied
// to the context.
type Server struct {
	srv             *http.Server
	log             zerolog.Logger
	shutdownTimeout time.Duration
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func NewServer(h *Handler, cfg ServerConfig, log zerolog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      h.Engine(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log:             log.With().Str("component", "http_server").Logger(),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	const op = "httpt.Server.Run"

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", op, err)
	}

	s.log.Info().Msg("http server stopped")
	return nil
}
