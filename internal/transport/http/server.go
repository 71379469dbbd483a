package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	platformerrors "mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
)

const defaultCloseTimeout = 5 * time.Second

// ServerConfig stores the listen settings of the bridge.
type ServerConfig struct {
	Addr string
}

// Server runs the router on a plain net/http server. It serves once.
type Server struct {
	cfg     ServerConfig
	router  *Router
	logger  *slog.Logger
	started atomic.Bool
}

func NewServer(cfg ServerConfig, router *Router, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		router: router,
		logger: logging.OrDefault(logger).With(slog.String("component", "http")),
	}
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return platformerrors.New(platformerrors.KindTransport, "http.start", "server already started")
	}

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, context.Cause(ctx))
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("bridge listening", slog.String("addr", s.cfg.Addr))
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
