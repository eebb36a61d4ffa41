package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/infra/api/apiv1"
	"vpn-subscription-bot/internal/infra/metrics"
)

const requestTimeout = 30 * time.Second

// Server is the admin HTTP surface: health, metrics and the v1 API.
type Server struct {
	srv *http.Server
	log *zerolog.Logger
}

func NewRouter(v1 *apiv1.Server, auth *AuthManager, logger *zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, TraceID(), RequestLog(logger), Recover(logger), middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if v1 != nil && auth != nil {
		apiv1.RegisterAPIV1(r, v1, auth.RequireAdmin)
	}
	return r
}

func NewServer(port int, handler http.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "admin_http").Logger()
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: &l,
	}
}

// Start serves in the background; failures other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("admin http listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("admin http stopped")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
