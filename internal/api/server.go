package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
)

// Options configures the HTTP API
type Options struct {
	Addr              string
	JWTSecret         string   // empty leaves /api unauthenticated
	AdminOpenIDs      []string // users allowed to press the block control
	VerificationToken string   // Feishu callback token, empty skips the check
	CORSOrigins       []string // browser origins allowed on /api, none when empty
}

// Server is the admin HTTP API and the card callback endpoint
type Server struct {
	admin  *usecase.AdminUsecase
	opts   Options
	log    zerolog.Logger
	server *http.Server
}

// NewServer creates a new API server
func NewServer(admin *usecase.AdminUsecase, opts Options, log zerolog.Logger) *Server {
	return &Server{
		admin: admin,
		opts:  opts,
		log:   log.With().Str("component", "api").Logger(),
	}
}

// Router builds the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(recordMetrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestSize(1 << 20))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/callbacks/card", s.handleCardCallback)

	r.Route("/api", func(r chi.Router) {
		if len(s.opts.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: s.opts.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
				MaxAge:         300,
			}))
		}
		if s.opts.JWTSecret != "" {
			r.Use(requireJWT([]byte(s.opts.JWTSecret)))
		}

		r.Get("/keywords", s.handleListKeywords)
		r.Post("/keywords", s.handleAddKeyword)
		r.Delete("/keywords/{id}", s.handleRemoveKeyword)

		r.Get("/blocked", s.handleListBlocked)
		r.Post("/blocked", s.handleBlock)
		r.Delete("/blocked/{userID}", s.handleUnblock)

		r.Get("/rooms", s.handleRooms)
		r.Post("/rooms/sources", s.handleAddSource)
		r.Post("/rooms/sources/{roomID}/toggle", s.handleToggleSource)
		r.Post("/rooms/destinations", s.handleAddDestination)
		r.Post("/rooms/monitored", s.handleAddMonitored)
		r.Delete("/rooms/{kind}/{roomID}", s.handleRemoveRoom)

		r.Get("/prompt", s.handleGetPrompt)
		r.Put("/prompt", s.handleSetPrompt)
		r.Delete("/prompt", s.handleResetPrompt)

		r.Get("/stats", s.handleStats)
		r.Get("/orders", s.handleRecentOrders)
	})

	return r
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", s.opts.Addr).Bool("auth", s.opts.JWTSecret != "").Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
