package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sirrobot01/zipscout/internal/config"
	"github.com/sirrobot01/zipscout/internal/logger"
	"github.com/sirrobot01/zipscout/pkg/zipmeta"
)

// Server exposes inspection sessions and report generation over HTTP.
type Server struct {
	router   *chi.Mux
	logger   zerolog.Logger
	mu       sync.RWMutex
	sessions map[string]*zipmeta.Inspector
}

func New() *Server {
	s := &Server{
		logger:   logger.New("http"),
		sessions: make(map[string]*zipmeta.Inspector),
	}

	cfg := config.Get()
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route(cfg.URLBase, func(r chi.Router) {
		r.Route("/api", func(r chi.Router) {
			r.Post("/inspect", s.handleInspect)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/entries", s.handleEntries)
				r.Get("/tree", s.handleTree)
				r.Post("/report", s.handleReport)
			})
		})
		r.Get("/version", s.handleVersion)
		r.Get("/logs", s.getLogs)
	})
	s.router = r
	return s
}

// Routes exposes the router, mainly for embedding and tests.
func (s *Server) Routes() http.Handler {
	return s.router
}

func (s *Server) Start(ctx context.Context) error {
	cfg := config.Get()

	addr := fmt.Sprintf("%s:%s", cfg.BindAddress, cfg.Port)
	s.logger.Info().Msgf("Starting server on %s%s", addr, cfg.URLBase)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msgf("Error starting server")
		}
	}()

	<-ctx.Done()
	s.logger.Info().Msg("Shutting down gracefully...")
	return srv.Shutdown(context.Background())
}

func (s *Server) session(id string) *zipmeta.Inspector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *Server) addSession(ins *zipmeta.Inspector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ins.ID()] = ins
}

func (s *Server) getLogs(w http.ResponseWriter, r *http.Request) {
	logFile := logger.GetLogPath()

	file, err := os.Open(logFile)
	if err != nil {
		http.Error(w, "Error reading log file", http.StatusInternalServerError)
		return
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing log file")
		}
	}(file)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "inline; filename=application.log")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if _, err = io.Copy(w, file); err != nil {
		s.logger.Error().Err(err).Msg("Error streaming log file")
		http.Error(w, "Error streaming log file", http.StatusInternalServerError)
	}
}
