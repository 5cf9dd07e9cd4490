// Package dashboard serves the latest persisted pipeline run as a JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/anshugovil/testenfusion/internal/pipeline"
	"github.com/anshugovil/testenfusion/internal/store"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	store     *store.Store
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

func NewServer(cfg Config, st *store.Store, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     st,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/run", s.handleGetRun)
	s.router.Get("/api/summary", s.handleGetSummary)
	s.router.Get("/api/positions/{phase}", s.handleGetPositions)
	s.router.Get("/api/deliverables/{phase}", s.handleGetDeliverables)
	s.router.Get("/api/reconciliation/{phase}", s.handleGetReconciliation)
	s.router.Get("/api/impact", s.handleGetImpact)
	s.router.Get("/api/expiries", s.handleGetExpiries)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// loadRun fetches the latest persisted run, writing the HTTP error itself on
// failure. A nil return means the response is already handled.
func (s *Server) loadRun(w http.ResponseWriter) *pipeline.Result {
	res, err := s.store.Load()
	if err != nil {
		s.logger.WithError(err).Error("Failed to load run")
		http.Error(w, "No run available", http.StatusNotFound)
		return nil
	}
	return res
}

// phaseParam resolves the {phase} URL segment to pre/post, defaulting to post.
func phaseParam(r *http.Request) (string, bool) {
	phase := strings.ToLower(chi.URLParam(r, "phase"))
	switch phase {
	case "", "post":
		return "post", true
	case "pre":
		return "pre", true
	default:
		return "", false
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	res := s.loadRun(w)
	if res == nil {
		return
	}
	s.writeJSON(w, res)
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	res := s.loadRun(w)
	if res == nil {
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"run_id":     res.RunID,
		"started_at": res.StartedAt,
		"summary":    res.Summary,
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	phase, ok := phaseParam(r)
	if !ok {
		http.Error(w, "Unknown phase", http.StatusBadRequest)
		return
	}
	res := s.loadRun(w)
	if res == nil {
		return
	}
	if phase == "pre" {
		s.writeJSON(w, res.PrePositions)
		return
	}
	s.writeJSON(w, res.PostPositions)
}

func (s *Server) handleGetDeliverables(w http.ResponseWriter, r *http.Request) {
	phase, ok := phaseParam(r)
	if !ok {
		http.Error(w, "Unknown phase", http.StatusBadRequest)
		return
	}
	res := s.loadRun(w)
	if res == nil {
		return
	}
	if phase == "pre" {
		s.writeJSON(w, res.PreDeliverables)
		return
	}
	s.writeJSON(w, res.PostDeliverables)
}

func (s *Server) handleGetReconciliation(w http.ResponseWriter, r *http.Request) {
	phase, ok := phaseParam(r)
	if !ok {
		http.Error(w, "Unknown phase", http.StatusBadRequest)
		return
	}
	res := s.loadRun(w)
	if res == nil {
		return
	}
	recs := res.PostRecon
	if phase == "pre" {
		recs = res.PreRecon
	}
	if recs == nil {
		http.Error(w, "Run has no reconciliation", http.StatusNotFound)
		return
	}
	s.writeJSON(w, recs)
}

func (s *Server) handleGetImpact(w http.ResponseWriter, r *http.Request) {
	res := s.loadRun(w)
	if res == nil {
		return
	}
	if res.Impact == nil {
		http.Error(w, "Run has no reconciliation", http.StatusNotFound)
		return
	}
	s.writeJSON(w, res.Impact)
}

func (s *Server) handleGetExpiries(w http.ResponseWriter, r *http.Request) {
	res := s.loadRun(w)
	if res == nil {
		return
	}
	s.writeJSON(w, res.PostExpiries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}
