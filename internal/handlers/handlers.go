package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/claroledger/audittrail/internal/audit"
	"github.com/claroledger/audittrail/internal/auth"
	"github.com/claroledger/audittrail/internal/config"
)

// Server wires the audit-trail HTTP surface over one Service.
type Server struct {
	cfg   *config.Config
	db    *sql.DB
	store audit.Store
	svc   *audit.Service
}

// New constructs a Server. db may be nil when running on the file store.
func New(cfg *config.Config, db *sql.DB, store audit.Store, svc *audit.Service) *Server {
	return &Server{
		cfg:   cfg,
		db:    db,
		store: store,
		svc:   svc,
	}
}

// Router builds the chi router with middleware and all audit routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(auth.NewMiddleware(s.cfg.AuthSecret, s.cfg.RequireAuth))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/audit", func(r chi.Router) {
		r.Post("/entries", s.handleRecordMutation)
		r.Get("/entries/{id}", s.handleGetEntry)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/chain", s.handleGetChain)
			r.Get("/chain/verified", s.handleGetVerifiedChain)
			r.Get("/export.csv", s.handleExportCSV)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "ts": time.Now().UTC()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store not ready"})
		return
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "db not ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

// helper JSON writer
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
