// Package server exposes simulations over HTTP and a progress-streaming
// websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/history"
	"github.com/pefman/w40k-mathhammer/internal/models"
	"github.com/pefman/w40k-mathhammer/internal/scenario"
	"github.com/pefman/w40k-mathhammer/internal/sim"
)

// Roster is the part of the unit data API the server needs.
type Roster interface {
	FetchFactions(ctx context.Context) ([]models.Faction, error)
	FetchUnits(ctx context.Context, faction string) ([]models.Unit, error)
	FetchUnit(ctx context.Context, faction, unit string) (models.Unit, error)
}

// Options wires a Server. Only Worker and History are required.
type Options struct {
	Logger    *zap.Logger
	Worker    *sim.Worker
	History   *history.Store
	Roster    Roster
	MaxTrials int
	Version   string
}

type Server struct {
	log       *zap.Logger
	worker    *sim.Worker
	history   *history.Store
	roster    Roster
	maxTrials int
	version   string
	upgrader  websocket.Upgrader
}

func New(o Options) *Server {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MaxTrials <= 0 || o.MaxTrials > sim.MaxTrials {
		o.MaxTrials = sim.MaxTrials
	}
	return &Server{
		log:       o.Logger,
		worker:    o.Worker,
		history:   o.History,
		roster:    o.Roster,
		maxTrials: o.MaxTrials,
		version:   o.Version,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/api/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/factions", s.handleFactions).Methods(http.MethodGet)
	r.HandleFunc("/api/units", s.handleUnits).Methods(http.MethodGet)

	r.HandleFunc("/api/sim/validate", s.handleValidate).Methods(http.MethodPost)
	r.HandleFunc("/api/sim/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/api/sim/compare", s.handleCompare).Methods(http.MethodPost)
	r.HandleFunc("/api/sim/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/sim/runs/best", s.handleBest).Methods(http.MethodGet)
	r.HandleFunc("/api/sim/runs/{id}", s.handleRunByID).Methods(http.MethodGet)
	r.HandleFunc("/api/sim/runs/{id}/export.xlsx", s.handleExport).Methods(http.MethodGet)

	r.HandleFunc("/ws/sim", s.handleWS)
	return r
}

// Handler is Router wrapped with CORS for browser front ends.
func (s *Server) Handler() http.Handler { return withCORS(s.Router()) }

// withCORS answers preflight requests before routing.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// buildConfig turns a request into a sim config, resolving its roster
// references through the configured data API.
func (s *Server) buildConfig(ctx context.Context, sc *scenario.Scenario) (sim.Config, error) {
	var roster scenario.Roster
	if s.roster != nil {
		roster = s.roster
	}
	return sc.Build(ctx, roster)
}

// validate runs sim.Validate plus the server's own trial cap.
func (s *Server) validate(cfg sim.Config) sim.ValidationResult {
	v := sim.Validate(cfg)
	if cfg.Trials > s.maxTrials {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("this server runs at most %d trials, got %d", s.maxTrials, cfg.Trials))
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
