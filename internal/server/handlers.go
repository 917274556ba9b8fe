package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/api"
	"github.com/pefman/w40k-mathhammer/internal/export"
	"github.com/pefman/w40k-mathhammer/internal/history"
	"github.com/pefman/w40k-mathhammer/internal/scenario"
	"github.com/pefman/w40k-mathhammer/internal/sim"
)

const maxBody = 1 << 20

type runResponse struct {
	ID      string       `json:"id"`
	Seed    uint64       `json:"seed"`
	Summary *sim.Summary `json:"summary"`
}

type compareEntry struct {
	sim.Ranked
	Summary *sim.Summary `json:"summary"`
}

type compareResponse struct {
	ID      string         `json:"id"`
	Seed    uint64         `json:"seed"`
	Entries []compareEntry `json:"entries"`
}

func newRunResponse(id string, res *sim.Result) runResponse {
	return runResponse{ID: id, Seed: res.Seed, Summary: res.Summary()}
}

func newCompareResponse(id string, cmp *sim.Comparison) compareResponse {
	out := compareResponse{ID: id, Seed: cmp.Seed, Entries: make([]compareEntry, 0, len(cmp.Entries))}
	for _, e := range cmp.Entries {
		out.Entries = append(out.Entries, compareEntry{Ranked: e, Summary: e.Result.Summary()})
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	if s.roster == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no roster data source configured"))
		return
	}
	list, err := s.roster.FetchFactions(r.Context())
	if err != nil {
		s.log.Warn("fetch factions", zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	sort.Slice(list, func(i, j int) bool { return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name) })
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("faction")
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing faction"))
		return
	}
	if s.roster == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no roster data source configured"))
		return
	}
	units, err := s.roster.FetchUnits(r.Context(), name)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, api.ErrNoUnits) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

// decodeRequest reads a scenario body and builds its config. On failure it
// has already written the response.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*scenario.Scenario, sim.Config, bool) {
	var sc scenario.Scenario
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return nil, sim.Config{}, false
	}
	cfg, err := s.buildConfig(r.Context(), &sc)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, scenario.ErrInvalid) {
			status = http.StatusBadRequest
		} else if errors.Is(err, api.ErrNoUnits) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return nil, sim.Config{}, false
	}
	return &sc, cfg, true
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	_, cfg, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.validate(cfg))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	sc, cfg, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if v := s.validate(cfg); !v.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, v)
		return
	}
	res, err := s.worker.Run(cfg).Wait()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	e := s.history.Put(history.NewRunEntry(sc.Name, res))
	writeJSON(w, http.StatusOK, newRunResponse(e.ID, res))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	sc, cfg, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if v := s.validate(cfg); !v.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, v)
		return
	}
	cmp, err := s.worker.Compare(cfg).Wait()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	e := s.history.Put(history.NewCompareEntry(sc.Name, cmp))
	writeJSON(w, http.StatusOK, newCompareResponse(e.ID, cmp))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.history.List())
}

func (s *Server) handleBest(w http.ResponseWriter, r *http.Request) {
	e, ok := s.history.BestToday()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (history.Entry, bool) {
	e, err := s.history.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return history.Entry{}, false
	}
	return e, true
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out := map[string]any{"entry": e}
	if e.Run != nil {
		out["run"] = newRunResponse(e.ID, e.Run)
	}
	if e.Comparison != nil {
		out["comparison"] = newCompareResponse(e.ID, e.Comparison)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	label := e.Label
	if label == "" {
		label = e.ID
	}
	var buf bytes.Buffer
	var err error
	if e.Comparison != nil {
		err = export.ComparisonXLSX(&buf, label, e.Comparison)
	} else {
		err = export.RunXLSX(&buf, label, e.Run)
	}
	if err != nil {
		s.log.Error("export", zap.String("id", e.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.ID+".xlsx"))
	_, _ = w.Write(buf.Bytes())
}
