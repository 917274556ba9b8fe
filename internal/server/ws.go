package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pefman/w40k-mathhammer/internal/history"
	"github.com/pefman/w40k-mathhammer/internal/models"
	"github.com/pefman/w40k-mathhammer/internal/scenario"
	"github.com/pefman/w40k-mathhammer/internal/sim"
)

// Message types on /ws/sim.
const (
	msgRun      = "run"
	msgCompare  = "compare"
	msgProgress = "progress"
	msgResult   = "result"
	msgInvalid  = "invalid"
	msgError    = "error"
)

type clientIn struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleWS serves one client. Each "run" or "compare" message starts a job;
// progress and the final result are written by this goroutine only.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws: upgrade", zap.Error(err))
		return
	}
	defer conn.Close()
	s.log.Info("ws: connect", zap.String("from", r.RemoteAddr))

	for {
		var in clientIn
		if err := conn.ReadJSON(&in); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws: read", zap.Error(err))
			}
			s.log.Info("ws: closed", zap.String("from", r.RemoteAddr))
			return
		}
		s.log.Debug("ws: recv", zap.String("type", in.Type))
		if err := s.serveMessage(r, conn, in); err != nil {
			s.log.Debug("ws: write", zap.Error(err))
			return
		}
	}
}

// serveMessage answers one request. A returned error means the connection
// is unusable.
func (s *Server) serveMessage(r *http.Request, conn *websocket.Conn, in clientIn) error {
	send := func(typ string, data any) error {
		return conn.WriteJSON(models.WsMsg{Type: typ, Data: data})
	}
	fail := func(err error) error {
		return send(msgError, map[string]string{"error": err.Error()})
	}

	if in.Type != msgRun && in.Type != msgCompare {
		return fail(errors.New("unknown message type " + in.Type))
	}
	var sc scenario.Scenario
	dec := json.NewDecoder(bytes.NewReader(in.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil {
		return fail(err)
	}
	cfg, err := s.buildConfig(r.Context(), &sc)
	if err != nil {
		return fail(err)
	}
	if v := s.validate(cfg); !v.Valid {
		return send(msgInvalid, v)
	}

	if in.Type == msgCompare {
		job := s.worker.Compare(cfg)
		if err := streamProgress(job.Progress(), send); err != nil {
			return err
		}
		cmp, err := job.Wait()
		if err != nil {
			return fail(err)
		}
		e := s.history.Put(history.NewCompareEntry(sc.Name, cmp))
		return send(msgResult, newCompareResponse(e.ID, cmp))
	}

	job := s.worker.Run(cfg)
	if err := streamProgress(job.Progress(), send); err != nil {
		return err
	}
	res, err := job.Wait()
	if err != nil {
		return fail(err)
	}
	e := s.history.Put(history.NewRunEntry(sc.Name, res))
	return send(msgResult, newRunResponse(e.ID, res))
}

func streamProgress(ch <-chan sim.Progress, send func(string, any) error) error {
	for p := range ch {
		if err := send(msgProgress, p); err != nil {
			return err
		}
	}
	return nil
}
