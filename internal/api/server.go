// Package api exposes the engine state over HTTP: the current selection,
// classified flights, region metrics, alerts and the traveler session,
// plus endpoints that drive selection changes, refreshes and queries.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"airwatch/internal/alerts"
	"airwatch/internal/config"
	"airwatch/internal/controller"
	"airwatch/internal/model"
	"airwatch/internal/session"
)

type Server struct {
	cfg     *config.Manager
	ctrl    *controller.Controller
	alerts  *alerts.Store
	session *session.Session
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status    string   `json:"status"`
	Time      string   `json:"time"`
	Version   string   `json:"version"`
	Connected bool     `json:"connected"`
	Region    string   `json:"region"`
	Regions   []string `json:"regions"`
	Airline   string   `json:"airline"`
	Airlines  []string `json:"airlines"`
}

type classifiedFlight struct {
	model.FlightState
	Classification model.Classification `json:"classification"`
}

func Start(ctx context.Context, cfg *config.Manager, ctrl *controller.Controller, alertsStore *alerts.Store, sess *session.Session, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		alerts:  alertsStore,
		session: sess,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/flights", server.handleFlights)
	mux.HandleFunc("/flights/lookup", server.handleFlightLookup)
	mux.HandleFunc("/metrics", server.handleMetrics)
	mux.HandleFunc("/alerts", server.handleAlerts)
	mux.HandleFunc("/region", server.handleRegion)
	mux.HandleFunc("/airline", server.handleAirline)
	mux.HandleFunc("/refresh", server.handleRefresh)
	mux.HandleFunc("/analyze", server.handleAnalyze)
	mux.HandleFunc("/session", server.handleSession)
	mux.HandleFunc("/session/query", server.handleSessionQuery)
	mux.HandleFunc("/session/clear", server.handleSessionClear)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Version:   s.version,
		Connected: s.ctrl.Connected(),
		Region:    s.ctrl.Region(),
		Regions:   s.ctrl.Regions(),
		Airline:   s.ctrl.AirlineFilter(),
		Airlines:  cfg.Airlines,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flights := s.ctrl.FilteredFlights()
	out := make([]classifiedFlight, 0, len(flights))
	for _, f := range flights {
		out = append(out, classifiedFlight{
			FlightState:    f,
			Classification: s.ctrl.Classify(f),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"region":  s.ctrl.Region(),
		"airline": s.ctrl.AirlineFilter(),
		"flights": out,
		"count":   len(out),
		"summary": s.ctrl.Summary(),
	})
}

func (s *Server) handleFlightLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	callsign := strings.TrimSpace(r.URL.Query().Get("callsign"))
	if callsign == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "callsign is required"})
		return
	}
	f, cls, found, err := s.ctrl.LookupFlight(r.Context(), callsign)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, classifiedFlight{FlightState: f, Classification: cls})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"region":  s.ctrl.Region(),
		"metrics": s.ctrl.Metrics(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list := s.alerts.List()
	critical, warning := s.alerts.CountBySeverity()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts":   list,
		"count":    len(list),
		"critical": critical,
		"warning":  warning,
	})
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Region string `json:"region"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ctrl.SelectRegion(r.Context(), req.Region); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "region": s.ctrl.Region()})
}

func (s *Server) handleAirline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Airline string `json:"airline"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ctrl.SetAirlineFilter(req.Airline); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "airline": s.ctrl.AirlineFilter()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	go s.ctrl.RefreshFlights(context.WithoutCancel(r.Context()))
	go s.ctrl.RefreshAlerts(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refreshing"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.ctrl.AnalyzeRegion(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"region":  s.ctrl.Region(),
		"summary": s.ctrl.Summary(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	turns := s.session.Turns()
	writeJSON(w, http.StatusOK, map[string]any{
		"turns":      turns,
		"count":      len(turns),
		"submitting": s.session.Submitting(),
	})
}

func (s *Server) handleSessionQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Callsign string `json:"callsign"`
		Question string `json:"question"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.session.SetInput(req.Callsign, req.Question)
	if !s.session.Submit(r.Context(), s.ctrl.Region()) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "callsign and question are required"})
		return
	}
	turns := s.session.Turns()
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns, "count": len(turns)})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.session.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
