// Package httpapi exposes the orchestrator over a JSON HTTP API, with a
// server-sent event stream for observers and optional Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ensemble-dev/ensemble/internal/logging"
	"github.com/ensemble-dev/ensemble/pkg/adapters/ws"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

// Server wires HTTP routes onto an orchestrator.
type Server struct {
	orc      Orchestrator
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Orchestrator is the surface the HTTP layer needs from the composition
// root.
type Orchestrator interface {
	Connect(ctx context.Context, selector ports.DeviceSelector) (domain.SessionInfo, error)
	Attach(ctx context.Context, ch ports.Channel, name string) (domain.SessionInfo, error)
	Disconnect(id int)
	Devices() []domain.SessionInfo
	Capabilities() []domain.Capability
	RefreshCapabilities(ctx context.Context) []domain.Outcome
	Run(ctx context.Context, actionID string, mode domain.Mode) error
	Stop()
	ForceStop()
	Status() domain.RunStatus
	Events() (<-chan domain.Event, func())
	Store() ports.ActionStore
	ImportActions(ctx context.Context, raw []byte) (int, error)
	ExportActions(ctx context.Context) ([]byte, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithGatherer serves the given Prometheus gatherer at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// NewHandler builds the routed HTTP handler.
func NewHandler(orc Orchestrator, opts ...Option) http.Handler {
	s := &Server{
		orc:    orc,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.listDevices)
		r.Post("/devices/connect", s.connectDevice)
		r.Delete("/devices/{id}", s.disconnectDevice)

		r.Get("/capabilities", s.listCapabilities)
		r.Post("/capabilities/refresh", s.refreshCapabilities)

		r.Get("/actions", s.listActions)
		r.Get("/actions/export", s.exportActions)
		r.Post("/actions/import", s.importActions)
		r.Get("/actions/{id}", s.getAction)
		r.Put("/actions/{id}", s.putAction)
		r.Delete("/actions/{id}", s.deleteAction)

		r.Get("/run", s.runStatus)
		r.Post("/run", s.startRun)
		r.Post("/run/stop", s.stopRun)

		r.Get("/events", s.streamEvents)
	})

	r.Get("/device", s.acceptDevice)

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.Devices())
}

func (s *Server) connectDevice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		Prefix string `json:"prefix"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	info, err := s.orc.Connect(r.Context(), ports.DeviceSelector{Name: body.Name, Prefix: body.Prefix})
	if err != nil {
		s.domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) disconnectDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("invalid device id"))
		return
	}
	s.orc.Disconnect(id)
	w.WriteHeader(http.StatusNoContent)
}

// acceptDevice upgrades an inbound device connection. The device names
// itself through the "name" query parameter.
func (s *Server) acceptDevice(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.error(w, http.StatusBadRequest, fmt.Errorf("missing device name"))
		return
	}
	ch, err := ws.Accept(w, r)
	if err != nil {
		s.logger.Warn("device upgrade failed", "name", name, "err", err)
		return
	}
	if _, err := s.orc.Attach(r.Context(), ch, name); err != nil {
		s.logger.Warn("device attach failed", "name", name, "err", err)
		_ = ch.Close()
	}
}

func (s *Server) listCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.Capabilities())
}

func (s *Server) refreshCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.RefreshCapabilities(r.Context()))
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.orc.Store().List(r.Context())
	if err != nil {
		s.domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	a, err := s.orc.Store().Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) putAction(w http.ResponseWriter, r *http.Request) {
	var a domain.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	a.ID = chi.URLParam(r, "id")
	if err := s.orc.Store().Save(r.Context(), &a); err != nil {
		s.domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAction(w http.ResponseWriter, r *http.Request) {
	if err := s.orc.Store().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) importActions(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("read request body: %w", err))
		return
	}
	n, err := s.orc.ImportActions(r.Context(), raw)
	if err != nil {
		s.domainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

func (s *Server) exportActions(w http.ResponseWriter, r *http.Request) {
	raw, err := s.orc.ExportActions(r.Context())
	if err != nil {
		s.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.Status())
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActionID string      `json:"action_id"`
		Mode     domain.Mode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Mode == "" {
		body.Mode = domain.ModeSinglePass
	}
	if err := s.orc.Run(r.Context(), body.ActionID, body.Mode); err != nil {
		s.domainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.orc.Status())
}

func (s *Server) stopRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Force bool `json:"force"`
	}
	// An empty body means a graceful stop.
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Force {
		s.orc.ForceStop()
	} else {
		s.orc.Stop()
	}
	writeJSON(w, http.StatusAccepted, s.orc.Status())
}

// streamEvents serves the broker stream as server-sent events until the
// client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.error(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	evs, cancel := s.orc.Events()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-evs:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("encode event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// domainError maps domain errors onto HTTP statuses.
func (s *Server) domainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var cerr *domain.ConnectionError
	switch {
	case errors.Is(err, domain.ErrActionNotFound):
		s.error(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrRunActive), errors.Is(err, domain.ErrNoSessions):
		s.error(w, http.StatusConflict, err)
	case errors.As(err, &verr):
		s.error(w, http.StatusBadRequest, err)
	case errors.As(err, &cerr):
		s.error(w, http.StatusBadGateway, err)
	default:
		s.error(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) error(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
