package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openmon/procmon/internal/config"
	"github.com/openmon/procmon/internal/engine"
	"github.com/openmon/procmon/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	wsSendQueueSize   = 16
)

// Server wraps the HTTP surface area of the application. Every data endpoint
// goes through the engine's handle protocol: acquire, encode, release.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	engine     *engine.Engine

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsDropped    atomic.Uint64
	wsConnIDs    atomic.Uint64
	requestIDs   atomic.Uint64
}

// New assembles a Server with its handlers.
func New(cfg config.Config, logger *slog.Logger, eng *engine.Engine) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		engine: eng,
	}

	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/processes", s.handleProcesses)
	mux.HandleFunc("/api/processes/", s.handleProcessSubresource)
	mux.HandleFunc("/api/cpu", s.handleCPU)
	mux.HandleFunc("/ws", s.handleWS)

	if cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if cfg.EnablePprof {
		registerPprof(mux)
	}

	handler := s.withRequestLogging(mux)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	info := s.readiness()
	logger := s.loggerFromContext(r.Context())

	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(info); err != nil {
		logger.Error("failed to encode readyz response", "err", err)
	}
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	logger := s.loggerFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(version.Current()); err != nil {
		logger.Error("failed to encode version response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	handle, err := s.engine.Processes()
	if err != nil {
		s.serveEngineError(w, r, err)
		return
	}
	s.serveProcessHandle(w, r, handle)
}

func (s *Server) handleProcessSubresource(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	const prefix = "/api/processes/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}

	switch rest {
	case "top":
		threshold := s.cfg.HighCPUThreshold
		if raw := r.URL.Query().Get("threshold"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				http.Error(w, "invalid threshold", http.StatusBadRequest)
				return
			}
			threshold = parsed
		}
		handle, err := s.engine.HighCPUProcesses(threshold)
		if err != nil {
			s.serveEngineError(w, r, err)
			return
		}
		s.serveProcessHandle(w, r, handle)
	case "unkillable":
		handle, err := s.engine.UnkillableProcesses()
		if err != nil {
			s.serveEngineError(w, r, err)
			return
		}
		s.serveProcessHandle(w, r, handle)
	default:
		pid, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		record, ok, err := s.engine.Process(uint32(pid))
		if err != nil {
			s.serveEngineError(w, r, err)
			return
		}
		if !ok {
			http.Error(w, "no such process", http.StatusNotFound)
			return
		}
		s.writeJSON(w, r, record)
	}
}

func (s *Server) handleCPU(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}

	handle, err := s.engine.CPUMetrics()
	if err != nil {
		s.serveEngineError(w, r, err)
		return
	}
	defer s.releaseHandle(r.Context(), handle)

	snapshot, err := handle.Snapshot()
	if err != nil {
		s.serveEngineError(w, r, err)
		return
	}
	s.writeJSON(w, r, snapshot)
}

func (s *Server) serveProcessHandle(w http.ResponseWriter, r *http.Request, handle *engine.ProcessListHandle) {
	defer s.releaseHandle(r.Context(), handle)

	snapshot, err := handle.Snapshot()
	if err != nil {
		s.serveEngineError(w, r, err)
		return
	}
	s.writeJSON(w, r, snapshot)
}

type releasable interface {
	Release() error
}

func (s *Server) releaseHandle(ctx context.Context, handle releasable) {
	if err := handle.Release(); err != nil {
		s.loggerFromContext(ctx).Error("snapshot handle release failed", "err", err)
	}
}

func (s *Server) serveEngineError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.loggerFromContext(r.Context())
	if errors.Is(err, engine.ErrNotInitialized) {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}
	logger.Error("engine request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	logger := s.loggerFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "path", r.URL.Path, "err", err)
	}
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) registerPrometheus(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "procmon",
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "procmon",
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "procmon",
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "procmon",
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}

	if engineCollector := newEngineCollector(s.engine); engineCollector != nil {
		collectors = append(collectors, engineCollector)
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func (s *Server) readiness() readyResponse {
	resp := readyResponse{}

	if s.engine == nil {
		resp.Status = "degraded"
		resp.Reason = "engine_not_configured"
		return resp
	}

	if !s.engine.Ready() {
		resp.Status = "initializing"
		resp.Reason = "waiting_for_baseline"
		return resp
	}

	stats := s.engine.Stats()
	resp.Refreshes = stats.Refreshes
	resp.RefreshErrors = stats.RefreshErrors
	if !stats.LastRefresh.IsZero() {
		resp.LastRefresh = stats.LastRefresh.Format(time.RFC3339)
	}
	resp.Status = "ok"
	return resp
}

type readyResponse struct {
	Status        string `json:"status"`
	Refreshes     uint64 `json:"refreshes"`
	RefreshErrors uint64 `json:"refresh_errors"`
	LastRefresh   string `json:"last_refresh,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
