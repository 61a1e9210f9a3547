package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/audiobridge/internal/config"
	"github.com/audiolibrelab/audiobridge/internal/metrics"
	"github.com/audiolibrelab/audiobridge/internal/service"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the control API over HTTP, a websocket event stream and MCP
type Server struct {
	api      *service.ControlAPI
	cfg      *config.Config
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	events   *EventHub
	mcp      *MCPServer
	mux      *http.ServeMux
}

// New creates a server over api. metrics and gatherer may be nil.
func New(api *service.ControlAPI, cfg *config.Config, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		api:      api,
		cfg:      cfg,
		metrics:  m,
		gatherer: gatherer,
		events:   NewEventHub(),
		mux:      http.NewServeMux(),
	}

	api.Service().Subscribe(s.events)

	if cfg.Server.EnableMCP {
		s.mcp = NewMCPServer(api)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("/status", s.handleStatus)
	s.handle("/devices", s.handleDevices)
	s.handle("/devices/name/", s.handleDeviceName)
	s.handle("/aggregate", s.handleAggregate)
	s.handle("/default", s.handleSetDefault)
	s.handle("/recording/start", s.handleStartRecording)
	s.handle("/recording/stop", s.handleStopRecording)
	s.handle("/recordings", s.handleRecordings)

	s.handle("/files/", s.handleFiles(http.StripPrefix("/files/", http.FileServer(http.Dir(s.cfg.Recorder.Directory)))))

	// the websocket upgrade needs the raw ResponseWriter
	s.mux.Handle("/events", s.events)

	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.mcp != nil {
		s.mux.Handle("/mcp", s.mcp)
	}
}

// handle registers fn behind the request metrics middleware
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	s.mux.Handle(pattern, s.withMetrics(pattern, fn))
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Events returns the websocket hub
func (s *Server) Events() *EventHub {
	return s.events
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.ListenAddress()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting AudioBridge server",
		"address", addr,
		"local_url", fmt.Sprintf("http://%s:%d", getLocalIP(), s.cfg.Server.Port),
		"mcp", s.mcp != nil)

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		s.events.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	s.events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withMetrics(endpoint string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(rec.status), time.Since(start).Seconds())
		}
	})
}

// statusForKind maps a failure class onto an HTTP status
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindUsage, service.KindDeviceResolution, service.KindDeviceNotFound, service.KindIndexOutOfRange:
		return http.StatusBadRequest
	case service.KindAlreadyRecording, service.KindNotRecording:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, env service.Envelope) {
	status := http.StatusOK
	if !env.OK {
		status = statusForKind(env.Kind)
		slog.Warn("Request failed", "kind", env.Kind, "error", env.Error)
	}
	writeJSON(w, status, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// sendErrorResponse writes a failed envelope for errors raised by the
// transport itself (bad method, malformed body)
func sendErrorResponse(w http.ResponseWriter, status int, kind service.ErrorKind, message string) {
	writeJSON(w, status, service.Envelope{OK: false, Kind: kind, Error: message})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		sendErrorResponse(w, http.StatusMethodNotAllowed, service.KindUsage, "Method not allowed")
		return false
	}
	return true
}

// getLocalIP returns the address used for outbound traffic, for log output
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
