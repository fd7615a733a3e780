package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/skgma1019/music-player-app/internal/analyzer"
	"github.com/skgma1019/music-player-app/internal/config"
	"github.com/skgma1019/music-player-app/internal/metrics"
	"github.com/skgma1019/music-player-app/internal/requestctx"
)

// Service identity reported by /health and the version command.
const (
	ServiceName    = "analyze-relay"
	ServiceVersion = "1.0.0"

	maxRequestIDLength = 128
)

// StatsSource reports analysis service client statistics
type StatsSource interface {
	GetStats() analyzer.ClientStats
}

// HTTPServer serves the relay endpoint together with the monitoring API
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	analyze http.Handler
	stats   StatsSource
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP server. analyze handles POST /analyze.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, analyze http.Handler, stats StatsSource, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		analyze:   analyze,
		stats:     stats,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	var handler http.Handler = mux
	if cfg.CORS.Enabled {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{requestctx.HeaderRequestID},
		}).Handler(handler)
	}
	handler = h.withRequestID(handler)

	h.server = &http.Server{
		Addr:              cfg.HTTP.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.GetReadHeaderTimeout(),
		WriteTimeout:      cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:       cfg.HTTP.GetIdleTimeout(),
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return h
}

// Handler returns the fully wrapped root handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// Addr returns the configured listen address
func (h *HTTPServer) Addr() string {
	return h.server.Addr
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Upload relay
	mux.HandleFunc("/analyze", h.withMetrics("/analyze", h.analyze.ServeHTTP))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (not instrumented itself)
	mux.Handle("/metrics", h.metrics.Handler())

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withRequestID accepts the caller's X-Request-ID or generates one, echoes it
// and stores it in the request context.
func (h *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestctx.HeaderRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(requestctx.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), id)))
	})
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// ListenAndServe listens on the configured address and serves until Shutdown.
func (h *HTTPServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	return h.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after a graceful Shutdown.
func (h *HTTPServer) Serve(ln net.Listener) error {
	h.logger.Info("Starting HTTP server", slog.String("address", ln.Addr().String()))

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// including their analysis calls, until ctx expires.
func (h *HTTPServer) Shutdown(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")
	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.stats.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    ServiceName,
			"version": ServiceVersion,
		},
		"components": map[string]interface{}{
			"analyzer": map[string]interface{}{
				"endpoint":        h.config.Analyzer.Endpoint,
				"total_requests":  stats.TotalRequests,
				"success_rate":    stats.SuccessRate,
				"active_requests": stats.ActiveRequests,
			},
			"uploads": map[string]interface{}{
				"dir": h.config.Upload.Dir,
			},
		},
	}

	h.writeJSON(w, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, Sanitize(h.config))
}

// Sanitize returns the configuration as exposed by /config and check-config.
func Sanitize(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"http": map[string]interface{}{
			"address":             cfg.HTTP.Address,
			"port":                cfg.HTTP.Port,
			"read_header_timeout": cfg.HTTP.ReadHeaderTimeout,
			"write_timeout":       cfg.HTTP.WriteTimeout,
			"idle_timeout":        cfg.HTTP.IdleTimeout,
			"shutdown_timeout":    cfg.HTTP.ShutdownTimeout,
		},
		"upload": map[string]interface{}{
			"dir":             cfg.Upload.Dir,
			"max_bytes":       cfg.Upload.MaxBytes,
			"max_field_bytes": cfg.Upload.MaxFieldBytes,
			"sweep_age":       cfg.Upload.SweepAge,
		},
		"analyzer": map[string]interface{}{
			"endpoint": redactURL(cfg.Analyzer.Endpoint),
			"timeout":  cfg.Analyzer.Timeout,
		},
		"cors": map[string]interface{}{
			"enabled":         cfg.CORS.Enabled,
			"allowed_origins": cfg.CORS.AllowedOrigins,
		},
		"logging": map[string]interface{}{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		},
	}
}

// redactURL hides credentials embedded in the endpoint URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"analyzer":  h.stats.GetStats(),
	}

	h.writeJSON(w, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	apiDoc := map[string]interface{}{
		"service": ServiceName,
		"version": ServiceVersion,
		"endpoints": map[string]interface{}{
			"POST /analyze": "Relay an audio upload to the analysis service",
			"GET /":         "API documentation",
			"GET /health":   "Service health check",
			"GET /config":   "Get service configuration",
			"GET /stats":    "Get analysis client statistics",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, apiDoc)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to write response", slog.String("error", err.Error()))
	}
}
