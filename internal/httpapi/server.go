// ABOUTME: HTTP JSON surface over the merged workout feed plus Prometheus metrics.
// ABOUTME: Routes are matched by hand on the path segments; errors use a code/message envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/observability"
)

// Feed is the read side of the merge coordinator.
type Feed interface {
	Get(ctx context.Context, identity string) models.MergeResult
	ForceRefresh(ctx context.Context, identity string) models.MergeResult
	OlderPage(ctx context.Context, identity string, until time.Time) models.MergeResult
	Invalidate(identity string) error
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// DefaultIdentity serves GET /v1/workouts.
	DefaultIdentity string
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// Server serves the feed as JSON under /v1/workouts, plus /health and
// /metrics. It implements http.Handler.
type Server struct {
	feed    Feed
	cfg     ServerConfig
	logger  *log.Logger
	metrics http.Handler
}

// NewServer returns a Server reading from feed.
func NewServer(feed Feed, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		feed:    feed,
		cfg:     cfg,
		logger:  logger.WithPrefix("http"),
		metrics: observability.Handler(),
	}
}

// ServeHTTP routes the request and logs it at debug level.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.route(rec, r)
	s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/metrics" && r.Method == http.MethodGet {
		s.metrics.ServeHTTP(w, r)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" || parts[1] != "workouts" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}

	identity := s.cfg.DefaultIdentity
	if len(parts) >= 3 {
		identity = parts[2]
	}
	correlationID := getCorrelationID(r)

	switch {
	case len(parts) <= 3 && r.Method == http.MethodGet:
		s.handleFeed(w, r, identity, correlationID)
	case len(parts) == 4 && parts[3] == "older" && r.Method == http.MethodGet:
		s.handleOlder(w, r, identity, correlationID)
	case len(parts) == 4 && parts[3] == "cache" && r.Method == http.MethodDelete:
		s.handleInvalidate(w, identity, correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request, identity, correlationID string) {
	limit, ok := parseIntParam(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer", correlationID)
		return
	}

	var res models.MergeResult
	if refresh := r.URL.Query().Get("refresh"); refresh == "1" || refresh == "true" {
		res = s.feed.ForceRefresh(r.Context(), identity)
	} else {
		res = s.feed.Get(r.Context(), identity)
	}
	writeJSON(w, http.StatusOK, res.Limit(int(limit)))
}

func (s *Server) handleOlder(w http.ResponseWriter, r *http.Request, identity, correlationID string) {
	until, ok := parseIntParam(r, "until")
	if !ok || until <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "until must be a positive unix timestamp", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, s.feed.OlderPage(r.Context(), identity, time.Unix(until, 0)))
}

func (s *Server) handleInvalidate(w http.ResponseWriter, identity, correlationID string) {
	if err := s.feed.Invalidate(identity); err != nil {
		s.logger.Warn("invalidate cache", "identity", identity, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to invalidate cache", correlationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated", "identity": identity})
}

func parseIntParam(r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
