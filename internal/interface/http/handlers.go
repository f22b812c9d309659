package http

import (
	"net/http"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"liveness":  "/livez",
		"health":    "/healthz",
		"readiness": "/readyz",
	}
	if s.deps.Stats != nil {
		endpoints["stats"] = "/stats"
	}
	if s.config.EnableMetrics && s.deps.Metrics != nil {
		endpoints["metrics"] = s.config.MetricsPath
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "studentdir",
		"version":   s.config.Version,
		"endpoints": endpoints,
	})
}

// handleLive answers as long as the process serves requests.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleHealth reports every check. A degraded service still answers 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleReady answers 503 while a required dependency is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStats returns the bot counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Stats()
	if stats == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "bot is not running")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
