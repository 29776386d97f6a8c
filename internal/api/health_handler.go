package api

import (
	"context"
	"net/http"
	"time"

	"github.com/uticket/backend/pkg/response"
)

// Check is one readiness dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks  []Check
	version string
}

func NewHealthHandler(version string, checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, version: version}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{Status: "ok", Timestamp: now(), Version: h.version})
}

// Ready pings every dependency and answers 503 if any fails.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ready", Timestamp: now(), Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	response.JSON(w, status, resp)
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	response.OK(w, HealthResponse{Status: "alive", Timestamp: now()})
}
