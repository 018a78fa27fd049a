package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves the liveness and dependency health endpoints
type HealthHandler struct {
	version  string
	timeout  time.Duration
	checks   map[string]HealthCheck
	critical map[string]bool
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:  version,
		timeout:  5 * time.Second,
		checks:   make(map[string]HealthCheck),
		critical: make(map[string]bool),
	}
}

// WithCheck registers a dependency probe. A failing critical check makes the
// service unhealthy; any other failure only degrades it.
func (h *HealthHandler) WithCheck(name string, critical bool, check HealthCheck) *HealthHandler {
	h.checks[name] = check
	h.critical[name] = critical
	return h
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type DetailedHealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Handle provides a basic health check endpoint
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	respond(w, r, HealthResponse{Status: "ok", Version: h.version}, http.StatusOK)
}

// HandleDetailed runs every registered check concurrently
func (h *HealthHandler) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	response := DetailedHealthResponse{
		Version:  h.version,
		Services: make(map[string]ServiceHealth, len(h.checks)),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := h.run(r.Context(), check)
			mu.Lock()
			response.Services[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	response.Status = h.calculateOverallStatus(response.Services)

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	respond(w, r, response, statusCode)
}

func (h *HealthHandler) run(ctx context.Context, check HealthCheck) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	err := check(checkCtx)
	result := ServiceHealth{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = "unhealthy"
		result.Error = err.Error()
	}
	return result
}

// calculateOverallStatus determines the overall system status based on individual services
func (h *HealthHandler) calculateOverallStatus(services map[string]ServiceHealth) string {
	degraded := false
	for name, service := range services {
		if service.Status != "unhealthy" {
			continue
		}
		if h.critical[name] {
			return "unhealthy"
		}
		degraded = true
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}
