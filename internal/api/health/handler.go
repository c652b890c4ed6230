package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"enlitens/pkg/logger"
)

// Check probes one component. A nil error means healthy.
type Check func(ctx context.Context) error

// Handler serves liveness, readiness and detailed health endpoints over
// the registered component checks.
type Handler struct {
	log         *logger.Logger
	serviceName string
	version     string
	startTime   time.Time
	checks      map[string]Check
}

// New creates a health handler with no checks registered.
func New(serviceName, version string) *Handler {
	return &Handler{
		log:         logger.Get().With("component", "health"),
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checks:      make(map[string]Check),
	}
}

// Register adds a named component check. Not safe for concurrent use with
// request handling; register everything before serving.
func (h *Handler) Register(name string, check Check) {
	h.checks[name] = check
}

// ComponentHealth is the probe result for one component.
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Status is the aggregate health report.
type Status struct {
	Status    string                     `json:"status"` // healthy, degraded, unhealthy
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// HandleLiveness returns 200 while the process is running.
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// HandleReadiness returns 503 unless every registered component is healthy.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, healthy, total := h.probe(ctx)

	statusCode := http.StatusOK
	if healthy < total {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warnf("Readiness check failed: %d/%d components healthy", healthy, total)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}

// HandleHealth returns the detailed report. A partially healthy system is
// reported as degraded with a 200 so dashboards keep scraping it.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, healthy, total := h.probe(ctx)

	statusCode := http.StatusOK
	if total > 0 && healthy == 0 {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	} else if healthy < total {
		status.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(status)
}

func (h *Handler) probe(ctx context.Context) (Status, int, int) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]ComponentHealth, len(names))
	healthy := 0
	for _, name := range names {
		result := h.runCheck(ctx, name, h.checks[name])
		results[name] = result
		if result.Status == "healthy" {
			healthy++
		}
	}

	return Status{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    results,
	}, healthy, len(names)
}

func (h *Handler) runCheck(ctx context.Context, name string, check Check) ComponentHealth {
	start := time.Now()
	err := check(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Warnf("Health check %s failed after %s: %v", name, elapsed, err)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}
	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}
