package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Check is one dependency checked by readiness.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
	// Optional checks report failures without failing readiness.
	Optional bool
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	checks    []Check
	startTime time.Time
	version   string
}

func NewHealthHandler(version string, checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, startTime: time.Now(), version: version}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	HeapMB    float64           `json:"heap_mb"`
}

// Liveness answers as long as the process serves HTTP
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness pings every dependency
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks, healthy := h.run(c.Request.Context(), 5*time.Second)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		HeapMB:    float64(m.HeapAlloc) / (1 << 20),
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Health is the short form of Readiness.
func (h *HealthHandler) Health(c *gin.Context) {
	if _, healthy := h.run(c.Request.Context(), 3*time.Second); !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "dependency unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

func (h *HealthHandler) run(ctx context.Context, timeout time.Duration) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(map[string]string, len(h.checks))
	healthy := true
	for _, chk := range h.checks {
		if err := chk.Ping(ctx); err != nil {
			out[chk.Name] = "unhealthy: " + err.Error()
			if !chk.Optional {
				healthy = false
			}
			continue
		}
		out[chk.Name] = "healthy"
	}
	return out, healthy
}
