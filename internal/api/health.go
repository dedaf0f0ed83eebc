package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"nonprofit-site/backend/pkg/health"
)

// ConnectionCounter reports open websocket connections.
type ConnectionCounter interface {
	ActiveConnections() int
}

// HealthController serves the health endpoints
type HealthController struct {
	checker *health.Checker
	conns   ConnectionCounter
	version string
	started time.Time
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string                       `json:"status"`
	Timestamp   time.Time                    `json:"timestamp"`
	Version     string                       `json:"version,omitempty"`
	Uptime      string                       `json:"uptime"`
	Components  map[string]*health.Component `json:"components"`
	Connections *int                         `json:"websocket_connections,omitempty"`
	Memory      MemoryStats                  `json:"memory"`
}

// MemoryStats is a small slice of runtime.MemStats
type MemoryStats struct {
	AllocMB  uint64 `json:"alloc_mb"`
	SysMB    uint64 `json:"sys_mb"`
	GCCycles uint32 `json:"gc_cycles"`
}

// NewHealthController creates a health controller. conns may be nil.
func NewHealthController(checker *health.Checker, conns ConnectionCounter, version string) *HealthController {
	return &HealthController{
		checker: checker,
		conns:   conns,
		version: version,
		started: time.Now(),
	}
}

// Health reports component status, 503 while a critical component is down
func (h *HealthController) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: h.checker.GetStatus(),
		Memory: MemoryStats{
			AllocMB:  mem.Alloc / 1024 / 1024,
			SysMB:    mem.Sys / 1024 / 1024,
			GCCycles: mem.NumGC,
		},
	}
	if h.conns != nil {
		n := h.conns.ActiveConnections()
		resp.Connections = &n
	}

	code := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// RegisterRoutes registers both health paths for compatibility
func (h *HealthController) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/api/health", h.Health)
}
