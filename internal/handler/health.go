package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler reports liveness and readiness. Store names the record store
// backend; with no checks (memory store, memory cache) the service is always
// ready.
type HealthHandler struct {
	Store  string
	Checks []ReadinessCheck
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	store := h.Store
	if store == "" {
		store = "memory"
	}
	status := http.StatusOK
	checks := make(map[string]string, len(h.Checks))
	for _, chk := range h.Checks {
		if chk.Ping == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		err := chk.Ping(ctx)
		cancel()
		if err != nil {
			checks[chk.Name] = "unreachable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[chk.Name] = "ok"
	}

	body := gin.H{"status": "ready", "store": store, "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	c.JSON(status, body)
}
