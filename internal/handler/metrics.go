package handler

import (
	"github.com/gin-gonic/gin"

	"tradingarena/internal/metrics"
)

type MetricsHandler struct{}

func (h *MetricsHandler) Register(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}
