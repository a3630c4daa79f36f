package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradingarena/internal/repository"
)

type DebateHandler struct {
	Repo   repository.DebateRepository
	Logger *zap.Logger
}

func (h *DebateHandler) Register(r *gin.Engine) {
	r.GET("/api/debate/messages", h.list)
}

// @Summary Debate log of the current cycle
// @Tags debate
// @Success 200 {object} apiResponse
// @Router /api/debate/messages [get]
func (h *DebateHandler) list(c *gin.Context) {
	msgs, err := h.Repo.ListDebateMessages(c.Request.Context())
	if err != nil {
		Internal(c, h.Logger, "failed to fetch debate messages", err)
		return
	}
	Ok(c, msgs, nil)
}
