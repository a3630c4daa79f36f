package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradingarena/internal/repository"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
)

type TradesHandler struct {
	Repo   repository.TradeRepository
	Logger *zap.Logger
}

func (h *TradesHandler) Register(r *gin.Engine) {
	r.GET("/api/trades", h.list)
}

// @Summary Trade log, newest first
// @Tags trades
// @Param limit query int false "max trades (default 50)"
// @Success 200 {object} apiResponse
// @Router /api/trades [get]
func (h *TradesHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", defaultTradeLimit)
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	trades, err := h.Repo.ListTrades(c.Request.Context(), limit)
	if err != nil {
		Internal(c, h.Logger, "failed to fetch trades", err)
		return
	}
	Ok(c, trades, map[string]any{"limit": limit})
}
