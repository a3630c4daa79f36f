package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradingarena/internal/models"
	"tradingarena/internal/repository"
)

type WeightsHandler struct {
	Repo   repository.WeightRepository
	Logger *zap.Logger
}

type setWeightsRequest struct {
	StockWeight    *float64 `json:"stockWeight"`
	StrategyWeight *float64 `json:"strategyWeight"`
	TradingWeight  *float64 `json:"tradingWeight"`
}

func (h *WeightsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/ai/weights")
	group.GET("", h.list)
	group.POST("/:agent", h.set)
}

// @Summary Agent weights
// @Tags agents
// @Success 200 {object} apiResponse
// @Router /api/ai/weights [get]
func (h *WeightsHandler) list(c *gin.Context) {
	items, err := h.Repo.GetAgentWeights(c.Request.Context())
	if err != nil {
		Internal(c, h.Logger, "failed to fetch agent weights", err)
		return
	}
	Ok(c, items, nil)
}

// @Summary Override an agent's weights
// @Tags agents
// @Param agent path string true "chatgpt|gemini|grok|deepseek"
// @Param body body setWeightsRequest true "absolute weights; omitted fields are kept"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/ai/weights/{agent} [post]
func (h *WeightsHandler) set(c *gin.Context) {
	agent, ok := models.ParseAgent(c.Param("agent"))
	if !ok {
		Error(c, http.StatusNotFound, "agent not found", nil)
		return
	}
	var req setWeightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	patch := models.WeightPatch{
		SelectionWeight: req.StockWeight,
		StrategyWeight:  req.StrategyWeight,
		ExecutionWeight: req.TradingWeight,
	}
	if patch.Empty() {
		Error(c, http.StatusBadRequest, "no weights given", nil)
		return
	}

	updated, err := h.Repo.SetAgentWeight(c.Request.Context(), agent, patch)
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "agent not found", nil)
		return
	}
	if err != nil {
		Internal(c, h.Logger, "failed to update agent weights", err)
		return
	}
	if h.Logger != nil {
		h.Logger.Info("agent weights overridden", zap.String("agent", string(agent)))
	}
	Ok(c, updated, nil)
}
