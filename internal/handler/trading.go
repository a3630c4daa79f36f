package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradingarena/internal/cycle"
	"tradingarena/internal/models"
)

type CycleController interface {
	Start(ctx context.Context, ticker string) (models.CycleState, error)
	Stop(ctx context.Context) (models.CycleState, error)
	State(ctx context.Context) (models.CycleState, error)
}

type TradingHandler struct {
	Cycle  CycleController
	Logger *zap.Logger
}

type startCycleRequest struct {
	Ticker string `json:"ticker"`
}

type cycleCommandResponse struct {
	Success bool               `json:"success"`
	Status  models.CycleStatus `json:"status"`
}

func (h *TradingHandler) Register(r *gin.Engine) {
	group := r.Group("/api/trading")
	group.GET("/state", h.state)
	group.POST("/start-cycle", h.start)
	group.POST("/stop-cycle", h.stop)
}

// @Summary Current cycle state
// @Tags trading
// @Success 200 {object} apiResponse
// @Router /api/trading/state [get]
func (h *TradingHandler) state(c *gin.Context) {
	st, err := h.Cycle.State(c.Request.Context())
	if err != nil {
		Internal(c, h.Logger, "failed to fetch cycle state", err)
		return
	}
	Ok(c, st, nil)
}

// @Summary Start a trading cycle
// @Tags trading
// @Param body body startCycleRequest false "chart ticker to focus"
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/trading/start-cycle [post]
func (h *TradingHandler) start(c *gin.Context) {
	var req startCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker != "" && !tickerParam.MatchString(ticker) {
		Error(c, http.StatusBadRequest, "invalid ticker", nil)
		return
	}

	st, err := h.Cycle.Start(c.Request.Context(), ticker)
	if errors.Is(err, cycle.ErrCycleRunning) {
		Error(c, http.StatusConflict, "a trading cycle is already running", nil)
		return
	}
	if err != nil {
		Internal(c, h.Logger, "failed to start trading cycle", err)
		return
	}
	Ok(c, cycleCommandResponse{Success: true, Status: st.Status}, nil)
}

// @Summary Stop the running cycle
// @Tags trading
// @Success 200 {object} apiResponse
// @Router /api/trading/stop-cycle [post]
func (h *TradingHandler) stop(c *gin.Context) {
	st, err := h.Cycle.Stop(c.Request.Context())
	if err != nil {
		Internal(c, h.Logger, "failed to stop trading cycle", err)
		return
	}
	Ok(c, cycleCommandResponse{Success: true, Status: st.Status}, nil)
}
