package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradingarena/internal/models"
)

type MarketFeed interface {
	RecentBars(ctx context.Context, ticker string) []models.Candle
	Quote(ctx context.Context, ticker string) models.Quote
}

type TickerSetter interface {
	SetTicker(ticker string)
}

type MarketHandler struct {
	Feed MarketFeed
	// Stream, when set, follows the last ticker whose candles were requested.
	Stream TickerSetter
}

type candlesResponse struct {
	Ticker  string          `json:"ticker"`
	Candles []models.Candle `json:"candles"`
}

func (h *MarketHandler) Register(r *gin.Engine) {
	group := r.Group("/api/market")
	group.GET("/candles/:ticker", h.candles)
	group.GET("/quote/:ticker", h.quote)
}

// @Summary Recent 5-minute candles
// @Tags market
// @Param ticker path string true "ticker symbol"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/market/candles/{ticker} [get]
func (h *MarketHandler) candles(c *gin.Context) {
	ticker, ok := tickerFrom(c, "ticker")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid ticker", nil)
		return
	}
	if h.Stream != nil {
		h.Stream.SetTicker(ticker)
	}
	Ok(c, candlesResponse{Ticker: ticker, Candles: h.Feed.RecentBars(c.Request.Context(), ticker)}, nil)
}

// @Summary Latest quote
// @Tags market
// @Param ticker path string true "ticker symbol"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/market/quote/{ticker} [get]
func (h *MarketHandler) quote(c *gin.Context) {
	ticker, ok := tickerFrom(c, "ticker")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid ticker", nil)
		return
	}
	Ok(c, h.Feed.Quote(c.Request.Context(), ticker), nil)
}
