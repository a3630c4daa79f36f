package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tradingarena/internal/broadcast"
	"tradingarena/internal/models"
)

type BarSource interface {
	RecentBars(ctx context.Context, ticker string) []models.Candle
	LiveCandle(last *models.Candle, ticker string) models.Candle
	BarLimit() int
}

type Audience interface {
	Count() int
	Publish(typ broadcast.EventType, data any) broadcast.Event
}

type PriceUpdate struct {
	Ticker  string          `json:"ticker"`
	Candles []models.Candle `json:"candles"`
}

// PriceStream pushes a fresh bar series for the focused ticker on every tick
// while anyone is listening.
type PriceStream struct {
	Bars     BarSource
	Audience Audience
	Logger   *zap.Logger

	mu     sync.RWMutex
	ticker string
}

func NewPriceStream(bars BarSource, audience Audience, ticker string, logger *zap.Logger) *PriceStream {
	s := &PriceStream{Bars: bars, Audience: audience, Logger: logger}
	s.SetTicker(ticker)
	return s
}

func (s *PriceStream) SetTicker(ticker string) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return
	}
	s.mu.Lock()
	s.ticker = t
	s.mu.Unlock()
}

func (s *PriceStream) Ticker() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticker
}

// Tick publishes one price_update. It reports false when there was no one
// to send it to.
func (s *PriceStream) Tick(ctx context.Context) (PriceUpdate, bool) {
	if s == nil || s.Bars == nil || s.Audience == nil || s.Audience.Count() == 0 {
		return PriceUpdate{}, false
	}
	ticker := s.Ticker()
	if ticker == "" {
		return PriceUpdate{}, false
	}

	bars := s.Bars.RecentBars(ctx, ticker)
	var last *models.Candle
	if len(bars) > 0 {
		c := bars[len(bars)-1]
		last = &c
	}
	candles := append(bars, s.Bars.LiveCandle(last, ticker))
	if limit := s.Bars.BarLimit(); limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	update := PriceUpdate{Ticker: ticker, Candles: candles}
	s.Audience.Publish(broadcast.EventPriceUpdate, update)
	if s.Logger != nil {
		s.Logger.Debug("price update published", zap.String("ticker", ticker), zap.Int("candles", len(candles)))
	}
	return update, true
}
