// Package marketdata serves recent bars and quotes for a ticker. An external
// provider is used when configured; otherwise, or when it fails, the data is
// synthesized locally.
package marketdata

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradingarena/internal/cache"
	"tradingarena/internal/config"
	"tradingarena/internal/metrics"
	"tradingarena/internal/models"
)

const (
	sourceProvider  = "provider"
	sourceSynthetic = "synthetic"
	sourceCache     = "cache"
)

var defaultSynth = NewSynthesizer(time.Now().UnixNano())

type Feed struct {
	Provider Provider
	Synth    *Synthesizer
	Cache    cache.Store
	QuoteTTL time.Duration
	BarCount int
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New picks the provider named in cfg. Alpha Vantage without a key falls back
// to synthesis only.
func New(cfg config.MarketConfig, store cache.Store, quoteTTL time.Duration, logger *zap.Logger) *Feed {
	f := &Feed{
		Synth:    NewSynthesizer(time.Now().UnixNano()),
		Cache:    store,
		QuoteTTL: quoteTTL,
		BarCount: cfg.BarCount,
		Timeout:  cfg.Timeout,
		Logger:   logger,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "alphavantage":
		key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
		if key == "" {
			if logger != nil {
				logger.Info("no market data key, using synthetic bars", zap.String("key_env", cfg.APIKeyEnv))
			}
			break
		}
		f.Provider = NewAlphaVantage(cfg.BaseURL, key, cfg.Timeout)
	case "yahoo":
		f.Provider = NewYahoo()
	}
	return f
}

// RecentBars never fails; provider errors are logged and replaced by a
// synthesized series.
func (f *Feed) RecentBars(ctx context.Context, ticker string) []models.Candle {
	ticker = normalizeTicker(ticker)
	count := f.barCount()
	if f.Provider != nil {
		callCtx, cancel := f.callContext(ctx)
		bars, err := f.Provider.RecentBars(callCtx, ticker, count)
		cancel()
		if err == nil && len(bars) > 0 {
			metrics.MarketFetchesTotal.WithLabelValues("bars", sourceProvider).Inc()
			return bars
		}
		f.warn("bars", ticker, err)
	}
	metrics.MarketFetchesTotal.WithLabelValues("bars", sourceSynthetic).Inc()
	return f.synth().Bars(ticker, count)
}

// Quote never fails. Provider answers are cached for QuoteTTL.
func (f *Feed) Quote(ctx context.Context, ticker string) models.Quote {
	ticker = normalizeTicker(ticker)
	if f.Provider == nil {
		metrics.MarketFetchesTotal.WithLabelValues("quote", sourceSynthetic).Inc()
		return f.synth().Quote(ticker)
	}

	key := quoteKey(f.Provider.Name(), ticker)
	var cached models.Quote
	if hit, err := cache.GetJSON(ctx, f.Cache, key, &cached); err == nil && hit {
		metrics.MarketFetchesTotal.WithLabelValues("quote", sourceCache).Inc()
		return cached
	} else if err != nil && f.Logger != nil {
		f.Logger.Warn("quote cache read failed", zap.String("ticker", ticker), zap.Error(err))
	}

	callCtx, cancel := f.callContext(ctx)
	q, err := f.Provider.Quote(callCtx, ticker)
	cancel()
	if err != nil {
		f.warn("quote", ticker, err)
		metrics.MarketFetchesTotal.WithLabelValues("quote", sourceSynthetic).Inc()
		return f.synth().Quote(ticker)
	}
	metrics.MarketFetchesTotal.WithLabelValues("quote", sourceProvider).Inc()
	if f.QuoteTTL > 0 {
		if err := cache.SetJSON(ctx, f.Cache, key, q, f.QuoteTTL); err != nil && f.Logger != nil {
			f.Logger.Warn("quote cache write failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	return q
}

// LiveCandle extends a series with one synthesized, still-forming bar.
func (f *Feed) LiveCandle(last *models.Candle, ticker string) models.Candle {
	return f.synth().LiveCandle(last, normalizeTicker(ticker))
}

func (f *Feed) BarLimit() int {
	return f.barCount()
}

func (f *Feed) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout > 0 {
		return context.WithTimeout(ctx, f.Timeout)
	}
	return context.WithCancel(ctx)
}

func (f *Feed) synth() *Synthesizer {
	if f.Synth == nil {
		return defaultSynth
	}
	return f.Synth
}

func (f *Feed) barCount() int {
	if f.BarCount > 0 {
		return f.BarCount
	}
	return 100
}

func (f *Feed) warn(kind, ticker string, err error) {
	if f.Logger == nil {
		return
	}
	if err == nil {
		err = ErrEmptySeries
	}
	f.Logger.Warn("market data provider failed, synthesizing",
		zap.String("provider", f.Provider.Name()),
		zap.String("kind", kind),
		zap.String("ticker", ticker),
		zap.Error(err),
	)
}

func quoteKey(provider, ticker string) string {
	return fmt.Sprintf("quote:%s:%s", provider, ticker)
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
