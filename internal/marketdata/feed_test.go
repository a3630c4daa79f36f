package marketdata

import (
	"context"
	"testing"
	"time"

	"tradingarena/internal/cache"
	"tradingarena/internal/models"
)

type stubProvider struct {
	bars       []models.Candle
	quote      models.Quote
	err        error
	quoteCalls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) RecentBars(ctx context.Context, ticker string, count int) ([]models.Candle, error) {
	return p.bars, p.err
}

func (p *stubProvider) Quote(ctx context.Context, ticker string) (models.Quote, error) {
	p.quoteCalls++
	return p.quote, p.err
}

func TestFeed_NoProviderSynthesizes(t *testing.T) {
	f := &Feed{Synth: fixedSynth(), BarCount: 30}
	bars := f.RecentBars(context.Background(), "aapl")
	if len(bars) != 30 {
		t.Fatalf("len=%d", len(bars))
	}
	q := f.Quote(context.Background(), "AAPL")
	if q.Price <= 0 {
		t.Fatalf("quote=%+v", q)
	}
}

func TestFeed_ProviderFailureFallsBack(t *testing.T) {
	p := &stubProvider{err: ErrRateLimited}
	f := &Feed{Provider: p, Synth: fixedSynth(), BarCount: 10, Cache: cache.NewMemoryStore(), QuoteTTL: time.Minute}
	if bars := f.RecentBars(context.Background(), "NVDA"); len(bars) != 10 {
		t.Fatalf("len=%d", len(bars))
	}
	q := f.Quote(context.Background(), "NVDA")
	if q.Price < 490 || q.Price > 500 {
		t.Fatalf("synthesized quote=%+v", q)
	}
}

func TestFeed_EmptyProviderSeriesFallsBack(t *testing.T) {
	f := &Feed{Provider: &stubProvider{}, Synth: fixedSynth(), BarCount: 5}
	if bars := f.RecentBars(context.Background(), "NVDA"); len(bars) != 5 {
		t.Fatalf("len=%d", len(bars))
	}
}

func TestFeed_QuoteCached(t *testing.T) {
	p := &stubProvider{quote: models.Quote{Price: 101.5, Change: 1.5, ChangePercent: 1.5}}
	f := &Feed{Provider: p, Synth: fixedSynth(), Cache: cache.NewMemoryStore(), QuoteTTL: time.Minute}

	first := f.Quote(context.Background(), "AMD")
	second := f.Quote(context.Background(), "amd")
	if first != second || first.Price != 101.5 {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	if p.quoteCalls != 1 {
		t.Fatalf("provider calls=%d want 1", p.quoteCalls)
	}
}

func TestFeed_ProviderBarsPassThrough(t *testing.T) {
	want := []models.Candle{{Time: 1, Close: 10}, {Time: 2, Close: 11}}
	f := &Feed{Provider: &stubProvider{bars: want}, Synth: fixedSynth()}
	got := f.RecentBars(context.Background(), "AAPL")
	if len(got) != 2 || got[1].Close != 11 {
		t.Fatalf("bars=%+v", got)
	}
}

func TestFeed_LiveCandleUsesSynth(t *testing.T) {
	f := &Feed{Synth: fixedSynth()}
	c := f.LiveCandle(&models.Candle{Close: 50}, "x")
	if c.Open != 50 {
		t.Fatalf("open=%v", c.Open)
	}
}
