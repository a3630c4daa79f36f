package marketdata

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"tradingarena/internal/models"
)

const (
	barInterval       = 300 // seconds
	defaultBasePrice  = 150.0
	demoVolatility    = 0.002
	liveVolatility    = 0.001
	quoteChangeSpread = 5.0
)

var basePrices = map[string]float64{
	"AAPL":  178.50,
	"MSFT":  378.25,
	"GOOGL": 141.80,
	"AMZN":  178.90,
	"NVDA":  495.22,
	"META":  505.75,
	"TSLA":  248.50,
	"AMD":   165.30,
	"NFLX":  485.20,
	"JPM":   195.40,
}

// BasePrice is the anchor for synthesized series. Unknown tickers get 150.
func BasePrice(ticker string) float64 {
	if p, ok := basePrices[strings.ToUpper(strings.TrimSpace(ticker))]; ok {
		return p
	}
	return defaultBasePrice
}

// Synthesizer produces plausible bars and quotes without a feed. It is safe
// for concurrent use.
type Synthesizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
	Now func() time.Time
}

func NewSynthesizer(seed int64) *Synthesizer {
	return &Synthesizer{rnd: rand.New(rand.NewSource(seed)), Now: time.Now}
}

// Bars walks count 5-minute bars forward from the base price, ending now.
func (s *Synthesizer) Bars(ticker string, count int) []models.Candle {
	if count <= 0 {
		return []models.Candle{}
	}
	base := BasePrice(ticker)
	vol := base * demoVolatility
	now := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Candle, 0, count)
	price := base
	for i := count - 1; i >= 0; i-- {
		trend := math.Sin(float64(i)/20) * vol
		noise := (s.rnd.Float64() - 0.5) * vol * 2
		open := price
		close := open + trend + noise
		high := math.Max(open, close) + s.rnd.Float64()*vol
		low := math.Min(open, close) - s.rnd.Float64()*vol
		out = append(out, models.Candle{
			Time:   now - int64(i)*barInterval,
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(close),
			Volume: s.rnd.Int63n(1_000_000) + 100_000,
		})
		price = close
	}
	return out
}

// LiveCandle builds one still-forming bar seeded from last's close, or from
// the base price when there is no previous bar.
func (s *Synthesizer) LiveCandle(last *models.Candle, ticker string) models.Candle {
	base := BasePrice(ticker)
	if last != nil && last.Close > 0 {
		base = last.Close
	}
	vol := base * liveVolatility
	now := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	change := (s.rnd.Float64() - 0.5) * vol * 2
	open := base
	close := base + change
	high := math.Max(open, close) + s.rnd.Float64()*vol
	low := math.Min(open, close) - s.rnd.Float64()*vol
	return models.Candle{
		Time:   now,
		Open:   round2(open),
		High:   round2(high),
		Low:    round2(low),
		Close:  round2(close),
		Volume: s.rnd.Int63n(100_000) + 10_000,
	}
}

func (s *Synthesizer) Quote(ticker string) models.Quote {
	base := BasePrice(ticker)
	s.mu.Lock()
	change := (s.rnd.Float64() - 0.5) * quoteChangeSpread
	s.mu.Unlock()
	return models.Quote{
		Price:         round2(base + change),
		Change:        round2(change),
		ChangePercent: round2(change / base * 100),
	}
}

func (s *Synthesizer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
