package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"tradingarena/internal/models"
)

// Yahoo reads charts and quotes through finance-go. It needs no API key.
type Yahoo struct {
	// Lookback bounds the chart request; intraday bars are sparse across
	// weekends so this spans several sessions.
	Lookback time.Duration
	Now      func() time.Time
}

func NewYahoo() *Yahoo {
	return &Yahoo{Lookback: 5 * 24 * time.Hour, Now: time.Now}
}

func (y *Yahoo) Name() string { return "yahoo" }

func (y *Yahoo) RecentBars(ctx context.Context, ticker string, count int) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := y.Now()
	start := end.Add(-y.Lookback)
	iter := chart.Get(&chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.FiveMins,
	})

	out := make([]models.Candle, 0, count)
	for iter.Next() {
		bar := iter.Bar()
		out = append(out, models.Candle{
			Time:   int64(bar.Timestamp),
			Open:   bar.Open.InexactFloat64(),
			High:   bar.High.InexactFloat64(),
			Low:    bar.Low.InexactFloat64(),
			Close:  bar.Close.InexactFloat64(),
			Volume: int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", ticker, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: yahoo chart for %s", ErrEmptySeries, ticker)
	}
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func (y *Yahoo) Quote(ctx context.Context, ticker string) (models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return models.Quote{}, err
	}
	q, err := quote.Get(ticker)
	if err != nil {
		return models.Quote{}, fmt.Errorf("yahoo quote %s: %w", ticker, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return models.Quote{}, fmt.Errorf("%w: yahoo quote for %s", ErrEmptySeries, ticker)
	}
	return models.Quote{
		Price:         q.RegularMarketPrice,
		Change:        q.RegularMarketChange,
		ChangePercent: q.RegularMarketChangePercent,
	}, nil
}
