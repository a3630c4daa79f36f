package marketdata

import (
	"context"
	"errors"

	"tradingarena/internal/models"
)

var (
	ErrRateLimited = errors.New("marketdata: provider rate limited")
	ErrEmptySeries = errors.New("marketdata: provider returned no data")
)

// Provider is an external market data source.
type Provider interface {
	Name() string
	// RecentBars returns at most count 5-minute bars in ascending time order.
	RecentBars(ctx context.Context, ticker string, count int) ([]models.Candle, error)
	Quote(ctx context.Context, ticker string) (models.Quote, error)
}
