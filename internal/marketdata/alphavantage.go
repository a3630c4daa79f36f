package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tradingarena/internal/models"
)

const (
	avSeriesKey  = "Time Series (5min)"
	avTimeLayout = "2006-01-02 15:04:05"
)

type avBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type avQuote struct {
	Price         string `json:"05. price"`
	Change        string `json:"09. change"`
	ChangePercent string `json:"10. change percent"`
}

type avResponse struct {
	Series      map[string]avBar `json:"Time Series (5min)"`
	GlobalQuote *avQuote         `json:"Global Quote"`
	Note        string           `json:"Note"`
	Information string           `json:"Information"`
}

// AlphaVantage reads intraday bars and global quotes from alphavantage.co.
type AlphaVantage struct {
	client *resty.Client
	apiKey string
	loc    *time.Location
}

func NewAlphaVantage(baseURL, apiKey string, timeout time.Duration) *AlphaVantage {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	// Intraday timestamps are US/Eastern wall clock.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &AlphaVantage{client: client, apiKey: apiKey, loc: loc}
}

func (a *AlphaVantage) Name() string { return "alphavantage" }

func (a *AlphaVantage) RecentBars(ctx context.Context, ticker string, count int) ([]models.Candle, error) {
	var body avResponse
	if err := a.get(ctx, map[string]string{
		"function":   "TIME_SERIES_INTRADAY",
		"symbol":     ticker,
		"interval":   "5min",
		"outputsize": "compact",
	}, &body); err != nil {
		return nil, err
	}
	if len(body.Series) == 0 {
		return nil, fmt.Errorf("%w: %s missing for %s", ErrEmptySeries, avSeriesKey, ticker)
	}

	out := make([]models.Candle, 0, len(body.Series))
	for stamp, bar := range body.Series {
		c, err := a.toCandle(stamp, bar)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func (a *AlphaVantage) Quote(ctx context.Context, ticker string) (models.Quote, error) {
	var body avResponse
	if err := a.get(ctx, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   ticker,
	}, &body); err != nil {
		return models.Quote{}, err
	}
	if body.GlobalQuote == nil || body.GlobalQuote.Price == "" {
		return models.Quote{}, fmt.Errorf("%w: no global quote for %s", ErrEmptySeries, ticker)
	}
	price, err := parseFloat(body.GlobalQuote.Price)
	if err != nil {
		return models.Quote{}, err
	}
	change, err := parseFloat(body.GlobalQuote.Change)
	if err != nil {
		return models.Quote{}, err
	}
	pct, err := parseFloat(strings.TrimSuffix(strings.TrimSpace(body.GlobalQuote.ChangePercent), "%"))
	if err != nil {
		return models.Quote{}, err
	}
	return models.Quote{Price: price, Change: change, ChangePercent: pct}, nil
}

func (a *AlphaVantage) get(ctx context.Context, params map[string]string, out *avResponse) error {
	params["apikey"] = a.apiKey
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/query")
	if err != nil {
		return fmt.Errorf("alphavantage %s: %w", params["function"], err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("alphavantage %s: status %d", params["function"], resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("alphavantage %s: decode: %w", params["function"], err)
	}
	if out.Note != "" || out.Information != "" {
		return fmt.Errorf("%w: %s%s", ErrRateLimited, out.Note, out.Information)
	}
	return nil
}

func (a *AlphaVantage) toCandle(stamp string, bar avBar) (models.Candle, error) {
	t, err := time.ParseInLocation(avTimeLayout, stamp, a.loc)
	if err != nil {
		return models.Candle{}, fmt.Errorf("alphavantage: bad timestamp %q: %w", stamp, err)
	}
	var c models.Candle
	c.Time = t.Unix()
	fields := []struct {
		raw string
		dst *float64
	}{
		{bar.Open, &c.Open},
		{bar.High, &c.High},
		{bar.Low, &c.Low},
		{bar.Close, &c.Close},
	}
	for _, f := range fields {
		v, err := parseFloat(f.raw)
		if err != nil {
			return models.Candle{}, err
		}
		*f.dst = v
	}
	vol, err := strconv.ParseInt(strings.TrimSpace(bar.Volume), 10, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("alphavantage: bad volume %q: %w", bar.Volume, err)
	}
	c.Volume = vol
	return c, nil
}

func parseFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("alphavantage: bad number %q: %w", raw, err)
	}
	return v, nil
}
