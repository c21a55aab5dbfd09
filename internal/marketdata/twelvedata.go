// Package marketdata provides model.SeriesProvider implementations: a
// Twelve Data REST client and a deterministic synthetic feed.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"volsignal/internal/model"
)

const DefaultTwelveDataURL = "https://api.twelvedata.com"

// TwelveDataConfig holds configuration for the Twelve Data client.
type TwelveDataConfig struct {
	BaseURL  string // defaults to DefaultTwelveDataURL
	APIKey   string
	Interval string // bar interval, e.g. "15min"

	// Timeout bounds each HTTP call in addition to the caller's context.
	// Defaults to 10s.
	Timeout time.Duration

	// Symbols maps instrument ids to provider symbols when they differ.
	Symbols map[string]string
}

func (c *TwelveDataConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultTwelveDataURL
	}
	if c.Interval == "" {
		c.Interval = "15min"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// TwelveData fetches OHLC time series from the Twelve Data REST API.
type TwelveData struct {
	cfg    TwelveDataConfig
	client *http.Client
	log    *slog.Logger
}

// NewTwelveData creates a client. An API key is required.
func NewTwelveData(cfg TwelveDataConfig) (*TwelveData, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("twelvedata: api key is required")
	}
	if _, err := ParseInterval(cfg.Interval); err != nil {
		return nil, fmt.Errorf("twelvedata: %w", err)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("twelvedata: base url: %w", err)
	}
	return &TwelveData{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    slog.Default().With(slog.String("component", "twelvedata")),
	}, nil
}

// timeSeriesResponse is the /time_series payload. Values are newest-first and
// every number is a JSON string.
type timeSeriesResponse struct {
	Meta struct {
		Symbol           string `json:"symbol"`
		Interval         string `json:"interval"`
		ExchangeTimezone string `json:"exchange_timezone"`
	} `json:"meta"`
	Values []struct {
		Datetime string          `json:"datetime"`
		Open     decimal.Decimal `json:"open"`
		High     decimal.Decimal `json:"high"`
		Low      decimal.Decimal `json:"low"`
		Close    decimal.Decimal `json:"close"`
	} `json:"values"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Series implements model.SeriesProvider.
func (td *TwelveData) Series(ctx context.Context, instrumentID string, lookback int) (model.Series, error) {
	symbol := instrumentID
	if s, ok := td.cfg.Symbols[instrumentID]; ok && s != "" {
		symbol = s
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", td.cfg.Interval)
	q.Set("outputsize", strconv.Itoa(lookback))
	q.Set("apikey", td.cfg.APIKey)
	endpoint := strings.TrimRight(td.cfg.BaseURL, "/") + "/time_series?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Series{}, fmt.Errorf("twelvedata: create request: %w", err)
	}

	start := time.Now()
	resp, err := td.client.Do(req)
	if err != nil {
		// the error text would carry the api key inside the url
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = errors.New("request failed")
		}
		return model.Series{}, fmt.Errorf("%w: twelvedata %s: %v", model.ErrSourceUnavailable, symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.Series{}, fmt.Errorf("%w: twelvedata %s: read body: %v", model.ErrSourceUnavailable, symbol, err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Series{}, fmt.Errorf("%w: twelvedata %s: status %d", model.ErrSourceUnavailable, symbol, resp.StatusCode)
	}

	var ts timeSeriesResponse
	if err := json.Unmarshal(body, &ts); err != nil {
		return model.Series{}, fmt.Errorf("%w: twelvedata %s: decode: %v", model.ErrInvalidSeries, symbol, err)
	}
	if ts.Status == "error" {
		return model.Series{}, fmt.Errorf("%w: twelvedata %s: %d %s", model.ErrSourceUnavailable, symbol, ts.Code, ts.Message)
	}

	loc := time.UTC
	if ts.Meta.ExchangeTimezone != "" {
		if l, err := time.LoadLocation(ts.Meta.ExchangeTimezone); err == nil {
			loc = l
		}
	}

	bars := make([]model.Bar, 0, len(ts.Values))
	for _, v := range ts.Values {
		t, err := parseDatetime(v.Datetime, loc)
		if err != nil {
			return model.Series{}, fmt.Errorf("%w: twelvedata %s: %v", model.ErrInvalidSeries, symbol, err)
		}
		bars = append(bars, model.Bar{
			Time:  t,
			Open:  v.Open.InexactFloat64(),
			High:  v.High.InexactFloat64(),
			Low:   v.Low.InexactFloat64(),
			Close: v.Close.InexactFloat64(),
		})
	}

	td.log.Debug("time series fetched",
		slog.String("symbol", symbol),
		slog.Int("bars", len(bars)),
		slog.Duration("latency", time.Since(start)))

	return model.NewSeries(instrumentID, bars)
}

func parseDatetime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad datetime %q", s)
}
