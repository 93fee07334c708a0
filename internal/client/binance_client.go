package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/config"
	"github.com/yourorg/strategy-optimizer/internal/model"
)

const (
	BinanceFuturesBaseURL = "https://fapi.binance.com"
	MaxKlinesLimit        = 1500
)

// ErrSymbolNotFound is returned when exchange info has no such symbol
var ErrSymbolNotFound = errors.New("symbol not found on exchange")

// BinanceClient handles communication with the Binance USD-M futures API
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewBinanceClient creates a new Binance futures API client
func NewBinanceClient(cfg config.BinanceConfig, logger *zap.Logger) *BinanceClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BinanceFuturesBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}

	return &BinanceClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: retries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}
}

// exchangeInfo is the subset of /fapi/v1/exchangeInfo the client reads
type exchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string `json:"filterType"`
			StepSize   string `json:"stepSize"`
		} `json:"filters"`
	} `json:"symbols"`
}

// GetStepSize returns the LOT_SIZE step of a symbol, e.g. "0.001"
func (c *BinanceClient) GetStepSize(ctx context.Context, symbol string) (string, error) {
	var info exchangeInfo
	if err := c.getJSON(ctx, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		return "", fmt.Errorf("failed to fetch exchange info: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				return f.StepSize, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// GetKlines retrieves one page of candles starting at startTime (epoch ms)
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, startTime int64, limit int) ([]model.Candle, error) {
	if limit > MaxKlinesLimit || limit < 1 {
		limit = MaxKlinesLimit
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("interval", interval)
	params.Add("limit", strconv.Itoa(limit))
	if startTime > 0 {
		params.Add("startTime", strconv.FormatInt(startTime, 10))
	}

	var rawKlines [][]interface{}
	if err := c.getJSON(ctx, "/fapi/v1/klines", params, &rawKlines); err != nil {
		c.logger.Error("Failed to fetch klines from Binance",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.String("interval", interval))
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}

	candles := make([]model.Candle, 0, len(rawKlines))
	for i, raw := range rawKlines {
		candle, err := parseKline(raw)
		if err != nil {
			c.logger.Warn("Skipping malformed kline data",
				zap.Int("index", i),
				zap.Any("raw_data", raw),
				zap.Error(err))
			continue
		}
		candles = append(candles, candle)
	}

	c.logger.Debug("Fetched klines",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(candles)))

	return candles, nil
}

// GetKlineHistory pages through klines from startTime. With followToNow it
// keeps requesting until a page reaches now; otherwise it stops after the
// first page.
func (c *BinanceClient) GetKlineHistory(ctx context.Context, symbol, interval string, startTime int64, limit int, followToNow bool) ([]model.Candle, error) {
	now := time.Now().UnixMilli()

	var candles []model.Candle
	for {
		page, err := c.GetKlines(ctx, symbol, interval, startTime, limit)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		candles = append(candles, page...)
		startTime = page[len(page)-1].CloseTime + 1

		if !followToNow || startTime >= now {
			break
		}
	}

	c.logger.Info("Downloaded kline history",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("candles", len(candles)))

	return candles, nil
}

// getJSON performs a GET with retries. 4xx responses other than 429 are
// not retried.
func (c *BinanceClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			c.logger.Warn("Binance API error response",
				zap.String("path", path),
				zap.Int("statusCode", resp.StatusCode),
				zap.String("response", string(bodyBytes)))
			err := fmt.Errorf("binance API returned status code %d: %s", resp.StatusCode, string(bodyBytes))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.maxRetries-1)),
		ctx,
	)
	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		c.logger.Warn("Retrying Binance request",
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

// parseKline converts [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(raw []interface{}) (model.Candle, error) {
	if len(raw) < 7 {
		return model.Candle{}, fmt.Errorf("expected at least 7 fields, got %d", len(raw))
	}

	openTime, ok := raw[0].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("invalid open time %v", raw[0])
	}
	closeTime, ok := raw[6].(float64)
	if !ok {
		return model.Candle{}, fmt.Errorf("invalid close time %v", raw[6])
	}

	var prices [5]float64
	for i := range prices {
		s, ok := raw[i+1].(string)
		if !ok {
			return model.Candle{}, fmt.Errorf("field %d is not a string", i+1)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		prices[i] = v
	}

	return model.Candle{
		OpenTime:  int64(openTime),
		CloseTime: int64(closeTime),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}, nil
}
