package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

const defaultBinanceRESTURL = "https://api.binance.com"

// KlineClient reads OHLC history from the Binance REST API.
type KlineClient struct {
	baseURL string
	client  *http.Client
}

// NewKlineClient builds a client against baseURL (default api.binance.com).
func NewKlineClient(baseURL string, client *http.Client) *KlineClient {
	if baseURL == "" {
		baseURL = defaultBinanceRESTURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KlineClient{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

// Candles returns up to limit candles of interval starting at start (zero start means most recent).
func (k *KlineClient) Candles(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]signal.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	if !start.IsZero() {
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/api/v3/klines?%s", k.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "quantbox/1.0 (sim)")
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	out := make([]signal.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// Open returns the open price of the candle starting at start.
func (k *KlineClient) Open(ctx context.Context, symbol, interval string, start time.Time) (float64, error) {
	candles, err := k.Candles(ctx, symbol, interval, start, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("no candle at %s", start.UTC().Format(time.RFC3339))
	}
	return candles[0].Open, nil
}

// parseKline decodes [openTime, "open", "high", "low", "close", "volume", closeTime, ...].
func parseKline(row []json.RawMessage) (signal.Candle, error) {
	if len(row) < 7 {
		return signal.Candle{}, fmt.Errorf("short row (%d fields)", len(row))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return signal.Candle{}, fmt.Errorf("open time: %w", err)
	}
	if err := json.Unmarshal(row[6], &closeMs); err != nil {
		return signal.Candle{}, fmt.Errorf("close time: %w", err)
	}
	vals := make([]float64, 5)
	for i := range vals {
		v, err := decimalField(row[i+1])
		if err != nil {
			return signal.Candle{}, err
		}
		vals[i] = v
	}
	return signal.Candle{
		OpenTime:  time.UnixMilli(openMs),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		CloseTime: time.UnixMilli(closeMs),
	}, nil
}

func decimalField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return 0, fmt.Errorf("numeric field %s", string(raw))
		}
		return f, nil
	}
	return strconv.ParseFloat(s, 64)
}
