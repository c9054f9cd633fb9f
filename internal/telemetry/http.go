package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPSink posts trades to {base}/simulations/{id}/trade. Wallet snapshots are not posted.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSink builds a sink for simulation id under baseURL.
func NewHTTPSink(baseURL, simulationID string, client *http.Client) (*HTTPSink, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || simulationID == "" {
		return nil, fmt.Errorf("http sink needs api url and simulation id")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSink{
		endpoint: fmt.Sprintf("%s/simulations/%s/trade", baseURL, url.PathEscape(simulationID)),
		client:   client,
	}, nil
}

func (s *HTTPSink) Name() string { return "http" }

type tradeReport struct {
	AssetID string   `json:"assetId"`
	Side    string   `json:"side"`
	Price   float64  `json:"price"`
	Size    float64  `json:"size"`
	PnL     *float64 `json:"pnl"`
}

func (s *HTTPSink) SendTrade(ctx context.Context, t Trade) error {
	body, err := json.Marshal(tradeReport{AssetID: t.Outcome, Side: t.Side, Price: t.Price, Size: t.Size, PnL: t.PnL})
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post trade: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post trade: status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSink) SendWallet(context.Context, Wallet) error { return nil }
