package polymarket

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

const DefaultClobURL = "https://clob.polymarket.com"

// BookClient fetches order book snapshots from the CLOB REST API.
type BookClient struct {
	host       string
	httpClient *http.Client
}

// NewBookClient builds a snapshot client.
func NewBookClient(host string, client *http.Client) *BookClient {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultClobURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &BookClient{host: host, httpClient: client}
}

type orderSummary struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBookSummary struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp string         `json:"timestamp"`
	Bids      []orderSummary `json:"bids"`
	Asks      []orderSummary `json:"asks"`
}

// OrderBook returns the current levels for tokenID.
func (c *BookClient) OrderBook(ctx context.Context, tokenID string) (signal.BookUpdate, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)
	endpoint := c.host + "/book?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return signal.BookUpdate{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return signal.BookUpdate{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return signal.BookUpdate{}, fmt.Errorf("clob book %s: status=%d body=%q", tokenID, resp.StatusCode, readBodyLimit(resp.Body, 4<<10))
	}

	var book orderBookSummary
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return signal.BookUpdate{}, fmt.Errorf("clob book decode: %w", err)
	}
	assetID := book.AssetID
	if assetID == "" {
		assetID = tokenID
	}
	return signal.BookUpdate{
		AssetID: assetID,
		Asks:    toLevels(book.Asks),
		Bids:    toLevels(book.Bids),
		Ts:      parseMillis(book.Timestamp),
	}, nil
}

// toLevels parses string levels, skipping any that do not parse.
func toLevels(in []orderSummary) []signal.Level {
	out := make([]signal.Level, 0, len(in))
	for _, lvl := range in {
		px, err := strconv.ParseFloat(strings.TrimSpace(lvl.Price), 64)
		if err != nil {
			continue
		}
		size, _ := strconv.ParseFloat(strings.TrimSpace(lvl.Size), 64)
		out = append(out, signal.Level{Price: px, Size: size})
	}
	return out
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
