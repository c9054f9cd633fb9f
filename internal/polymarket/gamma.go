// Package polymarket talks to the binary market venue: market metadata, book snapshots, and the book stream.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/round"
)

const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
	DefaultUserAgent = "Mozilla/5.0"
)

// Market is the resolved metadata of one binary market.
type Market struct {
	Slug          string
	Question      string
	TokenIDs      []string
	Outcomes      []string
	OutcomePrices []float64
	End           time.Time
	Closed        bool
}

// Instruments maps outcome names to the up and down tokens. "Up"/"Yes" is up, "Down"/"No" is down.
func (m Market) Instruments() (up, down round.Instrument, err error) {
	if len(m.TokenIDs) != len(m.Outcomes) {
		return up, down, fmt.Errorf("market %q: %d tokens for %d outcomes", m.Slug, len(m.TokenIDs), len(m.Outcomes))
	}
	for i, name := range m.Outcomes {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "up", "yes":
			if up.ID == "" {
				up = round.Instrument{ID: m.TokenIDs[i], Label: strings.ToUpper(name)}
			}
		case "down", "no":
			if down.ID == "" {
				down = round.Instrument{ID: m.TokenIDs[i], Label: strings.ToUpper(name)}
			}
		}
	}
	if up.ID == "" || down.ID == "" {
		return up, down, fmt.Errorf("market %q: cannot map outcomes %v to up/down", m.Slug, m.Outcomes)
	}
	return up, down, nil
}

// GammaClient resolves market slugs through the Gamma events API.
type GammaClient struct {
	host       string
	httpClient *http.Client
	userAgent  string
}

// NewGammaClient validates host and builds a client.
func NewGammaClient(host string, client *http.Client) (*GammaClient, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultGammaURL
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("gamma url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("gamma url must be http(s), got %q", host)
	}
	if client == nil {
		client = &http.Client{Timeout: 12 * time.Second}
	}
	return &GammaClient{host: host, httpClient: client, userAgent: DefaultUserAgent}, nil
}

// stringList decodes either a JSON array or a string holding a JSON array.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		b = []byte(raw)
	}
	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}

type gammaEvent struct {
	Slug    string        `json:"slug"`
	EndDate string        `json:"endDate"`
	Markets []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	Slug          string     `json:"slug"`
	Question      string     `json:"question"`
	EndDate       string     `json:"endDate"`
	Closed        bool       `json:"closed"`
	Outcomes      stringList `json:"outcomes"`
	OutcomePrices stringList `json:"outcomePrices"`
	ClobTokenIDs  stringList `json:"clobTokenIds"`
}

// ResolveMarket fetches the event for slug and returns its matching (or first) market.
func (c *GammaClient) ResolveMarket(ctx context.Context, slug string) (Market, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Market{}, fmt.Errorf("event slug required")
	}
	q := url.Values{}
	q.Set("slug", slug)
	endpoint := c.host + "/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Market{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Market{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return Market{}, fmt.Errorf("gamma %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	var events []gammaEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return Market{}, fmt.Errorf("gamma decode: %w", err)
	}
	if len(events) == 0 {
		return Market{}, fmt.Errorf("gamma: no event for slug %q", slug)
	}

	var chosen *gammaMarket
	ev := &events[0]
	for i := range events {
		for j := range events[i].Markets {
			if strings.TrimSpace(events[i].Markets[j].Slug) == slug {
				ev, chosen = &events[i], &events[i].Markets[j]
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		if len(ev.Markets) == 0 {
			return Market{}, fmt.Errorf("gamma: event %q has no markets", slug)
		}
		chosen = &ev.Markets[0]
	}
	return toMarket(slug, ev, chosen)
}

func toMarket(slug string, ev *gammaEvent, m *gammaMarket) (Market, error) {
	ids := make([]string, 0, len(m.ClobTokenIDs))
	for _, id := range m.ClobTokenIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) != 2 {
		return Market{}, fmt.Errorf("gamma: expected 2 clobTokenIds for %q, got %d", slug, len(ids))
	}

	endRaw := m.EndDate
	if endRaw == "" {
		endRaw = ev.EndDate
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return Market{}, fmt.Errorf("gamma: endDate %q for %q: %w", endRaw, slug, err)
	}

	var prices []float64
	for _, p := range m.OutcomePrices {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			prices = nil
			break
		}
		prices = append(prices, v)
	}

	return Market{
		Slug:          slug,
		Question:      m.Question,
		TokenIDs:      ids,
		Outcomes:      append([]string(nil), m.Outcomes...),
		OutcomePrices: prices,
		End:           end,
		Closed:        m.Closed,
	}, nil
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	lr := &io.LimitedReader{R: r, N: max}
	b, _ := io.ReadAll(lr)
	return strings.TrimSpace(string(b))
}
