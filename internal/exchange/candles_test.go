package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestKlineClientCandles(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[[1765299600000,"97000.10","97100.00","96900.50","97050.00","12.5",1765300499999,"0",1,"0","0","0"]]`))
	}))
	defer server.Close()

	client := NewKlineClient(server.URL, nil)
	start := time.UnixMilli(1765299600000)
	candles, err := client.Candles(context.Background(), "btcusdt", "15m", start, 1)
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if gotQuery != "interval=15m&limit=1&startTime=1765299600000&symbol=BTCUSDT" {
		t.Fatalf("unexpected query %s", gotQuery)
	}
	if len(candles) != 1 {
		t.Fatalf("expected one candle, got %d", len(candles))
	}
	c := candles[0]
	if c.Open != 97000.10 || c.High != 97100 || c.Low != 96900.50 || c.Close != 97050 || c.Volume != 12.5 {
		t.Fatalf("unexpected candle %+v", c)
	}
	if !c.OpenTime.Equal(start) || c.CloseTime.UnixMilli() != 1765300499999 {
		t.Fatalf("unexpected candle times %+v", c)
	}

	open, err := client.Open(context.Background(), "BTCUSDT", "15m", start)
	if err != nil || open != 97000.10 {
		t.Fatalf("Open = %v, %v", open, err)
	}
}

func TestKlineClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "EMPTY":
			_, _ = w.Write([]byte(`[]`))
		case "SHORT":
			_, _ = w.Write([]byte(`[[1,"2"]]`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer server.Close()

	client := NewKlineClient(server.URL, nil)
	ctx := context.Background()
	if _, err := client.Candles(ctx, "BTCUSDT", "15m", time.Time{}, 2); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := client.Candles(ctx, "SHORT", "15m", time.Time{}, 2); err == nil {
		t.Fatalf("expected short row error")
	}
	if _, err := client.Open(ctx, "EMPTY", "15m", time.Now()); err == nil {
		t.Fatalf("expected error for missing candle")
	}
}
