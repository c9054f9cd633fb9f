package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type recordingSink struct {
	mu      sync.Mutex
	trades  []Trade
	wallets []Wallet
	closed  bool
	fail    bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) SendTrade(_ context.Context, t Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func (s *recordingSink) SendWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = append(s.wallets, w)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestReporterDeliversInOrderAndDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	failing := &recordingSink{fail: true}
	r := NewReporter(zerolog.Nop(), 16, failing, sink)

	r.Trade(Trade{TokenID: "a", Side: "BUY"})
	r.Wallet(Wallet{Balance: 10})
	r.Trade(Trade{TokenID: "b", Side: SideSettlement})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(sink.trades) != 2 || sink.trades[0].TokenID != "a" || sink.trades[1].TokenID != "b" {
		t.Fatalf("unexpected trades %+v", sink.trades)
	}
	if len(sink.wallets) != 1 || sink.wallets[0].Balance != 10 {
		t.Fatalf("unexpected wallets %+v", sink.wallets)
	}
	if len(failing.trades) != 2 {
		t.Fatalf("failing sink should still receive every event, got %d", len(failing.trades))
	}
	if !sink.closed || !failing.closed {
		t.Fatalf("sinks should be closed")
	}

	// events after close are ignored
	r.Trade(Trade{TokenID: "c"})
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestReporterNilSafe(t *testing.T) {
	var r *Reporter
	r.Trade(Trade{})
	r.Wallet(Wallet{})
}

func TestHTTPSinkPostsTradeReport(t *testing.T) {
	var gotPath string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(srv.URL+"/", "sim-1", srv.Client())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	pnl := 4.5
	if err := sink.SendTrade(context.Background(), Trade{TokenID: "tok", Outcome: "UP", Side: SideSettlement, Price: 1, Size: 10, PnL: &pnl}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/simulations/sim-1/trade" {
		t.Fatalf("path %s", gotPath)
	}
	if got["assetId"] != "UP" || got["side"] != SideSettlement || got["pnl"].(float64) != 4.5 || got["size"].(float64) != 10 {
		t.Fatalf("unexpected body %+v", got)
	}

	if err := sink.SendWallet(context.Background(), Wallet{}); err != nil {
		t.Fatalf("wallet should be a no-op: %v", err)
	}
}

func TestHTTPSinkReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink, err := NewHTTPSink(srv.URL, "sim", nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.SendTrade(context.Background(), Trade{}); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
	if _, err := NewHTTPSink("", "sim", nil); err == nil {
		t.Fatalf("expected error for missing url")
	}
}

func TestStreamSinkWritesTaggedLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewStreamSink(&buf)
	_ = sink.SendTrade(context.Background(), Trade{TokenID: "x", Side: "BUY"})
	_ = sink.SendWallet(context.Background(), Wallet{Balance: 5})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	var first, second struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first.Type != "trade" {
		t.Fatalf("first line %q err %v", lines[0], err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil || second.Type != "wallet" {
		t.Fatalf("second line %q err %v", lines[1], err)
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkKeysByRound(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "events"}

	if err := sink.SendTrade(context.Background(), Trade{Round: "btc-updown-15m-1", Side: "BUY"}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if err := sink.SendWallet(context.Background(), Wallet{Balance: 1}); err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "btc-updown-15m-1" || string(w.msgs[1].Key) != "wallet" {
		t.Fatalf("unexpected keys %q %q", w.msgs[0].Key, w.msgs[1].Key)
	}
	if !strings.Contains(string(w.msgs[0].Value), `"type":"trade"`) {
		t.Fatalf("unexpected value %s", w.msgs[0].Value)
	}
	if err := sink.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v", err)
	}

	if _, err := NewKafkaSink(nil, "t"); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

type fakeRedis struct {
	sets      map[string]string
	published map[string][]string
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.sets[key] = string(value.([]byte))
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisSinkStoresWalletAndPublishes(t *testing.T) {
	client := &fakeRedis{sets: map[string]string{}, published: map[string][]string{}}
	sink := newRedisSink(client, "")

	if err := sink.SendWallet(context.Background(), Wallet{Balance: 42}); err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if err := sink.SendTrade(context.Background(), Trade{TokenID: "t"}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if !strings.Contains(client.sets["quantbox:wallet"], `"balance":42`) {
		t.Fatalf("wallet not stored: %+v", client.sets)
	}
	if len(client.published["quantbox:wallet"]) != 1 || len(client.published["quantbox:trades"]) != 1 {
		t.Fatalf("unexpected publishes %+v", client.published)
	}
}

var _ io.Closer = (*KafkaSink)(nil)
