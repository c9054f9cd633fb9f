package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/engine"
	"github.com/SudoMindfreak/QuantBox/internal/exchange"
	"github.com/SudoMindfreak/QuantBox/internal/paper"
	"github.com/SudoMindfreak/QuantBox/internal/polymarket"
	"github.com/SudoMindfreak/QuantBox/internal/risk"
	"github.com/SudoMindfreak/QuantBox/internal/store"
	"github.com/SudoMindfreak/QuantBox/internal/strategy"
	"github.com/SudoMindfreak/QuantBox/internal/telemetry"
)

// venue fakes the market metadata, order book, kline and trade-report endpoints plus both
// websocket streams on one server.
type venue struct {
	slug string
	end  time.Time

	mu      sync.Mutex
	reports []map[string]any
	subs    []string
}

func (v *venue) handler(t *testing.T) http.Handler {
	upgrader := websocket.Upgrader{}
	r := mux.NewRouter()
	r.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("slug") != v.slug {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		fmt.Fprintf(w, `[{"slug":%q,"markets":[{"slug":%q,"endDate":%q,
			"outcomes":"[\"Up\",\"Down\"]","outcomePrices":"[\"1\",\"0\"]","clobTokenIds":"[\"tok-up\",\"tok-down\"]"}]}]`,
			v.slug, v.slug, v.end.UTC().Format(time.RFC3339Nano))
	})
	r.HandleFunc("/book", func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Query().Get("token_id") {
		case "tok-up":
			_, _ = w.Write([]byte(`{"asset_id":"tok-up","bids":[{"price":"0.53","size":"100"}],"asks":[{"price":"0.55","size":"100"}]}`))
		case "tok-down":
			_, _ = w.Write([]byte(`{"asset_id":"tok-down","bids":[{"price":"0.44","size":"100"}],"asks":[{"price":"0.46","size":"100"}]}`))
		default:
			http.NotFound(w, req)
		}
	})
	r.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`[[0,"100.00","104.00","99.00","101.00","1",1,"0",1,"0","0","0"]]`))
	})
	r.HandleFunc("/simulations/{id}/trade", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Errorf("decode report: %v", err)
		}
		body["simulation"] = mux.Vars(req)["id"]
		v.mu.Lock()
		v.reports = append(v.reports, body)
		v.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}).Methods(http.MethodPost)
	r.HandleFunc("/ws/btcusdt@trade", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := fmt.Sprintf(`{"e":"trade","s":"BTCUSDT","p":"110.00","q":"0.5","T":%d,"m":false}`, time.Now().UnixMilli())
		_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	r.HandleFunc("/ws/market", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		v.mu.Lock()
		v.subs = append(v.subs, string(sub))
		v.mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"event_type":"book","asset_id":"tok-up","asks":[{"price":"0.55","size":"10"}],"bids":[{"price":"0.54","size":"10"}]}]`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	return r
}

func TestPaperRoundEndToEnd(t *testing.T) {
	ts := time.Now().Unix()
	v := &venue{slug: fmt.Sprintf("btc-updown-15m-%d", ts), end: time.Now().Add(1500 * time.Millisecond)}
	srv := httptest.NewServer(v.handler(t))
	defer srv.Close()
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")

	dir := t.TempDir()
	checkpoints, err := store.Open(filepath.Join(dir, "account"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer checkpoints.Close()
	fills, err := paper.NewJSONLRecorder(filepath.Join(dir, "fills.jsonl"))
	if err != nil {
		t.Fatalf("open fills: %v", err)
	}

	httpSink, err := telemetry.NewHTTPSink(srv.URL, "sim-1", srv.Client())
	if err != nil {
		t.Fatalf("http sink: %v", err)
	}
	var lines bytes.Buffer
	reporter := telemetry.NewReporter(zerolog.Nop(), 64, httpSink, telemetry.NewStreamSink(&lines))

	account := paper.NewAccount(1000)
	eng := engine.New(zerolog.Nop(), account,
		strategy.Build("strike_momentum", strategy.Params{BaseQty: 10, MaxChasePrice: 0.95}),
		risk.Limits{MaxRiskPerRound: 50, Cooldown: time.Hour},
		engine.WithReporter(reporter), engine.WithRecorder(fills))

	gamma, err := polymarket.NewGammaClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("gamma: %v", err)
	}
	klines := exchange.NewKlineClient(srv.URL, srv.Client())
	ctrl := engine.NewController(zerolog.Nop(), eng, engine.Deps{
		Resolver:  gamma,
		Strikes:   klines,
		Books:     polymarket.NewBookClient(srv.URL, srv.Client()),
		Reference: exchange.NewFeed(exchange.ProviderBinance, "BTCUSDT", zerolog.Nop(), exchange.WithWSURL(wsBase+"/ws"), exchange.WithReconnectDelay(50*time.Millisecond)),
		Stream:    polymarket.NewMarketStream(wsBase+"/ws/market", zerolog.Nop(), polymarket.StreamOptions{PingInterval: 100 * time.Millisecond, ReconnectDelay: 50 * time.Millisecond}),
		Threshold: strategy.NewThresholdPolicy("fixed", 3, klines, "BTCUSDT", 0.6, 2),
		Store:     checkpoints,
	}, engine.Settings{
		Symbol:          "BTCUSDT",
		ResolveAttempts: 1,
		ResolveInterval: 10 * time.Millisecond,
		SettleAttempts:  1,
		SettleInterval:  10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = ctrl.Run(ctx, v.slug)
	if !errors.Is(err, engine.ErrResolution) {
		t.Fatalf("expected the unlisted next round to fail resolution, got %v", err)
	}
	if err := reporter.Close(); err != nil {
		t.Fatalf("close reporter: %v", err)
	}
	if err := fills.Close(); err != nil {
		t.Fatalf("close fills: %v", err)
	}

	// strike 100, reference 110, threshold 3: one UP entry of 10 at 0.55, settled at 1.0
	if got := account.Cash(); got < 1004.499 || got > 1004.501 {
		t.Fatalf("unexpected cash %v", got)
	}
	cp, err := checkpoints.LoadAccount()
	if err != nil || cp.Cash != account.Cash() || cp.StartingCash != 1000 {
		t.Fatalf("unexpected checkpoint %+v %v", cp, err)
	}

	v.mu.Lock()
	reports := v.reports
	subs := v.subs
	v.mu.Unlock()
	if len(reports) != 2 {
		t.Fatalf("expected buy and settlement reports, got %+v", reports)
	}
	if reports[0]["side"] != "BUY" || reports[0]["assetId"] != "UP" || reports[0]["simulation"] != "sim-1" {
		t.Fatalf("unexpected buy report %+v", reports[0])
	}
	if reports[1]["side"] != telemetry.SideSettlement || reports[1]["pnl"].(float64) < 4.49 {
		t.Fatalf("unexpected settlement report %+v", reports[1])
	}
	if len(subs) == 0 || !strings.Contains(subs[0], `"assets_ids":["tok-up","tok-down"]`) {
		t.Fatalf("unexpected subscriptions %v", subs)
	}

	var kinds []string
	sc := bufio.NewScanner(&lines)
	for sc.Scan() {
		var line struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("bad stdout line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, line.Type)
	}
	if strings.Join(kinds, ",") != "trade,wallet,trade,wallet" {
		t.Fatalf("unexpected stream sequence %v", kinds)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "fills.jsonl"))
	if err != nil {
		t.Fatalf("read fills: %v", err)
	}
	if n := strings.Count(strings.TrimSpace(string(raw)), "\n") + 1; n != 2 {
		t.Fatalf("expected 2 history lines, got %d: %s", n, raw)
	}
}
