package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SudoMindfreak/QuantBox/internal/metrics"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

type binanceTrade struct {
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Tick) error {
	if f.symbol == "" {
		return fmt.Errorf("binance feed requires a symbol")
	}
	url := fmt.Sprintf("%s/%s@trade", f.wsURL, strings.ToLower(f.symbol))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Dur("retry_in", f.reconnectDelay).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(f.reconnectDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- signal.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Str("symbol", f.symbol).Msg("connected reference feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	// unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		tick, err := decodeBinanceTrade(message, f.symbol)
		if err != nil {
			f.log.Debug().Err(err).Msg("dropping binance message")
			continue
		}

		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func decodeBinanceTrade(message []byte, fallbackSymbol string) (signal.Tick, error) {
	var trade binanceTrade
	if err := json.Unmarshal(message, &trade); err != nil {
		return signal.Tick{}, fmt.Errorf("decode trade: %w", err)
	}
	px, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil || px <= 0 {
		return signal.Tick{}, fmt.Errorf("invalid price %q", trade.Price)
	}
	qty, _ := strconv.ParseFloat(trade.Quantity, 64)
	side := 1
	if trade.IsBuyerMaker {
		side = -1
	}
	symbol := strings.ToUpper(trade.Symbol)
	if symbol == "" {
		symbol = fallbackSymbol
	}
	ts := time.Now()
	if trade.TradeTime > 0 {
		ts = time.UnixMilli(trade.TradeTime)
	}
	return signal.Tick{Symbol: symbol, Price: px, Size: qty, Side: side, Ts: ts}, nil
}
