package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

const DefaultMarketWSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

// StreamOptions tunes the market channel connection.
type StreamOptions struct {
	PingInterval   time.Duration
	ReconnectDelay time.Duration
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.PingInterval <= 0 {
		o.PingInterval = 10 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	return o
}

// MarketStream subscribes to book updates on the CLOB market channel.
type MarketStream struct {
	url  string
	log  zerolog.Logger
	opts StreamOptions
}

// NewMarketStream builds a stream client for url (default production endpoint).
func NewMarketStream(url string, log zerolog.Logger, opts StreamOptions) *MarketStream {
	if url == "" {
		url = DefaultMarketWSURL
	}
	return &MarketStream{
		url:  url,
		log:  log.With().Str("component", "book_stream").Logger(),
		opts: opts.withDefaults(),
	}
}

type subscribeRequest struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

type bookMessage struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Timestamp string          `json:"timestamp"`
	Asks      *[]orderSummary `json:"asks"`
	Bids      *[]orderSummary `json:"bids"`
}

// Run streams updates for assetIDs until ctx is done, reconnecting after a fixed delay.
func (s *MarketStream) Run(ctx context.Context, assetIDs []string, out chan<- signal.BookUpdate) error {
	if len(assetIDs) == 0 {
		return fmt.Errorf("book stream requires asset ids")
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.session(ctx, assetIDs, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Dur("retry_in", s.opts.ReconnectDelay).Msg("book stream disconnected, retrying")
		select {
		case <-time.After(s.opts.ReconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *MarketStream) session(ctx context.Context, assetIDs []string, out chan<- signal.BookUpdate) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("book stream dial: %w", err)
	}
	defer conn.Close()

	sub, err := json.Marshal(subscribeRequest{AssetsIDs: assetIDs, Type: "market"})
	if err != nil {
		return fmt.Errorf("book stream subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("book stream subscribe write: %w", err)
	}
	s.log.Info().Strs("assets", assetIDs).Msg("subscribed to book stream")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var writeMu sync.Mutex
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go func() {
		t := time.NewTicker(s.opts.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("PING"))
				writeMu.Unlock()
				if werr != nil {
					s.log.Warn().Err(werr).Msg("book stream ping failed")
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("book stream read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		updates, err := DecodeBookMessages(msg)
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping book stream message")
			continue
		}
		for _, u := range updates {
			select {
			case out <- u:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// DecodeBookMessages turns one frame (a single object or an array) into book updates.
// Keepalive replies and items without book levels yield nothing.
func DecodeBookMessages(msg []byte) ([]signal.BookUpdate, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.EqualFold(msg, []byte("PONG")) || bytes.EqualFold(msg, []byte("PING")) {
		return nil, nil
	}

	var items []bookMessage
	switch msg[0] {
	case '[':
		if err := json.Unmarshal(msg, &items); err != nil {
			return nil, fmt.Errorf("decode book array: %w", err)
		}
	case '{':
		var item bookMessage
		if err := json.Unmarshal(msg, &item); err != nil {
			return nil, fmt.Errorf("decode book object: %w", err)
		}
		items = []bookMessage{item}
	default:
		return nil, fmt.Errorf("unexpected frame %q", truncate(msg, 32))
	}

	out := make([]signal.BookUpdate, 0, len(items))
	for _, item := range items {
		if item.AssetID == "" || item.Asks == nil {
			continue
		}
		u := signal.BookUpdate{AssetID: item.AssetID, Asks: toLevels(*item.Asks), Ts: parseMillis(item.Timestamp)}
		if item.Bids != nil {
			u.Bids = toLevels(*item.Bids)
		}
		out = append(out, u)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
