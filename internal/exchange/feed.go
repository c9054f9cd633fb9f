// Package exchange hosts connectors for the reference spot venue.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/metrics"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

const (
	// ProviderStub emits deterministic synthetic ticks (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"
)

const (
	defaultBinanceWSURL   = "wss://stream.binance.com:9443/ws"
	defaultReconnectDelay = 5 * time.Second
	defaultStubInterval   = 500 * time.Millisecond
)

// Feed streams reference trades for a single symbol.
type Feed struct {
	provider       string
	symbol         string
	log            zerolog.Logger
	wsURL          string
	reconnectDelay time.Duration
	stubInterval   time.Duration
	stubStart      float64
	stubStep       float64
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithWSURL overrides the websocket base URL, e.g. for a test server.
func WithWSURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.wsURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithReconnectDelay sets the fixed wait between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.reconnectDelay = d
		}
	}
}

// WithStubWalk configures the synthetic price walk of the stub provider.
func WithStubWalk(start, step float64, interval time.Duration) Option {
	return func(f *Feed) {
		if start > 0 {
			f.stubStart = start
		}
		f.stubStep = step
		if interval > 0 {
			f.stubInterval = interval
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider, symbol string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:       strings.ToLower(provider),
		symbol:         strings.ToUpper(strings.TrimSpace(symbol)),
		log:            log.With().Str("component", "reference_feed").Logger(),
		wsURL:          defaultBinanceWSURL,
		reconnectDelay: defaultReconnectDelay,
		stubInterval:   defaultStubInterval,
		stubStart:      100.0,
		stubStep:       0.1,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Symbol returns the tracked instrument.
func (f *Feed) Symbol() string { return f.symbol }

// Run pushes ticks onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Tick) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Tick) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	px := f.stubStart
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			px += f.stubStep
			tick := signal.Tick{Symbol: f.symbol, Price: px, Size: 1, Side: 1, Ts: ts}
			select {
			case out <- tick:
				metrics.TicksTotal.WithLabelValues(f.symbol).Inc()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
