// Package telemetry delivers simulated trade and wallet events to external sinks.
package telemetry

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/metrics"
)

// SideSettlement marks a settlement closeout in a Trade.
const SideSettlement = "SETTLEMENT"

// Trade is one simulated fill or settlement.
type Trade struct {
	Round   string    `json:"round"`
	TokenID string    `json:"tokenId"`
	Outcome string    `json:"outcome"`
	Side    string    `json:"side"`
	Price   float64   `json:"price"`
	Size    float64   `json:"size"`
	PnL     *float64  `json:"pnl,omitempty"`
	Ts      time.Time `json:"timestamp"`
}

// PositionView is one open position inside a Wallet snapshot.
type PositionView struct {
	TokenID           string  `json:"tokenId"`
	Outcome           string  `json:"outcome"`
	Quantity          float64 `json:"quantity"`
	AverageEntryPrice float64 `json:"averageEntryPrice"`
	CurrentPrice      float64 `json:"currentPrice"`
	UnrealizedPnL     float64 `json:"unrealizedPnL"`
}

// Wallet is a point-in-time view of the simulated account.
type Wallet struct {
	Balance   float64        `json:"balance"`
	PnL       float64        `json:"pnl"`
	Positions []PositionView `json:"positions"`
	Ts        time.Time      `json:"timestamp"`
}

// Sink receives events. Implementations may block; the Reporter calls them off the trading path.
type Sink interface {
	Name() string
	SendTrade(ctx context.Context, t Trade) error
	SendWallet(ctx context.Context, w Wallet) error
}

type event struct {
	trade  *Trade
	wallet *Wallet
}

// Reporter fans events out to sinks from its own goroutine. Enqueueing never blocks:
// when the queue is full the event is dropped and counted.
type Reporter struct {
	log     zerolog.Logger
	sinks   []Sink
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	queue  chan event
	done   chan struct{}
}

// NewReporter starts a reporter with the given queue size.
func NewReporter(log zerolog.Logger, queueSize int, sinks ...Sink) *Reporter {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Reporter{
		log:     log.With().Str("component", "telemetry").Logger(),
		sinks:   sinks,
		timeout: 5 * time.Second,
		queue:   make(chan event, queueSize),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Trade enqueues a trade event.
func (r *Reporter) Trade(t Trade) { r.enqueue(event{trade: &t}) }

// Wallet enqueues a wallet snapshot.
func (r *Reporter) Wallet(w Wallet) { r.enqueue(event{wallet: &w}) }

func (r *Reporter) enqueue(ev event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.sinks) == 0 {
		return
	}
	select {
	case r.queue <- ev:
	default:
		metrics.TelemetryDropped.Inc()
		r.log.Warn().Msg("telemetry queue full, dropping event")
	}
}

func (r *Reporter) loop() {
	defer close(r.done)
	for ev := range r.queue {
		for _, sink := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			var err error
			if ev.trade != nil {
				err = sink.SendTrade(ctx, *ev.trade)
			} else if ev.wallet != nil {
				err = sink.SendWallet(ctx, *ev.wallet)
			}
			cancel()
			if err != nil {
				r.log.Warn().Err(err).Str("sink", sink.Name()).Msg("telemetry delivery failed")
			}
		}
	}
}

// Close drains queued events and closes every sink that implements io.Closer.
func (r *Reporter) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	var errs []error
	for _, sink := range r.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
