// Package market reduces raw order-book and trade messages into top-of-book quotes and a reference price.
package market

import (
	"math"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/metrics"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

// Aggregator holds the latest quote per outcome token and the reference price.
// It carries no lock of its own; the engine serializes access.
type Aggregator struct {
	quotes    map[string]signal.Quote
	reference float64
	refTs     time.Time
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{quotes: make(map[string]signal.Quote)}
}

// Apply reduces an update to best ask (min) and best bid (max). Updates missing either
// side are dropped and the previous quote is kept.
func (a *Aggregator) Apply(u signal.BookUpdate) (signal.Quote, bool) {
	if u.AssetID == "" {
		return signal.Quote{}, false
	}
	ask, okAsk := bestAsk(u.Asks)
	bid, okBid := bestBid(u.Bids)
	if !okAsk || !okBid {
		return signal.Quote{}, false
	}
	ts := u.Ts
	if ts.IsZero() {
		ts = time.Now()
	}
	q := signal.Quote{Bid: bid, Ask: ask, Ts: ts}
	a.quotes[u.AssetID] = q
	metrics.BookUpdatesTotal.WithLabelValues(u.AssetID).Inc()
	return q, true
}

// Quote returns the latest accepted quote for assetID.
func (a *Aggregator) Quote(assetID string) (signal.Quote, bool) {
	q, ok := a.quotes[assetID]
	return q, ok
}

// SetReference records the latest reference trade price. Non-positive prices are ignored.
func (a *Aggregator) SetReference(price float64, ts time.Time) bool {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return false
	}
	a.reference = price
	a.refTs = ts
	return true
}

// Reference returns the latest reference price, 0 before the first tick.
func (a *Aggregator) Reference() float64 { return a.reference }

// ReferenceTime returns when the reference price was last updated.
func (a *Aggregator) ReferenceTime() time.Time { return a.refTs }

// Bids returns the best bid per token, used to mark positions.
func (a *Aggregator) Bids() map[string]float64 {
	out := make(map[string]float64, len(a.quotes))
	for id, q := range a.quotes {
		out[id] = q.Bid
	}
	return out
}

// Reset forgets all quotes. The reference price is kept so settlement can fall back to it.
func (a *Aggregator) Reset() {
	a.quotes = make(map[string]signal.Quote)
}

func bestAsk(levels []signal.Level) (float64, bool) {
	best, ok := 0.0, false
	for _, lvl := range levels {
		if !validPrice(lvl.Price) {
			continue
		}
		if !ok || lvl.Price < best {
			best, ok = lvl.Price, true
		}
	}
	return best, ok
}

func bestBid(levels []signal.Level) (float64, bool) {
	best, ok := 0.0, false
	for _, lvl := range levels {
		if !validPrice(lvl.Price) {
			continue
		}
		if !ok || lvl.Price > best {
			best, ok = lvl.Price, true
		}
	}
	return best, ok
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
