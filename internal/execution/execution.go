// Package execution simulates order matching against the latest top of book.
package execution

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SudoMindfreak/QuantBox/internal/metrics"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy takes the ask.
	Buy Side = "BUY"
	// Sell hits the bid.
	Sell Side = "SELL"
)

// Mode selects how an order interacts with the book.
type Mode string

const (
	// FOK fills completely against the current quote or is discarded.
	FOK Mode = "FOK"
	// GTC rests until a later quote satisfies it or it is cancelled.
	GTC Mode = "GTC"
)

// Order is a simulated order after price/qty sanitizing.
type Order struct {
	ID      string    `json:"id"`
	AssetID string    `json:"assetId"`
	Side    Side      `json:"side"`
	Qty     float64   `json:"qty"`
	Price   float64   `json:"price"`
	Mode    Mode      `json:"mode"`
	Created time.Time `json:"created"`
}

// Fill reports a fully executed simulated order. Price is always the order's limit.
type Fill struct {
	OrderID string
	AssetID string
	Side    Side
	Qty     float64
	Price   float64
	Mode    Mode
	Ts      time.Time
}

// Notional is price times quantity.
func (f Fill) Notional() float64 { return f.Price * f.Qty }

// QuoteSource exposes the most recent top of book per outcome token.
type QuoteSource interface {
	Quote(assetID string) (signal.Quote, bool)
}

// FillHandler receives fills synchronously, on the caller's goroutine.
type FillHandler func(Fill)

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides time.Now for fill timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor matches simulated orders. It is not safe for concurrent use; callers serialize access.
type Executor struct {
	log    zerolog.Logger
	quotes QuoteSource
	onFill FillHandler
	now    func() time.Time
	open   map[string]Order
	seq    []string
}

// NewExecutor builds an executor reading quotes from quotes and reporting fills to onFill.
func NewExecutor(log zerolog.Logger, quotes QuoteSource, onFill FillHandler, opts ...Option) *Executor {
	e := &Executor{
		log:    log,
		quotes: quotes,
		onFill: onFill,
		now:    time.Now,
		open:   make(map[string]Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sanitize truncates v to two decimals.
func Sanitize(v float64) float64 {
	return decimal.NewFromFloat(v).Truncate(2).InexactFloat64()
}

// Place submits an order. It returns the order id and true when a FOK order filled or a GTC
// order was accepted for resting; an unfillable order is a normal outcome, not an error.
func (e *Executor) Place(assetID string, side Side, price, qty float64, mode Mode) (string, bool) {
	price, qty = Sanitize(price), Sanitize(qty)
	if assetID == "" || price <= 0 || qty <= 0 || (side != Buy && side != Sell) {
		e.log.Info().Str("asset", assetID).Str("side", string(side)).Float64("px", price).Float64("qty", qty).Msg("order rejected: invalid parameters")
		metrics.OrdersTotal.WithLabelValues(string(side), string(mode), "rejected").Inc()
		return "", false
	}
	order := Order{
		ID:      uuid.NewString(),
		AssetID: assetID,
		Side:    side,
		Qty:     qty,
		Price:   price,
		Mode:    mode,
		Created: e.now(),
	}

	switch mode {
	case GTC:
		e.open[order.ID] = order
		e.seq = append(e.seq, order.ID)
		metrics.OrdersTotal.WithLabelValues(string(side), string(mode), "resting").Inc()
		e.log.Info().Str("id", order.ID).Str("asset", assetID).Str("side", string(side)).Float64("px", price).Float64("qty", qty).Msg("resting order placed")
		return order.ID, true
	case FOK:
		q, ok := e.quotes.Quote(assetID)
		if !ok || !crosses(side, price, q) {
			metrics.OrdersTotal.WithLabelValues(string(side), string(mode), "killed").Inc()
			e.log.Info().Str("asset", assetID).Str("side", string(side)).Float64("px", price).Float64("bid", q.Bid).Float64("ask", q.Ask).Msg("fok not filled")
			return "", false
		}
		e.fill(order)
		return order.ID, true
	default:
		metrics.OrdersTotal.WithLabelValues(string(side), string(mode), "rejected").Inc()
		e.log.Info().Str("mode", string(mode)).Msg("order rejected: unknown mode")
		return "", false
	}
}

// OnQuote re-checks resting orders for assetID against q, in placement order.
func (e *Executor) OnQuote(assetID string, q signal.Quote) []Fill {
	if len(e.seq) == 0 {
		return nil
	}
	var fills []Fill
	kept := e.seq[:0]
	for _, id := range e.seq {
		order, ok := e.open[id]
		if !ok {
			continue
		}
		if order.AssetID != assetID || !crosses(order.Side, order.Price, q) {
			kept = append(kept, id)
			continue
		}
		delete(e.open, id)
		fills = append(fills, e.fill(order))
	}
	e.seq = kept
	return fills
}

// Cancel removes a resting order without filling it.
func (e *Executor) Cancel(id string) bool {
	if _, ok := e.open[id]; !ok {
		return false
	}
	delete(e.open, id)
	for i, existing := range e.seq {
		if existing == id {
			e.seq = append(e.seq[:i], e.seq[i+1:]...)
			break
		}
	}
	metrics.OrdersTotal.WithLabelValues("", string(GTC), "cancelled").Inc()
	e.log.Info().Str("id", id).Msg("resting order cancelled")
	return true
}

// CancelSide removes every resting order on side and returns how many were dropped.
func (e *Executor) CancelSide(side Side) int {
	kept := e.seq[:0]
	n := 0
	for _, id := range e.seq {
		order, ok := e.open[id]
		if !ok {
			continue
		}
		if order.Side != side {
			kept = append(kept, id)
			continue
		}
		delete(e.open, id)
		n++
		metrics.OrdersTotal.WithLabelValues(string(side), string(GTC), "cancelled").Inc()
	}
	e.seq = kept
	if n > 0 {
		e.log.Info().Str("side", string(side)).Int("count", n).Msg("resting orders cancelled")
	}
	return n
}

// OpenOrders lists resting orders in placement order.
func (e *Executor) OpenOrders() []Order {
	out := make([]Order, 0, len(e.seq))
	for _, id := range e.seq {
		if order, ok := e.open[id]; ok {
			out = append(out, order)
		}
	}
	return out
}

// Reset drops every resting order.
func (e *Executor) Reset() {
	e.open = make(map[string]Order)
	e.seq = nil
}

func (e *Executor) fill(order Order) Fill {
	f := Fill{
		OrderID: order.ID,
		AssetID: order.AssetID,
		Side:    order.Side,
		Qty:     order.Qty,
		Price:   order.Price,
		Mode:    order.Mode,
		Ts:      e.now(),
	}
	metrics.OrdersTotal.WithLabelValues(string(order.Side), string(order.Mode), "filled").Inc()
	e.log.Info().Str("id", order.ID).Str("asset", order.AssetID).Str("side", string(order.Side)).Float64("px", order.Price).Float64("qty", order.Qty).Msg("simulated fill")
	if e.onFill != nil {
		e.onFill(f)
	}
	return f
}

func crosses(side Side, limit float64, q signal.Quote) bool {
	switch side {
	case Buy:
		return q.Ask > 0 && q.Ask <= limit
	case Sell:
		return q.Bid > 0 && q.Bid >= limit
	}
	return false
}
