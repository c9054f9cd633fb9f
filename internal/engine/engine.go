// Package engine runs the simulated trading loop: a locked state core fed by the
// reference and book streams, and a controller that walks rounds through their phases.
package engine

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/execution"
	"github.com/SudoMindfreak/QuantBox/internal/market"
	"github.com/SudoMindfreak/QuantBox/internal/metrics"
	"github.com/SudoMindfreak/QuantBox/internal/paper"
	"github.com/SudoMindfreak/QuantBox/internal/risk"
	"github.com/SudoMindfreak/QuantBox/internal/round"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
	"github.com/SudoMindfreak/QuantBox/internal/strategy"
	"github.com/SudoMindfreak/QuantBox/internal/telemetry"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides time.Now for evaluation, cooldowns and fill timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithReporter sends trades and wallet snapshots to r.
func WithReporter(r *telemetry.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithRecorder mirrors round history to rec.
func WithRecorder(rec paper.Recorder) Option {
	return func(e *Engine) { e.history = paper.NewHistory(64, rec) }
}

// WithStatusInterval sets how often the status line is logged while a round is active.
func WithStatusInterval(d time.Duration) Option {
	return func(e *Engine) { e.statusEvery = d }
}

// Engine owns every piece of mutable trading state. All methods are safe for concurrent use;
// they serialize on one mutex so quotes, round state and the ledger always move together.
type Engine struct {
	mu sync.Mutex

	log      zerolog.Logger
	now      func() time.Time
	agg      *market.Aggregator
	exec     *execution.Executor
	account  *paper.Account
	history  *paper.History
	reporter *telemetry.Reporter
	strat    strategy.Strategy
	limits   risk.Limits

	round       *round.Round
	statusEvery time.Duration
	lastStatus  time.Time
}

// New builds an engine around account and strat.
func New(log zerolog.Logger, account *paper.Account, strat strategy.Strategy, limits risk.Limits, opts ...Option) *Engine {
	e := &Engine{
		log:         log.With().Str("component", "engine").Logger(),
		now:         time.Now,
		agg:         market.NewAggregator(),
		account:     account,
		history:     paper.NewHistory(64, nil),
		strat:       strat,
		limits:      limits,
		statusEvery: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.exec = execution.NewExecutor(log.With().Str("component", "execution").Logger(), e.agg, e.handleFill, execution.WithClock(e.now))
	metrics.CashBalance.Set(account.Cash())
	metrics.RealizedPnL.Set(account.RealizedPnL())
	return e
}

// Begin installs r as the active round. Quotes, resting orders, positions and history from
// the previous round are dropped; cash, realized PnL and the reference price are kept.
func (e *Engine) Begin(r *round.Round) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agg.Reset()
	e.exec.Reset()
	e.account.ResetRound()
	e.history.Reset()
	r.Phase = round.Active
	e.round = r
	e.lastStatus = time.Time{}
	metrics.RoundPhase.Set(float64(round.Active))
	e.log.Info().
		Str("slug", r.Slug).
		Float64("strike", r.Strike).
		Float64("threshold", r.Threshold).
		Time("end", r.End).
		Str("strategy", e.strat.Name()).
		Msg("round active")
}

// SetPhase moves the active round to p.
func (e *Engine) SetPhase(p round.Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return
	}
	e.round.Phase = p
	metrics.RoundPhase.Set(float64(p))
	e.log.Info().Str("slug", e.round.Slug).Str("phase", p.String()).Msg("phase change")
}

// SetThreshold replaces the threshold if slug is still the active round.
func (e *Engine) SetThreshold(slug string, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil || e.round.Slug != slug || v <= 0 {
		return
	}
	if v != e.round.Threshold {
		e.log.Debug().Float64("old", e.round.Threshold).Float64("new", v).Msg("threshold refreshed")
	}
	e.round.Threshold = v
}

// Round returns a copy of the active round and whether one exists.
func (e *Engine) Round() (round.Round, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return round.Round{}, false
	}
	return *e.round, true
}

// Reference returns the last accepted reference price.
func (e *Engine) Reference() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agg.Reference()
}

// Account exposes the ledger for checkpointing.
func (e *Engine) Account() *paper.Account { return e.account }

// History returns a copy of the active round's entries.
func (e *Engine) History() []paper.Entry { return e.history.Snapshot() }

// OnTick records a reference trade and re-evaluates.
func (e *Engine) OnTick(tk signal.Tick) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.agg.SetReference(tk.Price, tk.Ts) {
		return
	}
	now := e.now()
	e.evaluate(now)
	e.logStatus(now)
}

// OnBook folds a book update into the quotes, matches resting orders and re-evaluates.
func (e *Engine) OnBook(u signal.BookUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil || !e.round.Has(u.AssetID) {
		return
	}
	q, ok := e.agg.Apply(u)
	if !ok {
		return
	}
	now := e.now()
	if e.round.Phase == round.Active && now.Before(e.round.End) {
		e.exec.OnQuote(u.AssetID, q)
		if e.round.Breaker {
			e.exec.CancelSide(execution.Buy)
		}
	}
	e.evaluate(now)
}

// Settle closes every position of the active round against winnerID.
func (e *Engine) Settle(winnerID string) []paper.Settlement {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil {
		return nil
	}
	r := e.round
	e.exec.Reset()
	settled := e.account.Settle(winnerID)
	now := e.now()
	for _, s := range settled {
		pnl := s.PnL
		e.history.Record(paper.Entry{
			Kind:    paper.EntrySettlement,
			Round:   r.Slug,
			AssetID: s.AssetID,
			Label:   r.Label(s.AssetID),
			Side:    telemetry.SideSettlement,
			Price:   s.FinalPrice,
			Qty:     s.Qty,
			PnL:     &pnl,
			Ts:      now,
		})
		e.reporter.Trade(telemetry.Trade{
			Round:   r.Slug,
			TokenID: s.AssetID,
			Outcome: r.Label(s.AssetID),
			Side:    telemetry.SideSettlement,
			Price:   s.FinalPrice,
			Size:    s.Qty,
			PnL:     &pnl,
			Ts:      now,
		})
		e.log.Info().Str("asset", r.Label(s.AssetID)).Float64("qty", s.Qty).Float64("final", s.FinalPrice).Float64("pnl", s.PnL).Msg("position settled")
	}
	metrics.SettlementsTotal.Inc()
	e.reporter.Wallet(e.wallet(now))
	e.updateGauges()
	e.log.Info().
		Str("slug", r.Slug).
		Str("winner", r.Label(winnerID)).
		Float64("cash", e.account.Cash()).
		Float64("realized", e.account.RealizedPnL()).
		Msg("round settled")
	return settled
}

func (e *Engine) asksKnown() bool {
	up, okUp := e.agg.Quote(e.round.Up.ID)
	down, okDown := e.agg.Quote(e.round.Down.ID)
	return okUp && okDown && up.Ask > 0 && down.Ask > 0
}

// evaluate runs the strategy if the risk gate allows it. Caller holds mu.
func (e *Engine) evaluate(now time.Time) {
	r := e.round
	if r == nil {
		return
	}
	switch e.limits.Gate(r, e.asksKnown(), now) {
	case risk.Proceed:
	case risk.BreakerTripped:
		e.tripBreaker(r)
		e.exec.CancelSide(execution.Buy)
		return
	default:
		return
	}

	snap := e.snapshot(now)
	for _, a := range e.strat.OnTick(snap) {
		e.apply(a)
	}
	if r.Breaker {
		e.exec.CancelSide(execution.Buy)
	}
}

// tripBreaker logs the transition. Resting buys are dropped by the caller once matching is done.
func (e *Engine) tripBreaker(r *round.Round) {
	e.log.Warn().Str("slug", r.Slug).Float64("committed", r.Committed).Float64("cap", e.limits.MaxRiskPerRound).Msg("circuit breaker tripped, no more entries this round")
}

func (e *Engine) snapshot(now time.Time) strategy.Snapshot {
	r := e.round
	leg := func(in round.Instrument) strategy.Leg {
		q, ok := e.agg.Quote(in.ID)
		pos := e.account.Position(in.ID)
		return strategy.Leg{ID: in.ID, Label: in.Label, Quote: q, HasQuote: ok, Held: pos.Qty, Cost: pos.Cost}
	}
	return strategy.Snapshot{
		Now:        now,
		Phase:      r.Phase,
		Slug:       r.Slug,
		Reference:  e.agg.Reference(),
		Strike:     r.Strike,
		Threshold:  r.Threshold,
		Up:         leg(r.Up),
		Down:       leg(r.Down),
		Cash:       e.account.Cash(),
		OpenOrders: e.exec.OpenOrders(),
	}
}

func (e *Engine) apply(a strategy.Action) {
	r := e.round
	assetID := r.Up.ID
	if a.Outcome == strategy.Down {
		assetID = r.Down.ID
	}
	switch a.Kind {
	case strategy.ActionCancel:
		e.exec.Cancel(a.OrderID)
	case strategy.ActionBuy:
		e.exec.Place(assetID, execution.Buy, a.Price, a.Qty, a.Mode)
	case strategy.ActionSell:
		if held := e.account.Position(assetID).Qty; a.Qty > held {
			e.log.Info().Str("asset", r.Label(assetID)).Float64("qty", a.Qty).Float64("held", held).Msg("sell rejected: exceeds held quantity")
			return
		}
		e.exec.Place(assetID, execution.Sell, a.Price, a.Qty, a.Mode)
	default:
		e.log.Warn().Str("kind", string(a.Kind)).Msg("unknown strategy action")
	}
}

// handleFill is the executor's fill callback; it always runs under mu.
func (e *Engine) handleFill(f execution.Fill) {
	r := e.round
	if r == nil {
		return
	}
	now := e.now()
	if f.Side == execution.Buy {
		if r.Breaker || !e.limits.Allow(r.Committed) {
			if !r.Breaker {
				r.Breaker = true
				e.tripBreaker(r)
			}
			e.log.Info().Str("asset", r.Label(f.AssetID)).Str("order", f.OrderID).Float64("notional", f.Notional()).Msg("fill rejected: circuit breaker")
			return
		}
		e.limits.Arm(r, now)
	}
	res, err := e.account.ApplyFill(f)
	if err != nil {
		if errors.Is(err, paper.ErrInsufficientCash) {
			e.log.Info().Str("asset", r.Label(f.AssetID)).Float64("notional", f.Notional()).Float64("cash", e.account.Cash()).Msg("fill rejected: insufficient cash")
		} else {
			e.log.Warn().Err(err).Str("order", f.OrderID).Msg("fill rejected")
		}
		return
	}
	if f.Side == execution.Buy {
		r.Committed += res.Notional
	}

	var pnl *float64
	if f.Side == execution.Sell {
		realized := res.Realized
		pnl = &realized
	}
	e.history.Record(paper.Entry{
		Kind:    paper.EntryFill,
		Round:   r.Slug,
		OrderID: f.OrderID,
		AssetID: f.AssetID,
		Label:   r.Label(f.AssetID),
		Side:    string(f.Side),
		Price:   f.Price,
		Qty:     f.Qty,
		PnL:     pnl,
		Ts:      f.Ts,
	})
	e.reporter.Trade(telemetry.Trade{
		Round:   r.Slug,
		TokenID: f.AssetID,
		Outcome: r.Label(f.AssetID),
		Side:    string(f.Side),
		Price:   f.Price,
		Size:    f.Qty,
		PnL:     pnl,
		Ts:      f.Ts,
	})
	e.reporter.Wallet(e.wallet(now))
	e.updateGauges()
}

func (e *Engine) wallet(now time.Time) telemetry.Wallet {
	snap := e.account.Snapshot(e.agg.Bids())
	w := telemetry.Wallet{
		Balance: snap.Cash,
		PnL:     snap.RealizedPnL,
		Ts:      now,
	}
	for id, p := range snap.Positions {
		label := id
		if e.round != nil {
			label = e.round.Label(id)
		}
		w.Positions = append(w.Positions, telemetry.PositionView{
			TokenID:           id,
			Outcome:           label,
			Quantity:          p.Qty,
			AverageEntryPrice: p.AvgCost,
			CurrentPrice:      p.Mark,
			UnrealizedPnL:     p.Unrealized,
		})
	}
	sort.Slice(w.Positions, func(i, j int) bool { return w.Positions[i].TokenID < w.Positions[j].TokenID })
	return w
}

func (e *Engine) updateGauges() {
	metrics.CashBalance.Set(e.account.Cash())
	metrics.RealizedPnL.Set(e.account.RealizedPnL())
}

func (e *Engine) logStatus(now time.Time) {
	r := e.round
	if r == nil || r.Phase != round.Active || e.statusEvery <= 0 || now.Sub(e.lastStatus) < e.statusEvery {
		return
	}
	e.lastStatus = now
	ref := e.agg.Reference()
	e.log.Info().
		Float64("ref", ref).
		Float64("strike", r.Strike).
		Float64("diff", ref-r.Strike).
		Float64("threshold", r.Threshold).
		Float64("committed", r.Committed).
		Msg("status")
}
