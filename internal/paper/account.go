package paper

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/SudoMindfreak/QuantBox/internal/execution"
)

// ErrInsufficientCash rejects a buy whose notional exceeds available cash.
var ErrInsufficientCash = errors.New("insufficient cash for buy")

const epsilon = 1e-9

// Position is the held share count and total notional paid for one outcome token.
type Position struct {
	Qty  float64
	Cost float64
}

// AvgCost returns Cost/Qty, or 0 when nothing is held.
func (p Position) AvgCost() float64 {
	if p.Qty <= 0 {
		return 0
	}
	return p.Cost / p.Qty
}

// FillResult describes how a fill changed the account.
type FillResult struct {
	Notional float64
	Realized float64
}

// Settlement is the closeout of one position at round expiry.
type Settlement struct {
	AssetID    string  `json:"assetId"`
	Qty        float64 `json:"qty"`
	FinalPrice float64 `json:"finalPrice"`
	PnL        float64 `json:"pnl"`
}

// Account tracks virtual cash, realized PnL, and per-token positions using average cost.
// Cash and realized PnL survive rounds; positions do not.
type Account struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	positions    map[string]Position
}

// PositionSnapshot exposes a read-only view of a single position.
type PositionSnapshot struct {
	Qty         float64
	Cost        float64
	AvgCost     float64
	Mark        float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// Checkpoint is the part of the account that outlives a process.
type Checkpoint struct {
	StartingCash float64 `json:"startingCash"`
	Cash         float64 `json:"cash"`
	RealizedPnL  float64 `json:"realizedPnl"`
}

// NewAccount constructs an account populated with starting cash.
func NewAccount(startingCash float64) *Account {
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]Position),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash }

// ApplyFill books a simulated fill. A buy the account cannot afford returns ErrInsufficientCash
// and leaves every balance untouched.
func (a *Account) ApplyFill(f execution.Fill) (FillResult, error) {
	if f.Qty <= 0 {
		return FillResult{}, errors.New("quantity must be positive")
	}
	if f.Price <= 0 {
		return FillResult{}, errors.New("price must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pos := a.positions[f.AssetID]
	notional := f.Notional()

	switch f.Side {
	case execution.Buy:
		if a.cash < notional {
			return FillResult{}, ErrInsufficientCash
		}
		a.cash -= notional
		pos.Qty += f.Qty
		pos.Cost += notional
		a.positions[f.AssetID] = pos
		return FillResult{Notional: notional}, nil

	case execution.Sell:
		avg := pos.AvgCost()
		realized := notional - avg*f.Qty
		a.cash += notional
		a.realizedPnL += realized
		pos.Qty -= f.Qty
		pos.Cost -= avg * f.Qty
		if pos.Qty <= epsilon {
			pos.Cost = 0
		}
		if pos.Qty > -epsilon && pos.Qty < epsilon {
			delete(a.positions, f.AssetID)
		} else {
			a.positions[f.AssetID] = pos
		}
		return FillResult{Notional: notional, Realized: realized}, nil

	default:
		return FillResult{}, fmt.Errorf("unknown order side %q", f.Side)
	}
}

// Settle closes every open position: the winner pays 1.0 per share, everything else 0.
func (a *Account) Settle(winnerID string) []Settlement {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]string, 0, len(a.positions))
	for id, pos := range a.positions {
		if pos.Qty != 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]Settlement, 0, len(ids))
	for _, id := range ids {
		pos := a.positions[id]
		final := 0.0
		if id == winnerID {
			final = 1.0
		}
		pnl := pos.Qty*final - pos.Cost
		a.cash += pos.Qty * final
		a.realizedPnL += pnl
		out = append(out, Settlement{AssetID: id, Qty: pos.Qty, FinalPrice: final, PnL: pnl})
	}
	a.positions = make(map[string]Position)
	return out
}

// ResetRound discards round-scoped position state. Cash and realized PnL are kept.
func (a *Account) ResetRound() {
	a.mu.Lock()
	a.positions = make(map[string]Position)
	a.mu.Unlock()
}

// Snapshot returns a copy of balances marked using the supplied prices map. A position
// without a mark is valued at zero.
func (a *Account) Snapshot(marks map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for id, pos := range a.positions {
		mark := marks[id]
		avg := pos.AvgCost()
		// an unquoted token is marked at zero
		marketValue := pos.Qty * mark
		unrealized := (mark - avg) * pos.Qty
		positions[id] = PositionSnapshot{
			Qty:         pos.Qty,
			Cost:        pos.Cost,
			AvgCost:     avg,
			Mark:        mark,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// Checkpoint captures cash and realized PnL.
func (a *Account) Checkpoint() Checkpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Checkpoint{StartingCash: a.startingCash, Cash: a.cash, RealizedPnL: a.realizedPnL}
}

// Restore loads a checkpoint into an account that holds no positions.
func (a *Account) Restore(cp Checkpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.positions) != 0 {
		return errors.New("cannot restore over open positions")
	}
	if cp.StartingCash > 0 {
		a.startingCash = cp.StartingCash
	}
	a.cash = cp.Cash
	a.realizedPnL = cp.RealizedPnL
	return nil
}

// Cash reports the current cash balance.
func (a *Account) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the position for the supplied token.
func (a *Account) Position(assetID string) Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[assetID]
}

// RealizedPnL returns total closed-trade profit and loss, settlements included.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}
