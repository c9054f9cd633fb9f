package strategy

import (
	"strings"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/execution"
	"github.com/SudoMindfreak/QuantBox/internal/round"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

// Outcome names one side of a binary round.
type Outcome string

const (
	Up   Outcome = "UP"
	Down Outcome = "DOWN"
)

// ActionKind enumerates what a strategy may ask the engine to do.
type ActionKind string

const (
	ActionBuy    ActionKind = "BUY"
	ActionSell   ActionKind = "SELL"
	ActionCancel ActionKind = "CANCEL"
)

// Action is one intended trade. Cancel uses only OrderID.
type Action struct {
	Kind    ActionKind
	Outcome Outcome
	Qty     float64
	Price   float64
	Mode    execution.Mode
	OrderID string
	Reason  string
}

// Leg is the view of one outcome token inside a Snapshot.
type Leg struct {
	ID       string
	Label    string
	Quote    signal.Quote
	HasQuote bool
	Held     float64
	Cost     float64
}

// Snapshot is an immutable copy of everything a strategy may look at.
type Snapshot struct {
	Now        time.Time
	Phase      round.Phase
	Slug       string
	Reference  float64
	Strike     float64
	Threshold  float64
	Up         Leg
	Down       Leg
	Cash       float64
	OpenOrders []execution.Order
}

// Diff is reference minus strike.
func (s Snapshot) Diff() float64 { return s.Reference - s.Strike }

// Leg returns the view for o.
func (s Snapshot) Leg(o Outcome) Leg {
	if o == Down {
		return s.Down
	}
	return s.Up
}

// HasOpenOrder reports whether a resting order exists for the token behind o.
func (s Snapshot) HasOpenOrder(o Outcome) bool {
	id := s.Leg(o).ID
	for _, order := range s.OpenOrders {
		if order.AssetID == id {
			return true
		}
	}
	return false
}

// Strategy defines behaviour shared by strategy implementations used by the engine.
// OnTick must not retain the snapshot's slices.
type Strategy interface {
	OnTick(s Snapshot) []Action
	Name() string
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	BaseQty        float64
	MaxChasePrice  float64
	ValueMaxAsk    float64
	ScalpEntryDiff float64
	ScalpExitDiff  float64
	ScalpQty       float64
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "value", "value_hunter":
		return NewValueHunter(params.ValueMaxAsk, params.BaseQty)
	case "scalper", "volatility_scalper":
		return NewVolatilityScalper(params.ScalpEntryDiff, params.ScalpExitDiff, params.ScalpQty)
	default:
		return NewStrikeMomentum(params.BaseQty, params.MaxChasePrice)
	}
}
