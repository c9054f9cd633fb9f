package strategy

import "github.com/SudoMindfreak/QuantBox/internal/execution"

// StrikeMomentum buys the side the reference price has moved toward once the move
// from strike exceeds the threshold, provided that side is still cheap enough.
type StrikeMomentum struct {
	qty      float64
	maxChase float64
}

// NewStrikeMomentum builds the strike deviation strategy.
func NewStrikeMomentum(baseQty, maxChasePrice float64) *StrikeMomentum {
	if baseQty <= 0 {
		baseQty = 10
	}
	if maxChasePrice <= 0 || maxChasePrice > 1 {
		maxChasePrice = 0.95
	}
	return &StrikeMomentum{qty: baseQty, maxChase: maxChasePrice}
}

// Name returns the configured identifier for logging.
func (m *StrikeMomentum) Name() string { return "StrikeMomentum" }

// OnTick emits at most one FOK buy at the current ask.
func (m *StrikeMomentum) OnTick(s Snapshot) []Action {
	if s.Threshold <= 0 || s.Strike <= 0 || s.Reference <= 0 {
		return nil
	}
	diff := s.Diff()
	var target Outcome
	switch {
	case diff > s.Threshold:
		target = Up
	case diff < -s.Threshold:
		target = Down
	default:
		return nil
	}
	leg := s.Leg(target)
	if !leg.HasQuote || leg.Quote.Ask <= 0 || leg.Quote.Ask >= m.maxChase {
		return nil
	}
	return []Action{{
		Kind:    ActionBuy,
		Outcome: target,
		Qty:     m.qty,
		Price:   leg.Quote.Ask,
		Mode:    execution.FOK,
		Reason:  "strike deviation",
	}}
}
