package strategy

import "github.com/SudoMindfreak/QuantBox/internal/execution"

// ValueHunter rests a cheap bid on the side the reference price currently favours and
// pulls it when the reference crosses back through strike.
type ValueHunter struct {
	maxAsk float64
	qty    float64
}

// NewValueHunter builds a value hunter bidding at most maxAsk.
func NewValueHunter(maxAsk, qty float64) *ValueHunter {
	if maxAsk <= 0 || maxAsk >= 1 {
		maxAsk = 0.10
	}
	if qty <= 0 {
		qty = 10
	}
	return &ValueHunter{maxAsk: maxAsk, qty: qty}
}

func (v *ValueHunter) Name() string { return "ValueHunter" }

func (v *ValueHunter) OnTick(s Snapshot) []Action {
	if s.Strike <= 0 || s.Reference <= 0 || s.Reference == s.Strike {
		return nil
	}
	favoured, other := Up, Down
	if s.Reference < s.Strike {
		favoured, other = Down, Up
	}

	var actions []Action
	otherID := s.Leg(other).ID
	for _, order := range s.OpenOrders {
		if order.AssetID == otherID && order.Side == execution.Buy {
			actions = append(actions, Action{Kind: ActionCancel, Outcome: other, OrderID: order.ID, Reason: "reference crossed strike"})
		}
	}

	leg := s.Leg(favoured)
	if leg.Held > 0 || s.HasOpenOrder(favoured) {
		return actions
	}
	return append(actions, Action{
		Kind:    ActionBuy,
		Outcome: favoured,
		Qty:     v.qty,
		Price:   v.maxAsk,
		Mode:    execution.GTC,
		Reason:  "value bid",
	})
}
