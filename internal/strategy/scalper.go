package strategy

import "github.com/SudoMindfreak/QuantBox/internal/execution"

// VolatilityScalper buys UP on a large positive deviation and dumps the whole UP
// inventory once the deviation decays.
type VolatilityScalper struct {
	entry float64
	exit  float64
	qty   float64
}

// NewVolatilityScalper builds a scalper; exit must sit below entry.
func NewVolatilityScalper(entryDiff, exitDiff, qty float64) *VolatilityScalper {
	if entryDiff <= 0 {
		entryDiff = 20
	}
	if exitDiff >= entryDiff {
		exitDiff = entryDiff / 4
	}
	if qty <= 0 {
		qty = 50
	}
	return &VolatilityScalper{entry: entryDiff, exit: exitDiff, qty: qty}
}

func (v *VolatilityScalper) Name() string { return "VolatilityScalper" }

func (v *VolatilityScalper) OnTick(s Snapshot) []Action {
	if s.Strike <= 0 || s.Reference <= 0 || !s.Up.HasQuote {
		return nil
	}
	diff := s.Diff()
	switch {
	case diff > v.entry && s.Up.Held <= 0 && s.Up.Quote.Ask > 0:
		return []Action{{Kind: ActionBuy, Outcome: Up, Qty: v.qty, Price: s.Up.Quote.Ask, Mode: execution.FOK, Reason: "scalp entry"}}
	case diff < v.exit && s.Up.Held > 0 && s.Up.Quote.Bid > 0:
		return []Action{{Kind: ActionSell, Outcome: Up, Qty: s.Up.Held, Price: s.Up.Quote.Bid, Mode: execution.FOK, Reason: "scalp exit"}}
	}
	return nil
}
