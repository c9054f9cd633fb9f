package engine

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/execution"
	"github.com/SudoMindfreak/QuantBox/internal/paper"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

// Status is the JSON document served on /status.
type Status struct {
	Strategy      string                  `json:"strategy"`
	Slug          string                  `json:"slug,omitempty"`
	Phase         string                  `json:"phase"`
	Start         time.Time               `json:"start,omitempty"`
	End           time.Time               `json:"end,omitempty"`
	Reference     float64                 `json:"reference"`
	Strike        float64                 `json:"strike"`
	Diff          float64                 `json:"diff"`
	Threshold     float64                 `json:"threshold"`
	Committed     float64                 `json:"committed"`
	Breaker       bool                    `json:"breaker"`
	CooldownUntil time.Time               `json:"cooldownUntil,omitempty"`
	Quotes        map[string]signal.Quote `json:"quotes"`
	OpenOrders    []execution.Order       `json:"openOrders"`
	Account       paper.Snapshot          `json:"account"`
	History       []paper.Entry           `json:"history"`
}

// Status captures the current engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Strategy:   e.strat.Name(),
		Phase:      "SEARCHING",
		Reference:  e.agg.Reference(),
		Quotes:     map[string]signal.Quote{},
		OpenOrders: e.exec.OpenOrders(),
		Account:    e.account.Snapshot(e.agg.Bids()),
		History:    e.history.Snapshot(),
	}
	if r := e.round; r != nil {
		st.Slug = r.Slug
		st.Phase = r.Phase.String()
		st.Start, st.End = r.Start, r.End
		st.Strike = r.Strike
		st.Threshold = r.Threshold
		st.Committed = r.Committed
		st.Breaker = r.Breaker
		st.CooldownUntil = r.CooldownUntil
		if r.Strike > 0 && st.Reference > 0 {
			st.Diff = st.Reference - r.Strike
		}
		for _, in := range []struct{ id, label string }{{r.Up.ID, r.Up.Label}, {r.Down.ID, r.Down.Label}} {
			if q, ok := e.agg.Quote(in.id); ok {
				st.Quotes[in.label] = q
			}
		}
	}
	return st
}

// ServeHTTP writes Status as JSON.
func (e *Engine) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(e.Status())
}
