// Package risk holds the per-round entry guards: the circuit breaker cap and the cooldown.
package risk

import (
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/round"
)

// Verdict explains why an evaluation may or may not proceed.
type Verdict string

const (
	Proceed        Verdict = ""
	NotActive      Verdict = "phase not active"
	RoundEnded     Verdict = "round end reached"
	NoStrike       Verdict = "strike unknown"
	NoQuotes       Verdict = "asks unknown"
	CoolingDown    Verdict = "cooldown active"
	BreakerTripped Verdict = "circuit breaker tripped"
	BreakerHeld    Verdict = "circuit breaker engaged"
)

// Limits bounds how much notional a round may commit and how often entries may happen.
type Limits struct {
	MaxRiskPerRound float64
	Cooldown        time.Duration
}

// Allow reports whether committed notional is still under the per-round cap.
func (l Limits) Allow(committed float64) bool {
	return committed < l.MaxRiskPerRound
}

// Gate decides whether the evaluator may act on r at now. Reaching the cap sets the
// round's breaker; BreakerTripped is returned only on that transition.
func (l Limits) Gate(r *round.Round, asksKnown bool, now time.Time) Verdict {
	switch {
	case r == nil || r.Phase != round.Active:
		return NotActive
	case !now.Before(r.End):
		return RoundEnded
	case r.Breaker:
		return BreakerHeld
	case r.Strike <= 0:
		return NoStrike
	case !asksKnown:
		return NoQuotes
	case r.CooldownActive(now):
		return CoolingDown
	case !l.Allow(r.Committed):
		r.Breaker = true
		return BreakerTripped
	}
	return Proceed
}

// Arm starts the cooldown after a fill.
func (l Limits) Arm(r *round.Round, now time.Time) {
	r.CooldownUntil = now.Add(l.Cooldown)
}
