// Package round models one cycle of a recurring up/down market.
package round

import "time"

// Phase is the lifecycle position of the active round.
type Phase int

const (
	Searching Phase = iota
	Active
	Freezing
	Settling
)

func (p Phase) String() string {
	switch p {
	case Searching:
		return "SEARCHING"
	case Active:
		return "ACTIVE"
	case Freezing:
		return "FREEZING"
	case Settling:
		return "SETTLING"
	}
	return "UNKNOWN"
}

// Instrument is one outcome token of the round.
type Instrument struct {
	ID    string
	Label string
}

// Round is the per-cycle strategy state. It is replaced, never reused, on rollover.
type Round struct {
	Slug          string
	Up            Instrument
	Down          Instrument
	Start         time.Time
	End           time.Time
	Cadence       time.Duration
	Strike        float64
	Threshold     float64
	Committed     float64
	Breaker       bool
	CooldownUntil time.Time
	Phase         Phase
}

// New creates a round in the SEARCHING phase. Start is derived as end minus cadence.
func New(slug string, up, down Instrument, end time.Time, cadence time.Duration) *Round {
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Round{
		Slug:    slug,
		Up:      up,
		Down:    down,
		Start:   end.Add(-cadence),
		End:     end,
		Cadence: cadence,
		Phase:   Searching,
	}
}

// AssetIDs lists both outcome tokens, up first.
func (r *Round) AssetIDs() []string {
	return []string{r.Up.ID, r.Down.ID}
}

// Label returns the display label for assetID, or the id itself when unknown.
func (r *Round) Label(assetID string) string {
	switch assetID {
	case r.Up.ID:
		return r.Up.Label
	case r.Down.ID:
		return r.Down.Label
	}
	return assetID
}

// Has reports whether assetID belongs to this round.
func (r *Round) Has(assetID string) bool {
	return assetID != "" && (assetID == r.Up.ID || assetID == r.Down.ID)
}

// CooldownActive reports whether entries are still rate-limited at now.
func (r *Round) CooldownActive(now time.Time) bool {
	return now.Before(r.CooldownUntil)
}

// FallbackWinner decides the round from the final reference price. Ties go to down.
func (r *Round) FallbackWinner(finalRef float64) string {
	if finalRef > r.Strike {
		return r.Up.ID
	}
	return r.Down.ID
}

// WinnerFromPrices picks the token whose reported settlement price is above 0.95.
// ids and prices are index aligned.
func WinnerFromPrices(ids []string, prices []float64) (string, bool) {
	for i, p := range prices {
		if i >= len(ids) {
			break
		}
		if p > 0.95 {
			return ids[i], true
		}
	}
	return "", false
}
