package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/round"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
)

// CandleSource returns OHLC history for the reference instrument.
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, start time.Time, limit int) ([]signal.Candle, error)
}

// ThresholdPolicy produces the deviation threshold for a round.
type ThresholdPolicy interface {
	// Compute returns the threshold for the round starting at roundStart.
	Compute(ctx context.Context, roundStart time.Time, cadence time.Duration) (float64, error)
	// Periodic reports whether the value should be recomputed during the round.
	Periodic() bool
}

// FixedThreshold always returns Value.
type FixedThreshold struct {
	Value float64
}

func (f FixedThreshold) Compute(context.Context, time.Time, time.Duration) (float64, error) {
	if f.Value <= 0 {
		return 0, fmt.Errorf("fixed threshold must be positive, got %v", f.Value)
	}
	return f.Value, nil
}

func (f FixedThreshold) Periodic() bool { return false }

// DynamicThreshold scales the range of the last closed candle before the round by K,
// never going below Floor.
type DynamicThreshold struct {
	Source CandleSource
	Symbol string
	K      float64
	Floor  float64
}

// VolatilityThreshold is max(k*(high-low), floor).
func VolatilityThreshold(high, low, k, floor float64) float64 {
	return math.Max(k*(high-low), floor)
}

func (d DynamicThreshold) Compute(ctx context.Context, roundStart time.Time, cadence time.Duration) (float64, error) {
	if d.Source == nil {
		return d.Floor, fmt.Errorf("dynamic threshold has no candle source")
	}
	if cadence <= 0 {
		cadence = round.DefaultCadence
	}
	candles, err := d.Source.Candles(ctx, d.Symbol, round.CandleInterval(cadence), roundStart.Add(-cadence), 1)
	if err != nil {
		return d.Floor, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		return d.Floor, fmt.Errorf("no closed candle before %s", roundStart.UTC().Format(time.RFC3339))
	}
	c := candles[0]
	if !c.CloseTime.IsZero() && c.CloseTime.After(roundStart) {
		return d.Floor, fmt.Errorf("candle closing %s is not closed before round start", c.CloseTime.UTC().Format(time.RFC3339))
	}
	return VolatilityThreshold(c.High, c.Low, d.K, d.Floor), nil
}

func (d DynamicThreshold) Periodic() bool { return true }

// NewThresholdPolicy maps a mode name to a policy.
func NewThresholdPolicy(mode string, fixed float64, src CandleSource, symbol string, k, floor float64) ThresholdPolicy {
	if mode == "fixed" {
		return FixedThreshold{Value: fixed}
	}
	return DynamicThreshold{Source: src, Symbol: symbol, K: k, Floor: floor}
}
