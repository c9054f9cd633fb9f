package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/paper"
	"github.com/SudoMindfreak/QuantBox/internal/polymarket"
	"github.com/SudoMindfreak/QuantBox/internal/round"
	"github.com/SudoMindfreak/QuantBox/internal/signal"
	"github.com/SudoMindfreak/QuantBox/internal/strategy"
)

// ErrResolution means a round could not be resolved within the retry budget. It is the
// only error that stops the controller.
var ErrResolution = errors.New("market resolution failed")

// MarketResolver turns a slug into round metadata.
type MarketResolver interface {
	ResolveMarket(ctx context.Context, slug string) (polymarket.Market, error)
}

// StrikeSource returns the open of the reference candle that starts at start.
type StrikeSource interface {
	Open(ctx context.Context, symbol, interval string, start time.Time) (float64, error)
}

// BookSource returns a one-shot book snapshot for warm-up.
type BookSource interface {
	OrderBook(ctx context.Context, tokenID string) (signal.BookUpdate, error)
}

// ReferenceStream pushes reference trades until ctx ends.
type ReferenceStream interface {
	Run(ctx context.Context, out chan<- signal.Tick) error
}

// BookStream pushes book updates for assetIDs until ctx ends.
type BookStream interface {
	Run(ctx context.Context, assetIDs []string, out chan<- signal.BookUpdate) error
}

// Checkpointer persists the account after each settlement.
type Checkpointer interface {
	SaveAccount(cp paper.Checkpoint) error
}

// Deps groups the controller's collaborators. Store is optional.
type Deps struct {
	Resolver  MarketResolver
	Strikes   StrikeSource
	Books     BookSource
	Reference ReferenceStream
	Stream    BookStream
	Threshold strategy.ThresholdPolicy
	Store     Checkpointer
}

// Settings are the controller's timing knobs.
type Settings struct {
	Symbol           string
	ResolveAttempts  int
	ResolveInterval  time.Duration
	SettleAttempts   int
	SettleInterval   time.Duration
	ThresholdRefresh time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.ResolveAttempts <= 0 {
		s.ResolveAttempts = 12
	}
	if s.ResolveInterval <= 0 {
		s.ResolveInterval = 10 * time.Second
	}
	if s.SettleAttempts <= 0 {
		s.SettleAttempts = 12
	}
	if s.SettleInterval <= 0 {
		s.SettleInterval = 10 * time.Second
	}
	if s.ThresholdRefresh <= 0 {
		s.ThresholdRefresh = time.Minute
	}
	return s
}

// Controller walks rounds through SEARCHING, ACTIVE, FREEZING and SETTLING.
type Controller struct {
	log      zerolog.Logger
	eng      *Engine
	deps     Deps
	settings Settings
	now      func() time.Time
}

// NewController wires eng to its collaborators.
func NewController(log zerolog.Logger, eng *Engine, deps Deps, settings Settings) *Controller {
	return &Controller{
		log:      log.With().Str("component", "controller").Logger(),
		eng:      eng,
		deps:     deps,
		settings: settings.withDefaults(),
		now:      eng.now,
	}
}

// Run trades slug and every round after it until ctx ends. It returns nil on cancellation
// and an error wrapping ErrResolution when a round cannot be resolved.
func (c *Controller) Run(ctx context.Context, slug string) error {
	r, err := c.resolve(ctx, slug)
	for {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.runRound(ctx, r); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		next, nerr := round.NextSlug(r.Slug, c.now())
		if nerr != nil {
			return fmt.Errorf("%w: %s: %v", ErrResolution, r.Slug, nerr)
		}
		c.log.Info().Str("from", r.Slug).Str("to", next).Msg("rolling over")
		r, err = c.resolve(ctx, next)
	}
}

// resolve fetches metadata and the strike for slug, retrying within the configured budget.
func (c *Controller) resolve(ctx context.Context, slug string) (*round.Round, error) {
	var lastErr error
	for attempt := 1; attempt <= c.settings.ResolveAttempts; attempt++ {
		r, err := c.resolveOnce(ctx, slug)
		if err == nil {
			return r, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Str("slug", slug).Int("attempt", attempt).Int("max", c.settings.ResolveAttempts).Msg("resolve failed")
		if attempt < c.settings.ResolveAttempts {
			if err := sleep(ctx, c.settings.ResolveInterval); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrResolution, slug, c.settings.ResolveAttempts, lastErr)
}

func (c *Controller) resolveOnce(ctx context.Context, slug string) (*round.Round, error) {
	m, err := c.deps.Resolver.ResolveMarket(ctx, slug)
	if err != nil {
		return nil, err
	}
	up, down, err := m.Instruments()
	if err != nil {
		return nil, err
	}
	if m.End.IsZero() {
		return nil, fmt.Errorf("market %s has no end time", slug)
	}
	r := round.New(slug, up, down, m.End, round.Cadence(slug))

	if wait := r.Start.Sub(c.now()); wait > 0 {
		c.log.Info().Str("slug", slug).Dur("wait", wait).Msg("waiting for round start")
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	strike, err := c.deps.Strikes.Open(ctx, c.settings.Symbol, round.CandleInterval(r.Cadence), r.Start)
	if err != nil {
		return nil, fmt.Errorf("fetch strike: %w", err)
	}
	if strike <= 0 {
		return nil, fmt.Errorf("fetch strike: non-positive open %v", strike)
	}
	r.Strike = strike
	return r, nil
}

// runRound streams and trades r until its end time, then settles it.
func (c *Controller) runRound(ctx context.Context, r *round.Round) error {
	threshold, err := c.deps.Threshold.Compute(ctx, r.Start, r.Cadence)
	if err != nil {
		c.log.Warn().Err(err).Float64("threshold", threshold).Msg("threshold fallback")
	}
	r.Threshold = threshold

	c.eng.Begin(r)
	c.warmUp(ctx, r)

	roundCtx, cancel := context.WithDeadline(ctx, r.End)
	defer cancel()

	ticks := make(chan signal.Tick, 1024)
	books := make(chan signal.BookUpdate, 1024)
	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := c.deps.Reference.Run(roundCtx, ticks); err != nil && roundCtx.Err() == nil {
			c.log.Error().Err(err).Msg("reference stream stopped")
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.deps.Stream.Run(roundCtx, r.AssetIDs(), books); err != nil && roundCtx.Err() == nil {
			c.log.Error().Err(err).Msg("book stream stopped")
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-roundCtx.Done():
				return
			case tk := <-ticks:
				if roundCtx.Err() != nil {
					return
				}
				c.eng.OnTick(tk)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-roundCtx.Done():
				return
			case u := <-books:
				if roundCtx.Err() != nil {
					return
				}
				c.eng.OnBook(u)
			}
		}
	}()
	if c.deps.Threshold.Periodic() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.refreshThreshold(roundCtx, r)
		}()
	}

	<-roundCtx.Done()
	c.eng.SetPhase(round.Freezing)
	cancel()
	wg.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.eng.SetPhase(round.Settling)
	winner := c.winner(ctx, r)
	c.eng.Settle(winner)
	if c.deps.Store != nil {
		if err := c.deps.Store.SaveAccount(c.eng.Account().Checkpoint()); err != nil {
			c.log.Warn().Err(err).Msg("save account checkpoint")
		}
	}
	c.eng.SetPhase(round.Searching)
	return nil
}

// warmUp seeds quotes from REST snapshots so trading can start before the first stream update.
func (c *Controller) warmUp(ctx context.Context, r *round.Round) {
	if c.deps.Books == nil {
		return
	}
	for _, id := range r.AssetIDs() {
		u, err := c.deps.Books.OrderBook(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("asset", r.Label(id)).Msg("book warm-up failed")
			continue
		}
		u.AssetID = id
		c.eng.OnBook(u)
	}
}

func (c *Controller) refreshThreshold(ctx context.Context, r *round.Round) {
	ticker := time.NewTicker(c.settings.ThresholdRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, err := c.deps.Threshold.Compute(ctx, r.Start, r.Cadence)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("threshold refresh failed")
				}
				continue
			}
			c.eng.SetThreshold(r.Slug, v)
		}
	}
}

// winner polls for reported settlement prices and falls back to the final reference price.
func (c *Controller) winner(ctx context.Context, r *round.Round) string {
	for attempt := 1; attempt <= c.settings.SettleAttempts; attempt++ {
		m, err := c.deps.Resolver.ResolveMarket(ctx, r.Slug)
		if err == nil {
			if id, ok := round.WinnerFromPrices(m.TokenIDs, m.OutcomePrices); ok && r.Has(id) {
				c.log.Info().Str("winner", r.Label(id)).Int("attempt", attempt).Msg("settlement prices reported")
				return id
			}
		} else {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("settlement poll failed")
		}
		if attempt < c.settings.SettleAttempts {
			if sleep(ctx, c.settings.SettleInterval) != nil {
				break
			}
		}
	}
	ref := c.eng.Reference()
	id := r.FallbackWinner(ref)
	c.log.Info().Float64("ref", ref).Float64("strike", r.Strike).Str("winner", r.Label(id)).Msg("settling on reference fallback")
	return id
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
