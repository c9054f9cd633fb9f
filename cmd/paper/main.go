package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/SudoMindfreak/QuantBox/internal/config"
	"github.com/SudoMindfreak/QuantBox/internal/engine"
	"github.com/SudoMindfreak/QuantBox/internal/exchange"
	"github.com/SudoMindfreak/QuantBox/internal/metrics"
	"github.com/SudoMindfreak/QuantBox/internal/paper"
	"github.com/SudoMindfreak/QuantBox/internal/polymarket"
	"github.com/SudoMindfreak/QuantBox/internal/risk"
	"github.com/SudoMindfreak/QuantBox/internal/round"
	"github.com/SudoMindfreak/QuantBox/internal/store"
	"github.com/SudoMindfreak/QuantBox/internal/strategy"
	"github.com/SudoMindfreak/QuantBox/internal/telemetry"
	"github.com/SudoMindfreak/QuantBox/internal/util"
)

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

func main() {
	cfgPath := flag.String("config", "internal/config/config.yaml", "path to YAML config (empty for defaults + env)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot := util.NewLogger("info", "json")
		boot.Fatal().Err(err).Str("path", *cfgPath).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	slug := cfg.Market.Slug
	if slug == "" {
		slug = round.SlugFromURL(cfg.Market.InitialURL)
	}
	if slug == "" {
		log.Fatal().Str("url", cfg.Market.InitialURL).Msg("no market slug configured")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	account := paper.NewAccount(cfg.Paper.StartingCash)
	var checkpoints *store.PebbleStore
	if cfg.Paper.CheckpointPath != "" {
		checkpoints, err = store.Open(cfg.Paper.CheckpointPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open checkpoint store")
		}
		defer checkpoints.Close()
		cp, err := checkpoints.LoadAccount()
		switch {
		case err == nil:
			if err := account.Restore(cp); err != nil {
				log.Fatal().Err(err).Msg("restore account")
			}
			log.Info().Float64("cash", cp.Cash).Float64("realized", cp.RealizedPnL).Msg("account restored")
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Warn().Err(err).Msg("load account checkpoint")
		}
	}

	var recorder paper.Recorder
	if cfg.Paper.FillsPath != "" {
		jsonl, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fills file")
		}
		defer jsonl.Close()
		recorder = jsonl
	}

	reporter := telemetry.NewReporter(log, cfg.Telemetry.QueueSize, buildSinks(ctx, cfg, log)...)
	defer reporter.Close()

	strat := strategy.Build(cfg.Strategy.Mode, strategy.Params{
		BaseQty:        cfg.Paper.BaseQty,
		MaxChasePrice:  cfg.Risk.MaxChasePrice,
		ValueMaxAsk:    cfg.Strategy.Params.ValueMaxAsk,
		ScalpEntryDiff: cfg.Strategy.Params.ScalpEntryDiff,
		ScalpExitDiff:  cfg.Strategy.Params.ScalpExitDiff,
		ScalpQty:       cfg.Strategy.Params.ScalpQty,
	})
	limits := risk.Limits{MaxRiskPerRound: cfg.Risk.MaxRiskPerRound, Cooldown: secs(cfg.Risk.CooldownSecs)}

	opts := []engine.Option{
		engine.WithReporter(reporter),
		engine.WithStatusInterval(secs(cfg.App.StatusIntervalSecs)),
	}
	if recorder != nil {
		opts = append(opts, engine.WithRecorder(recorder))
	}
	eng := engine.New(log, account, strat, limits, opts...)

	srv := metrics.Serve(cfg.App.MetricsAddr, eng)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	gamma, err := polymarket.NewGammaClient(cfg.Market.GammaURL, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("gamma client")
	}
	klines := exchange.NewKlineClient(cfg.Reference.RESTURL, httpClient)
	feed := exchange.NewFeed(cfg.Reference.Provider, cfg.Reference.Symbol, log,
		exchange.WithWSURL(cfg.Reference.WSURL),
		exchange.WithReconnectDelay(secs(cfg.Market.ReconnectDelaySecs)),
	)
	stream := polymarket.NewMarketStream(cfg.Market.WSURL, log, polymarket.StreamOptions{
		PingInterval:   secs(cfg.Market.PingIntervalSecs),
		ReconnectDelay: secs(cfg.Market.ReconnectDelaySecs),
	})
	params := cfg.Strategy.Params
	threshold := strategy.NewThresholdPolicy(params.ThresholdMode, params.Threshold, klines, cfg.Reference.Symbol, params.VolatilityK, params.MinDiffLimit)

	deps := engine.Deps{
		Resolver:  gamma,
		Strikes:   klines,
		Books:     polymarket.NewBookClient(cfg.Market.ClobURL, httpClient),
		Reference: feed,
		Stream:    stream,
		Threshold: threshold,
	}
	if checkpoints != nil {
		deps.Store = checkpoints
	}
	ctrl := engine.NewController(log, eng, deps, engine.Settings{
		Symbol:           cfg.Reference.Symbol,
		ResolveAttempts:  cfg.Market.ResolveAttempts,
		ResolveInterval:  secs(cfg.Market.ResolveIntervalSecs),
		SettleAttempts:   cfg.Market.SettleAttempts,
		SettleInterval:   secs(cfg.Market.SettleIntervalSecs),
		ThresholdRefresh: secs(params.ThresholdRefreshSecs),
	})

	log.Info().
		Str("slug", slug).
		Str("strategy", strat.Name()).
		Str("threshold_mode", params.ThresholdMode).
		Float64("cash", account.Cash()).
		Msg("paper engine started")
	if err := ctrl.Run(ctx, slug); err != nil {
		// deferred cleanup does not run after Fatal
		_ = reporter.Close()
		log.Fatal().Err(err).Msg("stopping")
	}
	log.Info().Msg("shutting down")
}

func buildSinks(ctx context.Context, cfg *config.Config, log zerolog.Logger) []telemetry.Sink {
	var sinks []telemetry.Sink
	tc := cfg.Telemetry
	if tc.APIURL != "" && tc.SimulationID != "" {
		sink, err := telemetry.NewHTTPSink(tc.APIURL, tc.SimulationID, nil)
		if err != nil {
			log.Warn().Err(err).Msg("http telemetry disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if tc.Stdout {
		sinks = append(sinks, telemetry.NewStreamSink(os.Stdout))
	}
	if len(tc.Kafka.Brokers) > 0 {
		sink, err := telemetry.NewKafkaSink(tc.Kafka.Brokers, tc.Kafka.Topic)
		if err != nil {
			log.Warn().Err(err).Msg("kafka telemetry disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if tc.Redis.Addr != "" {
		sink, err := telemetry.NewRedisSink(ctx, tc.Redis.Addr, tc.Redis.Password, tc.Redis.DB, tc.Redis.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("redis telemetry disabled")
		} else {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
