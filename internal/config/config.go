// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name               string `yaml:"name" default:"quantbox"`
	Env                string `yaml:"env" default:"dev"`
	MetricsAddr        string `yaml:"metrics_addr" default:":9102"`
	LogLevel           string `yaml:"log_level" default:"info"`
	LogFormat          string `yaml:"log_format" default:"json" validate:"oneof=json console"`
	StatusIntervalSecs int    `yaml:"status_interval_secs" default:"10" validate:"gt=0"`
}

// Market points the simulator at the binary market venue and tunes its retry budgets.
type Market struct {
	Slug                string `yaml:"slug" validate:"required_without=InitialURL"`
	InitialURL          string `yaml:"initial_url"`
	GammaURL            string `yaml:"gamma_url" default:"https://gamma-api.polymarket.com" validate:"url"`
	ClobURL             string `yaml:"clob_url" default:"https://clob.polymarket.com" validate:"url"`
	WSURL               string `yaml:"ws_url" default:"wss://ws-subscriptions-clob.polymarket.com/ws/market" validate:"url"`
	ResolveAttempts     int    `yaml:"resolve_attempts" default:"12" validate:"gt=0"`
	ResolveIntervalSecs int    `yaml:"resolve_interval_secs" default:"10" validate:"gte=0"`
	SettleAttempts      int    `yaml:"settle_attempts" default:"12" validate:"gt=0"`
	SettleIntervalSecs  int    `yaml:"settle_interval_secs" default:"10" validate:"gte=0"`
	PingIntervalSecs    int    `yaml:"ping_interval_secs" default:"10" validate:"gt=0"`
	ReconnectDelaySecs  int    `yaml:"reconnect_delay_secs" default:"5" validate:"gt=0"`
}

// Reference describes the spot instrument the strike and signal are measured against.
type Reference struct {
	Provider string `yaml:"provider" default:"binance" validate:"oneof=binance stub"`
	Symbol   string `yaml:"symbol" default:"BTCUSDT" validate:"required"`
	RESTURL  string `yaml:"rest_url" default:"https://api.binance.com" validate:"url"`
	WSURL    string `yaml:"ws_url" default:"wss://stream.binance.com:9443/ws" validate:"url"`
}

// Risk encodes guard-rails for how much size the simulator may take on per round.
type Risk struct {
	MaxRiskPerRound   float64 `yaml:"max_risk_per_round" default:"50" validate:"gt=0"`
	CooldownSecs      int     `yaml:"cooldown_secs" default:"2" validate:"gte=0"`
	MaxChasePrice     float64 `yaml:"max_chase_price" default:"0.95" validate:"gt=0,lte=1"`
	ClosingBufferSecs int     `yaml:"closing_buffer_secs" default:"30" validate:"gte=0"`
}

// StrategyParams groups tunable knobs for a strategy implementation.
type StrategyParams struct {
	ThresholdMode        string  `yaml:"threshold_mode" default:"dynamic" validate:"oneof=fixed dynamic"`
	Threshold            float64 `yaml:"threshold" default:"3" validate:"gt=0"`
	VolatilityK          float64 `yaml:"volatility_k" default:"0.6" validate:"gte=0"`
	MinDiffLimit         float64 `yaml:"min_diff_limit" default:"2" validate:"gt=0"`
	ThresholdRefreshSecs int     `yaml:"threshold_refresh_secs" default:"60" validate:"gt=0"`
	ValueMaxAsk          float64 `yaml:"value_max_ask" default:"0.10" validate:"gt=0,lt=1"`
	ScalpEntryDiff       float64 `yaml:"scalp_entry_diff" default:"20"`
	ScalpExitDiff        float64 `yaml:"scalp_exit_diff" default:"5"`
	ScalpQty             float64 `yaml:"scalp_qty" default:"50" validate:"gt=0"`
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode" default:"strike_momentum" validate:"oneof=strike_momentum value_hunter volatility_scalper"`
	Params StrategyParams `yaml:"params"`
}

// Paper captures simulated account settings.
type Paper struct {
	StartingCash   float64 `yaml:"starting_cash" default:"2000" validate:"gt=0"`
	BaseQty        float64 `yaml:"base_qty" default:"10" validate:"gt=0"`
	FillsPath      string  `yaml:"fills_path"`
	CheckpointPath string  `yaml:"checkpoint_path"`
}

// Kafka enables the kafka telemetry sink when brokers are set.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" default:"quantbox.events"`
}

// Redis enables the redis telemetry sink when Addr is set.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"quantbox"`
}

// Telemetry selects where trade and wallet events are delivered.
type Telemetry struct {
	SimulationID string `yaml:"simulation_id"`
	APIURL       string `yaml:"api_url" validate:"omitempty,url"`
	Stdout       bool   `yaml:"stdout"`
	QueueSize    int    `yaml:"queue_size" default:"256" validate:"gt=0"`
	Kafka        Kafka  `yaml:"kafka"`
	Redis        Redis  `yaml:"redis"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Market    Market    `yaml:"market"`
	Reference Reference `yaml:"reference"`
	Risk      Risk      `yaml:"risk"`
	Strategy  Strategy  `yaml:"strategy"`
	Paper     Paper     `yaml:"paper"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Load applies defaults, overlays the YAML file at path (skipped when empty), then
// .env and process environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	envString("MARKET_SLUG", &cfg.Market.Slug)
	envString("INITIAL_MARKET_URL", &cfg.Market.InitialURL)
	envString("BINANCE_PAIR", &cfg.Reference.Symbol)
	envString("STRATEGY_MODE", &cfg.Strategy.Mode)
	envString("THRESHOLD_MODE", &cfg.Strategy.Params.ThresholdMode)
	envString("SIMULATION_ID", &cfg.Telemetry.SimulationID)
	envString("API_URL", &cfg.Telemetry.APIURL)
	envString("LOG_LEVEL", &cfg.App.LogLevel)

	floats := []struct {
		key string
		dst *float64
	}{
		{"INITIAL_CAPITAL", &cfg.Paper.StartingCash},
		{"BASE_QTY", &cfg.Paper.BaseQty},
		{"VOLATILITY_K", &cfg.Strategy.Params.VolatilityK},
		{"MIN_DIFF_LIMIT", &cfg.Strategy.Params.MinDiffLimit},
		{"MOMENTUM_THRESHOLD", &cfg.Strategy.Params.Threshold},
		{"MAX_RISK_PER_ROUND", &cfg.Risk.MaxRiskPerRound},
		{"MAX_CHASE_PRICE", &cfg.Risk.MaxChasePrice},
	}
	for _, f := range floats {
		if err := envFloat(f.key, f.dst); err != nil {
			return err
		}
	}
	if err := envInt("COOLDOWN_SECONDS", &cfg.Risk.CooldownSecs); err != nil {
		return err
	}
	return envInt("CLOSING_BUFFER_SECONDS", &cfg.Risk.ClosingBufferSecs)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("env %s: %w", key, err)
	}
	*dst = parsed
	return nil
}
