package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SudoMindfreak/QuantBox/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== QuantBox Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit bankroll and risk knobs")
		fmt.Println("3) Edit market and signal settings")
		fmt.Println("4) Save config")
		fmt.Println("5) Launch paper simulator")
		fmt.Println("6) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editSignal(reader, cfg)
		case "4":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "5":
			launchPaper(reader)
		case "6":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Market: %s\n", marketLabel(cfg))
	fmt.Printf("Reference: %s via %s\n", cfg.Reference.Symbol, cfg.Reference.Provider)
	fmt.Printf("Strategy: %s\n", cfg.Strategy.Mode)
	fmt.Printf("Starting cash: $%.2f | base qty: %.2f\n", cfg.Paper.StartingCash, cfg.Paper.BaseQty)
	fmt.Printf("Max risk per round: $%.2f\n", cfg.Risk.MaxRiskPerRound)
	fmt.Printf("Max chase price: %.2f | cooldown: %ds\n", cfg.Risk.MaxChasePrice, cfg.Risk.CooldownSecs)
	p := cfg.Strategy.Params
	if p.ThresholdMode == "fixed" {
		fmt.Printf("Threshold: fixed %.2f\n", p.Threshold)
	} else {
		fmt.Printf("Threshold: dynamic K=%.2f floor=%.2f (refresh %ds)\n", p.VolatilityK, p.MinDiffLimit, p.ThresholdRefreshSecs)
	}
	if cfg.Telemetry.SimulationID != "" {
		fmt.Printf("Reporting to %s as %s\n", cfg.Telemetry.APIURL, cfg.Telemetry.SimulationID)
	}
}

func marketLabel(cfg *config.Config) string {
	if cfg.Market.Slug != "" {
		return cfg.Market.Slug
	}
	return cfg.Market.InitialURL
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk / Bankroll ---")
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
	cfg.Paper.BaseQty = promptFloat(reader, "Base quantity per entry", cfg.Paper.BaseQty)
	cfg.Risk.MaxRiskPerRound = promptFloat(reader, "Max risk per round (USD)", cfg.Risk.MaxRiskPerRound)
	cfg.Risk.MaxChasePrice = promptFloat(reader, "Max chase price", cfg.Risk.MaxChasePrice)
	cfg.Risk.CooldownSecs = int(promptFloat(reader, "Cooldown (seconds)", float64(cfg.Risk.CooldownSecs)))
}

func editSignal(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Market / Signal ---")
	fmt.Printf("Current market: %s\n", marketLabel(cfg))
	fmt.Print("Enter market slug or URL (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "/") {
			cfg.Market.InitialURL, cfg.Market.Slug = line, ""
		} else {
			cfg.Market.Slug = line
		}
	}
	fmt.Printf("Strategy mode (strike_momentum, value_hunter, volatility_scalper) [%s]: ", cfg.Strategy.Mode)
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Strategy.Mode = strings.TrimSpace(line)
	}
	p := &cfg.Strategy.Params
	fmt.Printf("Threshold mode (fixed, dynamic) [%s]: ", p.ThresholdMode)
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		p.ThresholdMode = strings.TrimSpace(line)
	}
	if p.ThresholdMode == "fixed" {
		p.Threshold = promptFloat(reader, "Fixed threshold", p.Threshold)
	} else {
		p.VolatilityK = promptFloat(reader, "Volatility K", p.VolatilityK)
		p.MinDiffLimit = promptFloat(reader, "Threshold floor", p.MinDiffLimit)
	}
}

func launchPaper(reader *bufio.Reader) {
	fmt.Println("Launching paper simulator (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/paper")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start simulator: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the simulator and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
