package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"natgas_trading/internal/config"
	"natgas_trading/internal/datasources"
	"natgas_trading/internal/logger"
	"natgas_trading/internal/market/alpaca"
	"natgas_trading/internal/notifications"
	"natgas_trading/internal/reconciler"
	"natgas_trading/internal/signals"
	"natgas_trading/internal/storage"
	"natgas_trading/internal/trader"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const VersionFile = "version.latest"

func main() {
	// Cobra has already printed the error.
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "natgas_trader",
		Short: "Natural gas BOIL/KOLD trading agent",
		Long: `natgas_trader blends weather, storage inventory and storm alert signals
into one trading signal and holds at most one of BOIL or KOLD on Alpaca.
Without a subcommand it trades continuously every 24 hours.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContinuous(trader.DefaultInterval)
		},
	}

	root.AddCommand(newOnceCmd())
	root.AddCommand(newContinuousCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single trading cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.trader.CheckConnectivity()
			return app.trader.RunCycle(ctx)
		},
	}
}

func newContinuousCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "continuous [interval_hours]",
		Short: "Run trading cycles until interrupted",
		Long:  "Run a trading cycle every interval_hours (default 24). A failed cycle is retried after FAILURE_BACKOFF.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := trader.DefaultInterval
			if len(args) == 1 {
				d, err := parseHours(args[0])
				if err != nil {
					return err
				}
				interval = d
			}
			return runContinuous(interval)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("natgas_trader", readVersion())
		},
	}
}

func runContinuous(interval time.Duration) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.trader.CheckConnectivity()
	return app.trader.RunContinuous(ctx, interval)
}

func parseHours(arg string) (time.Duration, error) {
	h, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(h) || h <= 0 {
		return 0, fmt.Errorf("interval_hours must be a positive number, got %q", arg)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which already overflows.
	ns := h * float64(time.Hour)
	if ns >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("interval_hours must be below %.0f, got %q", float64(math.MaxInt64)/float64(time.Hour), arg)
	}
	return time.Duration(ns), nil
}

type app struct {
	trader  *trader.Trader
	journal storage.Journal
}

func (a *app) close() {
	if err := a.journal.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close journal")
	}
}

// setup loads and validates configuration, then wires every component.
// Invalid configuration is the one failure that terminates the process.
func setup() (*app, error) {
	// 1. Configuration
	// Load config.env/.env first; nothing below reads the environment again.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// 2. Logging
	// Console plus a size-rotated file, configured from the values just loaded.
	logger.Setup(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogLevel)
	log.Info().Str("version", readVersion()).Msg("Natural gas trader starting")
	cfg.LogSummary()

	// 3. Broker
	// Trading and market data share the same credentials.
	broker := alpaca.NewProvider(alpaca.Options{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
		DataURL:   cfg.DataURL,
		Feed:      cfg.DataFeed,
	})

	// 4. Signal sources
	// Each one may fail on its own; the cycle then uses 0.0 for it.
	sources := trader.Sources{
		Temperature: datasources.NewWeatherFetcher(cfg.WeatherAPIURL, cfg.WeatherRegions, cfg.HTTPTimeout),
		Inventory:   datasources.NewInventoryFetcher(cfg.EIAAPIURL, cfg.EIAAPIKey, cfg.HTTPTimeout),
		Storm:       datasources.NewStormFetcher(cfg.NOAAAPIURL, cfg.NOAAUserAgent, cfg.HTTPTimeout),
	}

	// 5. Decision and execution
	fusion := signals.NewFusion(cfg.Symbol, cfg.InverseSymbol,
		signals.Weights{
			Temperature: cfg.TemperatureWeight,
			Inventory:   cfg.InventoryWeight,
			Storm:       cfg.StormWeight,
		},
		signals.Thresholds{Buy: cfg.BuyThreshold, Sell: cfg.SellThreshold},
	)

	rec := reconciler.New(broker, reconciler.Config{
		Symbol:        cfg.Symbol,
		InverseSymbol: cfg.InverseSymbol,
		PositionSize:  decimal.NewFromFloat(cfg.PositionSize),
		Delays: reconciler.Delays{
			CancelSettle: cfg.CancelSettleDelay,
			RetrySettle:  cfg.RetrySettleDelay,
			FillSettle:   cfg.FillSettleDelay,
		},
	})

	// 6. Journal and notifications
	journal, err := openJournal(cfg)
	if err != nil {
		return nil, err
	}

	notifier := notifications.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.HTTPTimeout)
	if !notifier.Enabled() {
		log.Info().Msg("Telegram notifications disabled")
	}

	// 7. Orchestrator
	t := trader.New(broker, sources, fusion, rec, journal, notifier, cfg.FailureBackoff)
	return &app{trader: t, journal: journal}, nil
}

func openJournal(cfg *config.Config) (storage.Journal, error) {
	files, err := storage.NewFileJournal(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if cfg.JournalSQLitePath == "" {
		return files, nil
	}

	db, err := storage.NewSQLiteJournal(cfg.JournalSQLitePath)
	if err != nil {
		files.Close()
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}
	log.Info().Str("path", cfg.JournalSQLitePath).Msg("SQLite journal enabled")
	return storage.Multi{files, db}, nil
}

func readVersion() string {
	version, err := os.ReadFile(VersionFile)
	if err != nil {
		return "v0.0.0-dev"
	}
	return strings.TrimSpace(string(version))
}
