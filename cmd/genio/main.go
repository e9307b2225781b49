package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/genio/config"
	"github.com/alejandrodnm/genio/internal/adapters/notify"
	"github.com/alejandrodnm/genio/internal/adapters/pricefeed"
	"github.com/alejandrodnm/genio/internal/adapters/storage"
	"github.com/alejandrodnm/genio/internal/engine"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	simulate := flag.Bool("simulate", false, "run an in-memory trading simulation and exit")
	keeper := flag.Bool("keeper", false, "run the resolution keeper loop")
	show := flag.Bool("show", false, "print markets table and exit")
	create := flag.Bool("create", false, "create a market and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")

	var opts createOpts
	flag.StringVar(&opts.title, "title", "", "market title (empty with -strike generates one)")
	flag.StringVar(&opts.creator, "creator", "creator", "market creator account")
	flag.IntVar(&opts.outcomes, "outcomes", 2, "number of outcomes")
	flag.StringVar(&opts.symbol, "symbol", "", "feed symbol for automated resolution")
	flag.Uint64Var(&opts.strike, "strike", 0, "strike price in cents (0 = manual resolution)")
	flag.StringVar(&opts.interval, "interval", "24h", "round interval: 15m|1h|24h|7d or Go duration")
	flag.BoolVar(&opts.cpmm, "cpmm", false, "use the constant-product curve family")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("genio starting",
		"config", *configPath,
		"simulate", *simulate,
		"keeper", *keeper,
	)

	if *simulate {
		if err := runSimulation(cfg); err != nil {
			slog.Error("simulation failed", "err", err)
			os.Exit(1)
		}
		return
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	if *show {
		runShow(store)
		return
	}

	if *create {
		if err := runCreate(cfg, store, opts); err != nil {
			slog.Error("create failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if *keeper {
		feed := pricefeed.NewClient(cfg.Feed.BaseURL, cfg.Feed.RatePerSec)
		eng := engine.New(store, store, store, notify.NewConsole(*verbose), engine.Config{
			Treasury:    cfg.Engine.Treasury,
			Insurance:   cfg.Engine.Insurance,
			PriceMaxAge: cfg.PriceMaxAge(),
		})

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if err := runKeeper(ctx, cfg, store, feed, eng); err != nil {
			slog.Error("keeper exited with error", "err", err)
			os.Exit(1)
		}
		slog.Info("genio stopped cleanly")
		return
	}

	runShow(store)
}

func runShow(store *storage.SQLiteStore) {
	ctx := context.Background()
	markets, err := store.ListMarkets(ctx)
	if err != nil {
		slog.Error("failed to list markets", "err", err)
		os.Exit(1)
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		slog.Error("failed to read stats", "err", err)
		os.Exit(1)
	}
	console := notify.NewConsole(false)
	console.PrintMarkets(markets)
	console.PrintStats(stats)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
