package main

// create.go: alta de mercados desde la CLI. Los mercados automatizados se
// crean con símbolo, strike e intervalo de ronda (presets estilo 15m/1h/24h/7d
// o cualquier duración Go); los manuales con título y deadline explícito.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/genio/config"
	"github.com/alejandrodnm/genio/internal/adapters/notify"
	"github.com/alejandrodnm/genio/internal/adapters/storage"
	"github.com/alejandrodnm/genio/internal/domain"
	"github.com/alejandrodnm/genio/internal/engine"
)

// createOpts son los flags del modo -create.
type createOpts struct {
	title    string
	creator  string
	outcomes int
	symbol   string
	strike   uint64
	interval string
	cpmm     bool
}

// roundIntervals son los presets de ronda de los mercados automatizados.
var roundIntervals = map[string]time.Duration{
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

func parseInterval(s string) (time.Duration, error) {
	if d, ok := roundIntervals[strings.ToLower(s)]; ok {
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid interval %q (use 15m, 1h, 24h, 7d or a Go duration)", s)
	}
	return d, nil
}

func runCreate(cfg *config.Config, store *storage.SQLiteStore, opts createOpts) error {
	ctx := context.Background()

	interval, err := parseInterval(opts.interval)
	if err != nil {
		return err
	}

	curve := domain.DefaultPiecewiseParams()
	if opts.cpmm {
		curve = domain.DefaultConstantProductParams()
	}

	eng := engine.New(store, store, store, nil, engine.Config{
		Treasury:    cfg.Engine.Treasury,
		Insurance:   cfg.Engine.Insurance,
		PriceMaxAge: cfg.PriceMaxAge(),
	})

	m, err := eng.CreateMarket(ctx, engine.CreateMarketRequest{
		Creator:     opts.creator,
		Title:       opts.title,
		NumOutcomes: opts.outcomes,
		Deadline:    time.Now().Add(interval),
		LockWindow:  cfg.LockWindow(),
		Curve:       curve,
		Fees:        domain.DefaultFeeParams(),
		Symbol:      opts.symbol,
		Strike:      opts.strike,
	})
	if err != nil {
		return fmt.Errorf("create market: %w", err)
	}

	slog.Info("market ready", "market", m.ID, "deadline", m.Deadline)
	notify.NewConsole(false).PrintMarkets([]domain.Market{m})
	return nil
}
