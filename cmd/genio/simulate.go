package main

// simulate.go: escenario end-to-end en memoria: crea un mercado binario,
// ejecuta compras y ventas contra la curva, lo resuelve y reparte el pot.
// Sirve para inspeccionar la forma de la curva y el flujo de fees sin
// tocar disco ni feed.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/genio/config"
	"github.com/alejandrodnm/genio/internal/adapters/ledger"
	"github.com/alejandrodnm/genio/internal/adapters/notify"
	"github.com/alejandrodnm/genio/internal/adapters/storage"
	"github.com/alejandrodnm/genio/internal/domain"
	"github.com/alejandrodnm/genio/internal/engine"
)

func runSimulation(cfg *config.Config) error {
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		return err
	}
	defer store.Close()

	book := ledger.NewMemory()
	console := notify.NewConsole(true)

	clock := time.Now()
	eng := engine.New(store, book, book, console, engine.Config{
		Treasury:  cfg.Engine.Treasury,
		Insurance: cfg.Engine.Insurance,
	}).WithClock(func() time.Time { return clock })

	m, err := eng.CreateMarket(ctx, engine.CreateMarketRequest{
		Creator:     "alice",
		Title:       "Will the thing happen by Friday?",
		NumOutcomes: 2,
		Deadline:    clock.Add(time.Hour),
		Curve:       domain.DefaultPiecewiseParams(),
		Fees:        domain.DefaultFeeParams(),
	})
	if err != nil {
		return fmt.Errorf("create market: %w", err)
	}

	// Fondear y tradear: bob apuesta fuerte a YES, carol cubre NO.
	const unit = domain.ShareScale
	book.Fund("bob", 200*unit)
	book.Fund("carol", 100*unit)

	trades := []engine.BuyRequest{
		{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 50 * unit, Slot: 1},
		{MarketID: m.ID, Trader: "carol", Outcome: 1, Payment: 30 * unit, Slot: 2},
		{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100 * unit, Slot: 3},
	}
	for _, req := range trades {
		if _, err := eng.Buy(ctx, req); err != nil {
			return fmt.Errorf("buy (trader %s): %w", req.Trader, err)
		}
	}

	// carol recoge beneficios parciales antes del cierre.
	pos, err := store.GetPosition(ctx, m.ID, "carol", 1)
	if err != nil {
		return err
	}
	if _, err := eng.Sell(ctx, engine.SellRequest{
		MarketID: m.ID, Trader: "carol", Outcome: 1, Shares: pos.Shares / 2, Slot: 4,
	}); err != nil {
		return fmt.Errorf("sell: %w", err)
	}

	// Avanzar el reloj más allá del deadline y resolver a YES.
	clock = clock.Add(2 * time.Hour)
	pot, err := eng.Resolve(ctx, m.ID, 0)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	payout, err := eng.Claim(ctx, m.ID, "bob")
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}

	final, err := store.GetMarket(ctx, m.ID)
	if err != nil {
		return err
	}
	console.PrintMarkets([]domain.Market{final})

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	console.PrintStats(stats)

	bobBalance, err := book.Balance(ctx, "bob")
	if err != nil {
		return fmt.Errorf("balance bob: %w", err)
	}
	treasury, err := book.Balance(ctx, cfg.Engine.Treasury)
	if err != nil {
		return fmt.Errorf("balance treasury: %w", err)
	}
	slog.Info("simulation complete",
		"snapshot_pot", pot,
		"bob_payout", payout,
		"bob_balance", bobBalance,
		"treasury", treasury,
	)
	return nil
}
