package main

// keeper.go: loop de resolución automatizada: bloquea mercados en su
// ventana final y resuelve los vencidos con la última lectura del feed.
// Los mercados manuales (sin strike) solo se bloquean; la resolución la
// dispara la autoridad externa.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/genio/config"
	"github.com/alejandrodnm/genio/internal/domain"
	"github.com/alejandrodnm/genio/internal/engine"
	"github.com/alejandrodnm/genio/internal/ports"
)

func runKeeper(ctx context.Context, cfg *config.Config, store ports.MarketStore, feed ports.PriceFeed, eng *engine.Engine) error {
	slog.Info("keeper loop starting", "interval", cfg.KeeperInterval())

	ticker := time.NewTicker(cfg.KeeperInterval())
	defer ticker.Stop()

	for {
		if err := keeperCycle(ctx, cfg, store, feed, eng); err != nil {
			slog.Warn("keeper cycle error", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func keeperCycle(ctx context.Context, cfg *config.Config, store ports.MarketStore, feed ports.PriceFeed, eng *engine.Engine) error {
	now := time.Now()

	// Un solo query indexado cubre los dos pases: con el horizonte en
	// now+lockWindow salen tanto los mercados vencidos como los que ya
	// entraron en su ventana de bloqueo.
	markets, err := store.ListDue(ctx, now.Add(cfg.LockWindow()))
	if err != nil {
		return err
	}

	for _, m := range markets {
		switch {
		case m.Status == domain.StatusActive && m.InLockWindow(now):
			if err := eng.Lock(ctx, m.ID); err != nil {
				slog.Warn("lock failed", "market", m.ID, "err", err)
			}

		case m.CanResolve(now) && m.Strike > 0:
			reading, err := feed.Latest(ctx, m.Symbol)
			if err != nil {
				slog.Warn("feed read failed", "market", m.ID, "symbol", m.Symbol, "err", err)
				continue
			}
			pot, err := eng.ResolveByPrice(ctx, m.ID, reading)
			switch {
			case errors.Is(err, domain.ErrStalePrice):
				slog.Warn("stale reading, will retry", "market", m.ID, "published_at", reading.PublishedAt)
			case err != nil:
				slog.Warn("resolve failed", "market", m.ID, "err", err)
			default:
				slog.Info("market auto-resolved", "market", m.ID, "final_price", reading.Price, "pot", pot)
			}

		case m.CanResolve(now):
			slog.Debug("market past deadline awaits manual resolution", "market", m.ID)
		}
	}
	return nil
}
