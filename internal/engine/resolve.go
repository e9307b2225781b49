package engine

// resolve.go: transiciones de lifecycle: lock, resolución manual y
// resolución automatizada por precio externo.
//
// Orden en la resolución: primero se extrae el resolution fee del vault y
// el remanente se congela como snapshot pot; todos los claims posteriores
// salen de ese snapshot. La transición es one-way.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/genio/internal/domain"
	"github.com/alejandrodnm/genio/internal/ports"
)

// Lock transiciona Active → Locked una vez abierta la ventana de lock.
func (e *Engine) Lock(ctx context.Context, marketID string) error {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if m.Status != domain.StatusActive {
		return domain.ErrMarketNotActive
	}
	now := e.now()
	if m.LockWindow <= 0 || now.Before(m.LockStart()) {
		return domain.ErrDeadlineNotReached
	}

	m.Status = domain.StatusLocked
	if err := e.store.SaveMarket(ctx, m); err != nil {
		return fmt.Errorf("engine.Lock: save market: %w", err)
	}
	slog.Info("market locked", "market", m.ID, "deadline", m.Deadline)
	return nil
}

// Resolve fija el outcome ganador decidido por la autoridad externa y
// devuelve el snapshot pot congelado.
func (e *Engine) Resolve(ctx context.Context, marketID string, winning int) (uint64, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	return e.resolve(ctx, m, winning)
}

// ResolveByPrice resuelve un mercado automatizado comparando la lectura
// final del feed contra el strike: precio ≥ strike gana el outcome 0.
// Lecturas fuera de la ventana de frescura se rechazan.
func (e *Engine) ResolveByPrice(ctx context.Context, marketID string, reading ports.PriceReading) (uint64, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if m.Strike == 0 || reading.Symbol != m.Symbol {
		return 0, domain.ErrInvalidParams
	}
	if !reading.Fresh(e.now(), e.cfg.PriceMaxAge) {
		return 0, domain.ErrStalePrice
	}

	winning := 1
	if reading.Price >= m.Strike {
		winning = 0
	}
	m.FinalPrice = reading.Price
	return e.resolve(ctx, m, winning)
}

func (e *Engine) resolve(ctx context.Context, m domain.Market, winning int) (uint64, error) {
	if m.Status == domain.StatusResolved {
		return 0, domain.ErrAlreadyResolved
	}
	now := e.now()
	if !m.CanResolve(now) {
		return 0, domain.ErrDeadlineNotReached
	}
	if !m.ValidOutcome(winning) {
		return 0, domain.ErrInvalidOutcome
	}

	fee, err := domain.FeeAmount(m.VaultBalance, m.Fees.ResolutionBps)
	if err != nil {
		return 0, err
	}
	split, err := m.Fees.Split(fee, m.Creator == e.cfg.Treasury)
	if err != nil {
		return 0, err
	}
	if fee > 0 {
		if err := e.ledger.Debit(ctx, VaultAccount(m.ID), fee); err != nil {
			return 0, fmt.Errorf("engine.resolve: debit resolution fee: %w", err)
		}
		if err := e.routeFee(ctx, m.Creator, split); err != nil {
			return 0, fmt.Errorf("engine.resolve: %w", err)
		}
	}
	m.VaultBalance -= fee
	snapshot := m.VaultBalance
	m.SnapshotPot = snapshot

	// Zero-winner: sin shares en el outcome ganador el pot sería
	// inalcanzable; se barre al treasury en esta misma transición.
	swept := false
	if m.Outcomes[winning].Supply == 0 && snapshot > 0 {
		if err := e.ledger.Debit(ctx, VaultAccount(m.ID), snapshot); err != nil {
			return 0, fmt.Errorf("engine.resolve: sweep vault: %w", err)
		}
		if err := e.ledger.Credit(ctx, e.cfg.Treasury, snapshot); err != nil {
			return 0, fmt.Errorf("engine.resolve: sweep credit: %w", err)
		}
		m.VaultBalance = 0
		swept = true
	}

	m.Status = domain.StatusResolved
	m.Winning = winning
	m.ResolvedAt = now.UTC()
	if err := e.store.SaveMarket(ctx, m); err != nil {
		return 0, fmt.Errorf("engine.resolve: save market: %w", err)
	}
	if err := e.store.BumpStats(ctx, 0, 0, fee); err != nil {
		return 0, fmt.Errorf("engine.resolve: bump stats: %w", err)
	}
	e.notifyResolution(ctx, m)

	slog.Info("market resolved",
		"market", m.ID,
		"winning", winning,
		"snapshot_pot", snapshot,
		"resolution_fee", fee,
		"swept", swept,
	)
	return snapshot, nil
}
