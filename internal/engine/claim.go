package engine

// claim.go: settlement: reparto pro-rata del snapshot pot.
//
// El payout usa siempre el snapshot congelado en la resolución, nunca el
// vault vivo, así el orden de claim no sesga el ratio de nadie. El flag
// claimed se marca y persiste ANTES del credit: el Ledger inyectado es
// atómico y no puede fallar a medias, y marcar primero cierra la puerta
// al doble claim reentrante.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/alejandrodnm/genio/internal/domain"
)

// Claim paga al holder su parte proporcional del snapshot:
// floor(snapshot · shares / totalWinning). One-shot por posición.
func (e *Engine) Claim(ctx context.Context, marketID, holder string) (uint64, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if m.Status != domain.StatusResolved {
		return 0, domain.ErrNotResolved
	}

	pos, err := e.store.GetPosition(ctx, m.ID, holder, m.Winning)
	if errors.Is(err, domain.ErrPositionNotFound) {
		return 0, domain.ErrNotWinner
	} else if err != nil {
		return 0, fmt.Errorf("engine.Claim: load position: %w", err)
	}
	if pos.Claimed {
		return 0, domain.ErrAlreadyClaimed
	}
	if pos.Shares == 0 {
		return 0, domain.ErrNotWinner
	}

	totalWinning := m.Outcomes[m.Winning].Supply
	if totalWinning == 0 {
		return 0, domain.ErrNoWinningShares
	}

	payout := new(uint256.Int).Mul(u256(m.SnapshotPot), u256(pos.Shares))
	payout.Div(payout, u256(totalWinning))
	if !payout.IsUint64() {
		return 0, domain.ErrOverflow
	}
	amount := payout.Uint64()
	// La suma de floors nunca supera el snapshot, pero el clamp protege
	// contra cualquier dust contable del vault.
	if amount > m.VaultBalance {
		amount = m.VaultBalance
	}

	pos.Claimed = true
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return 0, fmt.Errorf("engine.Claim: mark claimed: %w", err)
	}

	if amount > 0 {
		if err := e.ledger.Debit(ctx, VaultAccount(m.ID), amount); err != nil {
			return 0, fmt.Errorf("engine.Claim: debit vault: %w", err)
		}
		if err := e.ledger.Credit(ctx, holder, amount); err != nil {
			return 0, fmt.Errorf("engine.Claim: credit holder: %w", err)
		}
	}

	m.VaultBalance -= amount
	if err := e.store.SaveMarket(ctx, m); err != nil {
		return 0, fmt.Errorf("engine.Claim: save market: %w", err)
	}

	slog.Info("claim paid",
		"market", m.ID,
		"holder", holder,
		"shares", pos.Shares,
		"payout", amount,
	)
	return amount, nil
}
