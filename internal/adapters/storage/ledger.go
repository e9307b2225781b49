package storage

// ledger.go: SQLiteStore también implementa ports.Ledger y
// ports.ShareLedger para despliegues locales de un solo nodo: las cuentas
// de valor y los holdings de shares viven en la misma base que el estado
// de los mercados.

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/genio/internal/domain"
)

// Debit retira amount de la cuenta o falla sin efectos si no hay saldo.
func (s *SQLiteStore) Debit(ctx context.Context, account string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET balance = balance - ?
		WHERE account = ? AND balance >= ?`,
		int64(amount), account, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("storage.Debit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.Debit: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.Debit: %q needs %d: %w", account, amount, domain.ErrInsufficientFunds)
	}
	return nil
}

// Credit abona amount a la cuenta, creándola si no existe.
func (s *SQLiteStore) Credit(ctx context.Context, account string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (account, balance) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET balance = balance + excluded.balance`,
		account, int64(amount),
	)
	if err != nil {
		return fmt.Errorf("storage.Credit: %w", err)
	}
	return nil
}

// Balance devuelve el saldo actual de la cuenta (0 si no existe).
func (s *SQLiteStore) Balance(ctx context.Context, account string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT balance FROM accounts WHERE account = ?), 0)`, account,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("storage.Balance: %w", err)
	}
	return uint64(balance), nil
}

// Mint acuña shares del outcome para el holder.
func (s *SQLiteStore) Mint(ctx context.Context, marketID, holder string, outcome int, shares uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holdings (market_id, holder, outcome, shares) VALUES (?,?,?,?)
		ON CONFLICT(market_id, holder, outcome) DO UPDATE SET shares = shares + excluded.shares`,
		marketID, holder, outcome, int64(shares),
	)
	if err != nil {
		return fmt.Errorf("storage.Mint: %w", err)
	}
	return nil
}

// Burn destruye shares del holder o falla sin efectos si no los tiene.
func (s *SQLiteStore) Burn(ctx context.Context, marketID, holder string, outcome int, shares uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE holdings SET shares = shares - ?
		WHERE market_id = ? AND holder = ? AND outcome = ? AND shares >= ?`,
		int64(shares), marketID, holder, outcome, int64(shares),
	)
	if err != nil {
		return fmt.Errorf("storage.Burn: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.Burn: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.Burn: %q needs %d shares: %w", holder, shares, domain.ErrInsufficientShares)
	}
	return nil
}
