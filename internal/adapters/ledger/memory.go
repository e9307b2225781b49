package ledger

// memory.go: ledger en memoria para el modo simulación y los tests.
// Implementa ports.Ledger y ports.ShareLedger con la misma semántica
// atómica que exige el engine: un Debit sin saldo falla sin efectos.

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/genio/internal/domain"
)

// Memory es un ledger de valor y shares respaldado por maps.
type Memory struct {
	mu       sync.Mutex
	balances map[string]uint64
	holdings map[string]uint64 // "market|holder|outcome" → shares
}

// NewMemory crea un ledger vacío.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]uint64),
		holdings: make(map[string]uint64),
	}
}

// Fund abona saldo inicial a una cuenta (setup de simulación/tests).
func (m *Memory) Fund(account string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Debit retira amount de la cuenta o falla sin efectos.
func (m *Memory) Debit(_ context.Context, account string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[account] < amount {
		return fmt.Errorf("ledger.Debit: %q has %d, need %d: %w",
			account, m.balances[account], amount, domain.ErrInsufficientFunds)
	}
	m.balances[account] -= amount
	return nil
}

// Credit abona amount a la cuenta.
func (m *Memory) Credit(_ context.Context, account string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
	return nil
}

// Balance devuelve el saldo actual de la cuenta.
func (m *Memory) Balance(_ context.Context, account string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

// Mint acuña shares del outcome para el holder.
func (m *Memory) Mint(_ context.Context, marketID, holder string, outcome int, shares uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings[holdingKey(marketID, holder, outcome)] += shares
	return nil
}

// Burn destruye shares del holder o falla si no los tiene.
func (m *Memory) Burn(_ context.Context, marketID, holder string, outcome int, shares uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := holdingKey(marketID, holder, outcome)
	if m.holdings[key] < shares {
		return fmt.Errorf("ledger.Burn: %q has %d shares, need %d: %w",
			holder, m.holdings[key], shares, domain.ErrInsufficientShares)
	}
	m.holdings[key] -= shares
	return nil
}

// Holding devuelve los shares del holder en un outcome (inspección).
func (m *Memory) Holding(marketID, holder string, outcome int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holdings[holdingKey(marketID, holder, outcome)]
}

func holdingKey(marketID, holder string, outcome int) string {
	return fmt.Sprintf("%s|%s|%d", marketID, holder, outcome)
}
