package domain

import (
	"fmt"
	"time"
)

const (
	// MinOutcomes y MaxOutcomes acotan los outcomes de un mercado
	// (2 = binario YES/NO, hasta 6 categorías).
	MinOutcomes = 2
	MaxOutcomes = 6

	// MaxTitleLen es la longitud máxima del título de un mercado.
	MaxTitleLen = 200
)

// MarketStatus es el estado del ciclo de vida de un mercado.
type MarketStatus int

const (
	StatusActive MarketStatus = iota
	StatusLocked
	StatusResolved
)

func (s MarketStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusLocked:
		return "locked"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// OutcomeState es el estado de pricing de un outcome: supply minteado
// (base 1e9) y, para la familia producto-constante, sus reservas virtuales.
type OutcomeState struct {
	Supply        uint64
	ReserveValue  uint64 // x: lado valor (solo CPMM)
	ReserveShares uint64 // y: lado shares (solo CPMM)
}

// Market es un mercado de predicción con curva de bonding.
// El winning outcome es -1 hasta la resolución.
type Market struct {
	ID          string
	Creator     string
	Title       string
	NumOutcomes int
	Outcomes    []OutcomeState

	// VaultBalance es el valor realmente custodiado (neto de fees).
	// SnapshotPot es el vault congelado en la resolución: todos los payouts
	// posteriores salen de ese numerador fijo, nunca del vault vivo.
	VaultBalance uint64
	SnapshotPot  uint64

	Status     MarketStatus
	Winning    int
	Deadline   time.Time
	LockWindow time.Duration // ventana final sin trades; 0 = sin lock
	ResolvedAt time.Time

	// Mercados automatizados: strike fijado a la creación y precio final
	// observado en la resolución. Strike == 0 → resolución manual.
	Symbol     string
	Strike     uint64
	FinalPrice uint64

	// Último trade, para el tier de fee same-slot.
	LastTrader    string
	LastTradeSlot uint64

	Curve CurveParams
	Fees  FeeParams

	CreatedAt time.Time
}

// ValidOutcome devuelve true si el índice es un outcome del mercado.
func (m Market) ValidOutcome(outcome int) bool {
	return outcome >= 0 && outcome < m.NumOutcomes
}

// LockStart devuelve el instante en que empieza la ventana de lock.
func (m Market) LockStart() time.Time {
	return m.Deadline.Add(-m.LockWindow)
}

// InLockWindow devuelve true si `now` cae dentro de la ventana de lock.
func (m Market) InLockWindow(now time.Time) bool {
	if m.LockWindow <= 0 {
		return false
	}
	return !now.Before(m.LockStart()) && now.Before(m.Deadline)
}

// CanTrade devuelve true si el mercado acepta trades en `now`:
// Active, fuera de la ventana de lock y antes del deadline.
func (m Market) CanTrade(now time.Time) bool {
	return m.Status == StatusActive && now.Before(m.Deadline) && !m.InLockWindow(now)
}

// CanResolve devuelve true si el mercado puede resolverse en `now`.
func (m Market) CanResolve(now time.Time) bool {
	return m.Status != StatusResolved && !now.Before(m.Deadline)
}

// TotalSupply devuelve la suma de supplies de todos los outcomes.
func (m Market) TotalSupply() uint64 {
	var total uint64
	for _, o := range m.Outcomes {
		total += o.Supply
	}
	return total
}

// Validate comprueba los invariantes estructurales del mercado en creación.
func (m Market) Validate() error {
	if m.Title == "" || len(m.Title) > MaxTitleLen {
		return ErrTitleTooLong
	}
	if m.NumOutcomes < MinOutcomes || m.NumOutcomes > MaxOutcomes {
		return ErrInvalidOutcomes
	}
	if err := m.Curve.Validate(); err != nil {
		return err
	}
	// La familia producto-constante solo soporta mercados binarios.
	if m.Curve.Family == FamilyConstantProduct && m.NumOutcomes != 2 {
		return ErrInvalidOutcomes
	}
	return m.Fees.Validate()
}

// AutoTitle genera el título de un mercado automatizado con strike,
// con el strike expresado en centavos de USD.
func AutoTitle(symbol string, strike uint64) string {
	return fmt.Sprintf("%s above $%d at end of round?", symbol, strike/100)
}

// TruncateTitle devuelve el título truncado a maxLen caracteres.
func TruncateTitle(title string, maxLen int) string {
	if len(title) <= maxLen {
		return title
	}
	return title[:maxLen-3] + "..."
}

// Position es la posición de un holder en un outcome de un mercado.
// Claimed es one-shot: es la única guarda contra el doble payout.
type Position struct {
	MarketID string
	Holder   string
	Outcome  int
	Shares   uint64
	Claimed  bool
}
