package ports

import "context"

// Ledger es la primitiva de transferencia de valor del host. El engine no
// custodia fondos: cada operación Debit/Credit es atómica y todo-o-nada.
// Debit puede fallar (fondos insuficientes); el engine lo invoca SIEMPRE
// antes de mutar estado. Credit no falla para cuentas válidas.
type Ledger interface {
	// Debit retira amount de la cuenta. Falla sin efectos si no hay saldo.
	Debit(ctx context.Context, account string, amount uint64) error

	// Credit abona amount a la cuenta.
	Credit(ctx context.Context, account string, amount uint64) error

	// Balance devuelve el saldo actual de la cuenta.
	Balance(ctx context.Context, account string) (uint64, error)
}

// ShareLedger es el ledger de outcome shares del host: mint y burn atómicos
// ligados a un holder concreto.
type ShareLedger interface {
	// Mint acuña shares del outcome para el holder.
	Mint(ctx context.Context, marketID, holder string, outcome int, shares uint64) error

	// Burn destruye shares del outcome del holder. Falla si no los tiene.
	Burn(ctx context.Context, marketID, holder string, outcome int, shares uint64) error
}
