package domain

import "errors"

// Taxonomía de errores del engine. Todos los fallos se reportan síncronos
// al caller y ninguna operación deja efectos parciales: o muta todo o nada.

// Errores de validación: rechazados antes de tocar estado.
var (
	ErrInvalidOutcome  = errors.New("invalid outcome index")
	ErrZeroAmount      = errors.New("amount must be greater than zero")
	ErrTitleTooLong    = errors.New("title too long")
	ErrInvalidOutcomes = errors.New("unsupported number of outcomes")
	ErrInvalidParams   = errors.New("invalid curve parameters")
	ErrPastDeadline    = errors.New("deadline must be in the future")
)

// Errores de estado: la transición pedida no es legal ahora.
var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketNotActive    = errors.New("market is not active")
	ErrMarketLocked       = errors.New("market is in lock window")
	ErrNotResolved        = errors.New("market is not resolved")
	ErrAlreadyResolved    = errors.New("market already resolved")
	ErrDeadlineNotReached = errors.New("resolution deadline not reached")
	ErrPositionNotFound   = errors.New("position not found")
	ErrAlreadyClaimed     = errors.New("winnings already claimed")
)

// Errores económicos: la operación es legal pero el resultado no cumple
// los límites pedidos por el caller o no hay fondos/shares suficientes.
var (
	ErrSlippage           = errors.New("slippage: minimum output not met")
	ErrPriceImpact        = errors.New("price impact bound exceeded")
	ErrInsufficientShares = errors.New("insufficient shares in position")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNotWinner          = errors.New("position is not on the winning outcome")
	ErrNoWinningShares    = errors.New("no shares on the winning outcome")
)

// Errores aritméticos: nunca se trunca ni se hace wrap en silencio.
var (
	ErrOverflow     = errors.New("arithmetic overflow")
	ErrUnderflow    = errors.New("arithmetic underflow")
	ErrDivideByZero = errors.New("division by zero")
)

// ErrStalePrice indica una lectura del feed fuera de la ventana de frescura.
var ErrStalePrice = errors.New("price reading is stale")
