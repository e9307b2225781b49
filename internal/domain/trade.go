package domain

import "time"

// Side es la dirección de un trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// FeeBreakdown es el desglose del fee cobrado en un trade o resolución.
type FeeBreakdown struct {
	RateBps uint64
	Amount  uint64
	Split   FeeSplit
}

// TradeReceipt es el registro emitido por cada trade ejecutado.
type TradeReceipt struct {
	MarketID string
	Trader   string
	Outcome  int
	Side     Side
	Slot     uint64

	Gross  uint64 // pago bruto (buy) o refund clampeado (sell)
	Net    uint64 // lo que entra al vault (buy) o recibe el trader (sell)
	Shares uint64
	Fee    FeeBreakdown

	SpotBefore uint64
	SpotAfter  uint64
	ExecutedAt time.Time
}

// AvgPrice devuelve el precio medio realizado del trade en la misma escala
// que el spot (valor por ShareScale unidades de share). 0 si no hay shares.
func (r TradeReceipt) AvgPrice() uint64 {
	if r.Shares == 0 {
		return 0
	}
	avg := mul256(r.Net, ShareScale)
	avg.Div(avg, u256(r.Shares))
	if !avg.IsUint64() {
		return 0
	}
	return avg.Uint64()
}
