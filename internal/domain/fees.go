package domain

// fees.go: rates de fee en basis points y router determinista del split.
//
// Los tiers anti-bot y endgame son funciones puras de (último trader,
// último slot, precio actual): se evalúan antes del split y no forman
// parte de la curva.

import "github.com/holiman/uint256"

// FeeParams son los rates del mercado, inmutables tras la creación.
type FeeParams struct {
	EntryBps      uint64 // fee de entrada sobre el pago bruto
	ExitBps       uint64 // fee de salida sobre el refund (ya clampeado)
	ResolutionBps uint64 // fee extraído del vault en la resolución

	// SameSlotBps sustituye al rate normal cuando el mismo actor tradea
	// dos veces dentro de la misma unidad de serialización.
	SameSlotBps uint64

	// EndgameFeeBps es el rate mínimo una vez el precio entra en zona
	// terminal; tiene prioridad sobre el tier same-slot.
	EndgameFeeBps uint64

	// CreatorBps es la parte del fee para el creador del mercado;
	// InsuranceBps la del pool de seguro. El resto va al treasury.
	CreatorBps   uint64
	InsuranceBps uint64
}

// DefaultFeeParams: 1% entrada, 1% salida, 2% resolución, 15% same-slot,
// 0.1% en endgame; split 50% creador, 5% seguro, resto treasury.
func DefaultFeeParams() FeeParams {
	return FeeParams{
		EntryBps:      100,
		ExitBps:       100,
		ResolutionBps: 200,
		SameSlotBps:   1_500,
		EndgameFeeBps: 10,
		CreatorBps:    5_000,
		InsuranceBps:  500,
	}
}

// Validate comprueba que ningún rate ni el split exceden el denominador.
func (f FeeParams) Validate() error {
	for _, bps := range []uint64{f.EntryBps, f.ExitBps, f.ResolutionBps, f.SameSlotBps, f.EndgameFeeBps} {
		if bps > BpsDenominator {
			return ErrInvalidParams
		}
	}
	if f.CreatorBps+f.InsuranceBps > BpsDenominator {
		return ErrInvalidParams
	}
	return nil
}

// TradeFeeBps devuelve el rate efectivo de un trade: endgame relaja al
// mínimo, repetir slot lo escala, y si no aplica ninguno rige baseBps.
func (f FeeParams) TradeFeeBps(baseBps uint64, lastTrader string, lastSlot uint64, trader string, slot uint64, endgame bool) uint64 {
	if endgame && f.EndgameFeeBps > 0 {
		return f.EndgameFeeBps
	}
	if f.SameSlotBps > 0 && lastTrader != "" && lastTrader == trader && lastSlot == slot {
		return f.SameSlotBps
	}
	return baseBps
}

// FeeAmount devuelve amount·bps/10000 con floor, sin overflow intermedio.
func FeeAmount(amount, bps uint64) (uint64, error) {
	fee := new(uint256.Int).Mul(u256(amount), u256(bps))
	fee.Div(fee, u256(BpsDenominator))
	return toU64(fee)
}

// FeeSplit es el reparto de un fee entre los tres destinos.
// Protocol absorbe el redondeo: Protocol+Creator+Insurance == total exacto.
type FeeSplit struct {
	Protocol  uint64
	Creator   uint64
	Insurance uint64
}

// Total devuelve la suma de las tres partes.
func (s FeeSplit) Total() uint64 {
	return s.Protocol + s.Creator + s.Insurance
}

// Split reparte un fee según los params. Si el creador es el propio
// treasury su parte se pliega en Protocol y se acredita en un solo pago.
func (f FeeParams) Split(total uint64, creatorIsTreasury bool) (FeeSplit, error) {
	insurance, err := FeeAmount(total, f.InsuranceBps)
	if err != nil {
		return FeeSplit{}, err
	}
	creator, err := FeeAmount(total, f.CreatorBps)
	if err != nil {
		return FeeSplit{}, err
	}
	if insurance+creator > total {
		return FeeSplit{}, ErrUnderflow
	}
	split := FeeSplit{
		Protocol:  total - insurance - creator,
		Creator:   creator,
		Insurance: insurance,
	}
	if creatorIsTreasury {
		split.Protocol += split.Creator
		split.Creator = 0
	}
	return split, nil
}
