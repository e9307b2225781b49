package domain

// piecewise.go: curva de 3 fases con continuidad de precio:
//
//	Fase 1: rampa lineal de PriceStart a PriceP1 en [0, Phase1End]
//	Fase 2: puente cuadrático de PriceP1 a PriceP2 en (Phase1End, Phase2End]
//	Fase 3: aproximación lineal clampeada (sigmoide aplanada) hacia PriceMax
//
// El coste es la integral trapezoidal de la fase y la inversa no tiene forma
// cerrada para la curva compuesta: se resuelve por binary search acotado.

import "github.com/holiman/uint256"

// bridgeRatioScale escala el ratio de progreso dentro del puente cuadrático.
const bridgeRatioScale = 1_000_000

// PiecewiseCurve implementa Curve para la familia piecewise.
type PiecewiseCurve struct {
	p CurveParams
}

// DefaultPiecewiseParams son los parámetros de producción de la curva:
// 1B shares (base 1e9), rampa hasta 90M, puente hasta 110M, techo 0.95.
func DefaultPiecewiseParams() CurveParams {
	return CurveParams{
		Family:      FamilyPiecewise,
		TotalSupply: 1_000_000_000_000_000_000,
		Phase1End:   90_000_000_000_000_000,
		Phase2End:   110_000_000_000_000_000,
		PriceStart:  1,
		PriceP1:     2_700,
		PriceP2:     15_000,
		PriceMax:    950_000_000,
		SlopeK:      470,
		EndgameBps:  9_000,
	}
}

// effective devuelve el supply de pricing: supply real más el anchor
// virtual, que permite abrir el mercado a un precio implícito no nulo.
func (c *PiecewiseCurve) effective(supply uint64) (uint64, error) {
	s, carry := u256(supply), u256(c.p.VirtualAnchor)
	sum, overflow := new(uint256.Int).AddOverflow(s, carry)
	if overflow {
		return 0, ErrOverflow
	}
	return toU64(sum)
}

// Spot devuelve el precio instantáneo en unidades de valor por share (1e9).
func (c *PiecewiseCurve) Spot(st OutcomeState) (uint64, error) {
	s, err := c.effective(st.Supply)
	if err != nil {
		return 0, err
	}
	return c.price(s)
}

func (c *PiecewiseCurve) price(s uint64) (uint64, error) {
	p := c.p
	if s == 0 {
		return p.PriceStart, nil
	}

	switch {
	case s <= p.Phase1End:
		// P = PriceStart + slope·s, con slope = (PriceP1-PriceStart)/Phase1End
		// escalada por KScale para no perder precisión en la división.
		slope := new(uint256.Int).Mul(u256(p.PriceP1-p.PriceStart), u256(KScale))
		slope.Div(slope, u256(p.Phase1End))
		delta := new(uint256.Int).Mul(slope, u256(s))
		delta.Div(delta, u256(KScale))
		return c.addPrice(p.PriceStart, delta)

	case s <= p.Phase2End:
		// Puente cuadrático: P = PriceP1 + (PriceP2-PriceP1)·(progress/range)²
		progress := s - p.Phase1End
		rng := p.Phase2End - p.Phase1End
		ratio := new(uint256.Int).Mul(u256(progress), u256(bridgeRatioScale))
		ratio.Div(ratio, u256(rng))
		ratioSq := new(uint256.Int).Mul(ratio, ratio)
		ratioSq.Div(ratioSq, u256(bridgeRatioScale))
		delta := new(uint256.Int).Mul(u256(p.PriceP2-p.PriceP1), ratioSq)
		delta.Div(delta, u256(bridgeRatioScale))
		return c.addPrice(p.PriceP1, delta)

	default:
		// Fase final: sigmoide aproximada lineal y clampeada en PriceMax.
		// kz = SlopeK·(s - Phase2End)/KScale, normalizado a [0, 1e9].
		kz := new(uint256.Int).Mul(u256(p.SlopeK), u256(s-p.Phase2End))
		kz.Div(kz, u256(KScale))
		norm := kz
		if norm.GtUint64(PriceScale) {
			norm = u256(PriceScale)
		}
		delta := new(uint256.Int).Mul(u256(p.PriceMax-p.PriceP2), norm)
		delta.Div(delta, u256(PriceScale))
		return c.addPrice(p.PriceP2, delta)
	}
}

// addPrice suma base + delta fallando cerrado y clampeando a PriceMax.
func (c *PiecewiseCurve) addPrice(base uint64, delta *uint256.Int) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(u256(base), delta)
	if overflow {
		return 0, ErrOverflow
	}
	price, err := toU64(sum)
	if err != nil {
		return 0, err
	}
	if price > c.p.PriceMax {
		price = c.p.PriceMax
	}
	return price, nil
}

// Cost integra el precio entre supply y supply+shares por trapecios
// segmentados por fase, reescalados desde la base de shares.
func (c *PiecewiseCurve) Cost(st OutcomeState, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	oldS, err := c.effective(st.Supply)
	if err != nil {
		return 0, err
	}
	newRaw, overflow := new(uint256.Int).AddOverflow(u256(st.Supply), u256(shares))
	if overflow {
		return 0, ErrOverflow
	}
	newSupply, err := toU64(newRaw)
	if err != nil {
		return 0, err
	}
	if newSupply > c.p.TotalSupply {
		return 0, ErrOverflow
	}
	newS, err := c.effective(newSupply)
	if err != nil {
		return 0, err
	}
	return c.integrate(oldS, newS)
}

// Refund devuelve el coste que se habría cobrado por mintear los shares
// que se van a quemar: cost(supply-shares, supply).
func (c *PiecewiseCurve) Refund(st OutcomeState, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	if shares > st.Supply {
		return 0, ErrUnderflow
	}
	oldS, err := c.effective(st.Supply - shares)
	if err != nil {
		return 0, err
	}
	newS, err := c.effective(st.Supply)
	if err != nil {
		return 0, err
	}
	return c.integrate(oldS, newS)
}

// integrate suma trapecios por segmento, cortando en Phase1End/Phase2End:
// un solo trapecio a través de un quiebre de fase sesga el coste porque el
// slope cambia en la frontera, y el coste deja de ser aditivo entre un buy
// entero y dos sells parciales sobre el mismo rango.
func (c *PiecewiseCurve) integrate(oldS, newS uint64) (uint64, error) {
	if newS <= oldS {
		return 0, nil
	}
	total := new(uint256.Int)
	start := oldS
	for _, cut := range []uint64{c.p.Phase1End, c.p.Phase2End, newS} {
		end := cut
		if end > newS {
			end = newS
		}
		if end <= start {
			continue
		}
		seg, err := c.chord(start, end)
		if err != nil {
			return 0, err
		}
		if _, overflow := total.AddOverflow(total, seg); overflow {
			return 0, ErrOverflow
		}
		start = end
	}
	return toU64(total)
}

// chord integra un segmento contenido en una sola fase:
// coste = (P(a)+P(b))/2 · (b-a), reescalado desde la base de shares.
func (c *PiecewiseCurve) chord(a, b uint64) (*uint256.Int, error) {
	pA, err := c.price(a)
	if err != nil {
		return nil, err
	}
	pB, err := c.price(b)
	if err != nil {
		return nil, err
	}
	avg := new(uint256.Int).Add(u256(pA), u256(pB))
	avg.Div(avg, u256(2))
	cost := new(uint256.Int).Mul(avg, u256(b-a))
	cost.Div(cost, u256(ShareScale))
	return cost, nil
}

// SharesForPayment resuelve la inversa por binary search sobre el supply
// candidato. Undershoot garantizado: el invariante del bucle mantiene
// cost(low) < payment, así que nunca se emiten shares que cuesten más que
// el pago.
func (c *PiecewiseCurve) SharesForPayment(st OutcomeState, payment uint64) (uint64, error) {
	if payment == 0 {
		return 0, nil
	}
	low, high := st.Supply, c.p.TotalSupply
	if low >= high {
		return 0, nil
	}

	for i := 0; i < c.p.iterations(); i++ {
		mid := low + (high-low)/2
		cost, err := c.Cost(st, mid-st.Supply)
		if err != nil {
			return 0, err
		}
		if cost < payment {
			low = mid
		} else {
			high = mid
		}
		if high-low < c.p.precision() {
			break
		}
	}
	return low - st.Supply, nil
}

// Apply devuelve el estado del outcome tras mintear o quemar shares.
func (c *PiecewiseCurve) Apply(st OutcomeState, shares uint64, buy bool) (OutcomeState, error) {
	if buy {
		sum, overflow := new(uint256.Int).AddOverflow(u256(st.Supply), u256(shares))
		if overflow {
			return OutcomeState{}, ErrOverflow
		}
		newSupply, err := toU64(sum)
		if err != nil {
			return OutcomeState{}, err
		}
		if newSupply > c.p.TotalSupply {
			return OutcomeState{}, ErrOverflow
		}
		st.Supply = newSupply
		return st, nil
	}
	if shares > st.Supply {
		return OutcomeState{}, ErrUnderflow
	}
	st.Supply -= shares
	return st, nil
}

// Endgame devuelve true si el spot cruzó la fracción EndgameBps de PriceMax.
func (c *PiecewiseCurve) Endgame(st OutcomeState) bool {
	if c.p.EndgameBps == 0 {
		return false
	}
	spot, err := c.Spot(st)
	if err != nil {
		return false
	}
	threshold := new(uint256.Int).Mul(u256(c.p.PriceMax), u256(c.p.EndgameBps))
	threshold.Div(threshold, u256(BpsDenominator))
	return u256(spot).Cmp(threshold) >= 0
}
