package domain

// cpmm.go: curva de reservas virtuales con invariante x·y = k.
//
// Las reservas son nocionales: se siembran por encima de cero para que el
// precio esté definido desde el primer trade y evolucionan con cada trade,
// pero el valor real custodiado vive en el vault del mercado, no aquí.
// k se recalcula de las reservas vivas en cada operación; la división floor
// garantiza que el comprador nunca recibe más shares de los que paga.

import "github.com/holiman/uint256"

// ConstantProductCurve implementa Curve para la familia producto-constante.
type ConstantProductCurve struct {
	p CurveParams
}

// DefaultConstantProductParams siembra 40 unidades de valor contra 80 de
// shares: precio inicial 0.5 y un trade de 1 unidad mueve el precio ~2%.
func DefaultConstantProductParams() CurveParams {
	return CurveParams{
		Family:     FamilyConstantProduct,
		SeedValue:  40_000_000_000,
		SeedShares: 80_000_000_000,
		PriceMax:   PriceScale, // un share nunca vale más que el payout entero
		EndgameBps: 9_000,
	}
}

func (c *ConstantProductCurve) k(st OutcomeState) *uint256.Int {
	return new(uint256.Int).Mul(u256(st.ReserveValue), u256(st.ReserveShares))
}

// Spot devuelve x/y escalado por PriceScale, comparable contra PriceMax.
func (c *ConstantProductCurve) Spot(st OutcomeState) (uint64, error) {
	if st.ReserveShares == 0 {
		return 0, ErrDivideByZero
	}
	price := new(uint256.Int).Mul(u256(st.ReserveValue), u256(PriceScale))
	price.Div(price, u256(st.ReserveShares))
	return toU64(price)
}

// Cost devuelve el valor necesario para extraer `shares` de la reserva:
// new_y = y - shares, new_x = ⌈k/new_y⌉, coste = new_x - x. El redondeo
// hacia arriba asegura que pagar el coste devuelto cubre los shares.
func (c *ConstantProductCurve) Cost(st OutcomeState, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	if shares >= st.ReserveShares {
		return 0, ErrUnderflow
	}
	newY := st.ReserveShares - shares
	newX, err := ceilDiv(c.k(st), newY)
	if err != nil {
		return 0, err
	}
	if newX <= st.ReserveValue {
		return 0, nil
	}
	return newX - st.ReserveValue, nil
}

// Refund devuelve el valor liberado al devolver `shares` a la reserva:
// new_y = y + shares, new_x = ⌊k/new_y⌋, refund = x - new_x.
func (c *ConstantProductCurve) Refund(st OutcomeState, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, nil
	}
	if shares > st.Supply {
		return 0, ErrUnderflow
	}
	newYRaw, overflow := new(uint256.Int).AddOverflow(u256(st.ReserveShares), u256(shares))
	if overflow {
		return 0, ErrOverflow
	}
	newY, err := toU64(newYRaw)
	if err != nil {
		return 0, err
	}
	newX := new(uint256.Int).Div(c.k(st), u256(newY))
	newXU, err := toU64(newX)
	if err != nil {
		return 0, err
	}
	if newXU >= st.ReserveValue {
		return 0, nil
	}
	return st.ReserveValue - newXU, nil
}

// SharesForPayment: new_x = x + v, new_y = ⌊k/new_x⌋, shares = y - new_y.
// La división floor es la política undershoot de esta familia.
func (c *ConstantProductCurve) SharesForPayment(st OutcomeState, payment uint64) (uint64, error) {
	if payment == 0 {
		return 0, nil
	}
	newXRaw, overflow := new(uint256.Int).AddOverflow(u256(st.ReserveValue), u256(payment))
	if overflow {
		return 0, ErrOverflow
	}
	newY := new(uint256.Int).Div(c.k(st), newXRaw)
	newYU, err := toU64(newY)
	if err != nil {
		return 0, err
	}
	if newYU >= st.ReserveShares {
		return 0, nil
	}
	return st.ReserveShares - newYU, nil
}

// Apply recalcula las reservas para el delta de shares dado y actualiza el
// supply minteado. Es la única transición de estado de la familia.
func (c *ConstantProductCurve) Apply(st OutcomeState, shares uint64, buy bool) (OutcomeState, error) {
	if shares == 0 {
		return st, nil
	}
	k := c.k(st)
	if buy {
		if shares >= st.ReserveShares {
			return OutcomeState{}, ErrUnderflow
		}
		newY := st.ReserveShares - shares
		newX, err := ceilDiv(k, newY)
		if err != nil {
			return OutcomeState{}, err
		}
		supply, overflow := new(uint256.Int).AddOverflow(u256(st.Supply), u256(shares))
		if overflow {
			return OutcomeState{}, ErrOverflow
		}
		supplyU, err := toU64(supply)
		if err != nil {
			return OutcomeState{}, err
		}
		return OutcomeState{Supply: supplyU, ReserveValue: newX, ReserveShares: newY}, nil
	}

	if shares > st.Supply {
		return OutcomeState{}, ErrUnderflow
	}
	newYRaw, overflow := new(uint256.Int).AddOverflow(u256(st.ReserveShares), u256(shares))
	if overflow {
		return OutcomeState{}, ErrOverflow
	}
	newY, err := toU64(newYRaw)
	if err != nil {
		return OutcomeState{}, err
	}
	newX, err := toU64(new(uint256.Int).Div(k, u256(newY)))
	if err != nil {
		return OutcomeState{}, err
	}
	return OutcomeState{Supply: st.Supply - shares, ReserveValue: newX, ReserveShares: newY}, nil
}

// Endgame devuelve true una vez el precio cruza EndgameBps de PriceMax.
func (c *ConstantProductCurve) Endgame(st OutcomeState) bool {
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

// ceilDiv divide redondeando hacia arriba, fallando cerrado en divisor 0.
func ceilDiv(num *uint256.Int, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrDivideByZero
	}
	q := new(uint256.Int).Div(num, u256(den))
	rem := new(uint256.Int).Mod(num, u256(den))
	if !rem.IsZero() {
		q.AddUint64(q, 1)
	}
	return toU64(q)
}
