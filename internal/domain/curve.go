package domain

// curve.go: contrato de pricing común a las dos familias de curva.
//
// Toda la aritmética intermedia va en uint256 (holiman/uint256): los
// productos de cantidades fixed-point grandes no caben en 64 bits y la
// política numérica es fallar cerrado, nunca hacer wrap. Los estados
// persistidos (supply, reservas, vault) sí caben en uint64.

import "github.com/holiman/uint256"

const (
	// ShareScale es la base fixed-point de los shares: 1 share = 1e9 unidades.
	ShareScale = 1_000_000_000

	// PriceScale escala el precio spot de la familia producto-constante
	// para que sea comparable con umbrales en fracciones de PriceMax.
	PriceScale = 1_000_000_000

	// BpsDenominator es el denominador de todos los rates en basis points.
	BpsDenominator = 10_000
)

// CurveFamily etiqueta la variante de curva de un mercado.
type CurveFamily int

const (
	// FamilyPiecewise es la curva de 3 fases: rampa lineal, puente
	// cuadrático y aproximación clampeada al precio máximo.
	FamilyPiecewise CurveFamily = iota

	// FamilyConstantProduct es la curva de reservas virtuales x·y = k.
	FamilyConstantProduct
)

// CurveParams son las constantes de curva de un mercado. Inmutables una vez
// creado el mercado: la elección de curva se fija en la creación.
type CurveParams struct {
	Family CurveFamily

	// --- Familia piecewise ---
	TotalSupply uint64 // supply máximo minteable por outcome (base 1e9)
	Phase1End   uint64 // fin de la rampa lineal
	Phase2End   uint64 // fin del puente cuadrático
	PriceStart  uint64 // precio en supply 0
	PriceP1     uint64 // precio en Phase1End
	PriceP2     uint64 // precio en Phase2End
	PriceMax    uint64 // techo de precio en la fase final
	SlopeK      uint64 // constante k de la fase final, escalada por KScale
	// VirtualAnchor desplaza el supply efectivo de pricing: el mercado abre
	// a un precio implícito > PriceStart sin pre-mintear shares reales.
	VirtualAnchor uint64

	// --- Familia producto-constante ---
	SeedValue  uint64 // x inicial por outcome
	SeedShares uint64 // y inicial por outcome

	// EndgameBps define la zona terminal: precio ≥ PriceMax·EndgameBps/10000.
	EndgameBps uint64

	// SearchIterations y SearchPrecision acotan el binary search de la
	// inversa. Iteraciones 0 → DefaultSearchIterations.
	SearchIterations int
	SearchPrecision  uint64
}

const (
	// KScale es el factor fixed-point de SlopeK (k real = SlopeK / KScale).
	KScale = 1_000_000_000_000_000_000

	DefaultSearchIterations = 50
	DefaultSearchPrecision  = 1_000
)

// Validate comprueba la coherencia interna de los parámetros.
func (p CurveParams) Validate() error {
	switch p.Family {
	case FamilyPiecewise:
		if p.TotalSupply == 0 || p.Phase1End == 0 {
			return ErrInvalidParams
		}
		if p.Phase1End >= p.Phase2End || p.Phase2End > p.TotalSupply {
			return ErrInvalidParams
		}
		// El precio debe ser no-decreciente entre fases.
		if p.PriceStart > p.PriceP1 || p.PriceP1 > p.PriceP2 || p.PriceP2 > p.PriceMax {
			return ErrInvalidParams
		}
	case FamilyConstantProduct:
		if p.SeedValue == 0 || p.SeedShares == 0 {
			return ErrInvalidParams
		}
		if p.PriceMax == 0 {
			return ErrInvalidParams
		}
	default:
		return ErrInvalidParams
	}
	return nil
}

// iterations devuelve el tope de iteraciones del binary search.
func (p CurveParams) iterations() int {
	if p.SearchIterations > 0 {
		return p.SearchIterations
	}
	return DefaultSearchIterations
}

// precision devuelve el umbral absoluto de corte del binary search.
func (p CurveParams) precision() uint64 {
	if p.SearchPrecision > 0 {
		return p.SearchPrecision
	}
	return DefaultSearchPrecision
}

// Curve es el contrato de pricing: precio instantáneo, coste de mintear,
// valor de quemar, inversa (shares por pago) y transición de estado.
// Las implementaciones son funciones puras sobre OutcomeState: no mutan
// nada y el ejecutor aplica el estado nuevo solo si todo el trade pasa.
type Curve interface {
	// Spot devuelve el precio instantáneo del outcome.
	Spot(st OutcomeState) (uint64, error)

	// Cost devuelve el valor necesario para mintear `shares` adicionales.
	Cost(st OutcomeState, shares uint64) (uint64, error)

	// Refund devuelve el valor liberado al quemar `shares` de la posición.
	Refund(st OutcomeState, shares uint64) (uint64, error)

	// SharesForPayment devuelve cuántos shares se obtienen por `payment`.
	// Política undershoot: nunca devuelve shares cuyo coste supere el pago.
	SharesForPayment(st OutcomeState, payment uint64) (uint64, error)

	// Apply devuelve el estado tras mintear (buy=true) o quemar shares.
	Apply(st OutcomeState, shares uint64, buy bool) (OutcomeState, error)

	// Endgame devuelve true si el precio cruzó la zona terminal.
	Endgame(st OutcomeState) bool
}

// NewCurve construye la implementación de la familia indicada en params.
func NewCurve(p CurveParams) (Curve, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Family {
	case FamilyPiecewise:
		return &PiecewiseCurve{p: p}, nil
	case FamilyConstantProduct:
		return &ConstantProductCurve{p: p}, nil
	default:
		return nil, ErrInvalidParams
	}
}

// SeedOutcome devuelve el estado inicial de un outcome para estos params.
func (p CurveParams) SeedOutcome() OutcomeState {
	if p.Family == FamilyConstantProduct {
		return OutcomeState{ReserveValue: p.SeedValue, ReserveShares: p.SeedShares}
	}
	return OutcomeState{}
}

// u256 convierte un uint64 a uint256 (helper interno de las curvas).
func u256(v uint64) *uint256.Int {
	return new(uint256.Int).SetUint64(v)
}

// mul256 multiplica dos uint64 en 256 bits, donde nunca desborda.
func mul256(a, b uint64) *uint256.Int {
	return new(uint256.Int).Mul(u256(a), u256(b))
}

// toU64 baja un uint256 a uint64 fallando cerrado si no cabe.
func toU64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}
