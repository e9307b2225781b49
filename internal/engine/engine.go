package engine

// engine.go: wiring del engine y creación de mercados.
//
// El engine no custodia fondos ni threads: cada operación es una transición
// de estado síncrona y acotada sobre un mercado, con las transferencias
// delegadas en los ports inyectados. El host garantiza que dos transiciones
// sobre el mismo mercado nunca se intercalan.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/genio/internal/domain"
	"github.com/alejandrodnm/genio/internal/ports"
)

// DefaultPriceMaxAge es la ventana de frescura del feed para la
// resolución automatizada.
const DefaultPriceMaxAge = 60 * time.Second

// Config son los parámetros de operación del engine.
type Config struct {
	// Treasury es la cuenta del protocolo; Insurance la del pool de seguro.
	Treasury  string
	Insurance string

	// PriceMaxAge acota la antigüedad aceptada de una lectura del feed.
	PriceMaxAge time.Duration
}

// Engine ejecuta trades, transiciones de lifecycle y settlement.
type Engine struct {
	store    ports.MarketStore
	ledger   ports.Ledger
	shares   ports.ShareLedger
	notifier ports.Notifier // opcional
	cfg      Config
	now      func() time.Time
}

// New crea un Engine con las dependencias dadas. notifier puede ser nil.
func New(store ports.MarketStore, ledger ports.Ledger, shares ports.ShareLedger, notifier ports.Notifier, cfg Config) *Engine {
	if cfg.PriceMaxAge <= 0 {
		cfg.PriceMaxAge = DefaultPriceMaxAge
	}
	return &Engine{
		store:    store,
		ledger:   ledger,
		shares:   shares,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock sustituye el reloj del engine (tests y simulación).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateMarketRequest describe el mercado a crear. La curva y los fees
// quedan inmutables una vez creado.
type CreateMarketRequest struct {
	Creator     string
	Title       string
	NumOutcomes int
	Deadline    time.Time
	LockWindow  time.Duration
	Curve       domain.CurveParams
	Fees        domain.FeeParams

	// Symbol y Strike activan la resolución automatizada por precio.
	// Con Strike > 0 y Title vacío el título se genera del strike.
	Symbol string
	Strike uint64
}

// CreateMarket valida la request, siembra los outcomes según la familia de
// curva y persiste el mercado nuevo.
func (e *Engine) CreateMarket(ctx context.Context, req CreateMarketRequest) (domain.Market, error) {
	now := e.now().UTC()

	title := req.Title
	if title == "" && req.Strike > 0 {
		title = domain.AutoTitle(req.Symbol, req.Strike)
	}

	m := domain.Market{
		ID:          uuid.New().String(),
		Creator:     req.Creator,
		Title:       title,
		NumOutcomes: req.NumOutcomes,
		Status:      domain.StatusActive,
		Winning:     -1,
		Deadline:    req.Deadline.UTC(),
		LockWindow:  req.LockWindow,
		Symbol:      req.Symbol,
		Strike:      req.Strike,
		Curve:       req.Curve,
		Fees:        req.Fees,
		CreatedAt:   now,
	}
	if err := m.Validate(); err != nil {
		return domain.Market{}, err
	}
	if !m.Deadline.After(now) {
		return domain.Market{}, domain.ErrPastDeadline
	}

	m.Outcomes = make([]domain.OutcomeState, m.NumOutcomes)
	for i := range m.Outcomes {
		m.Outcomes[i] = m.Curve.SeedOutcome()
	}

	if err := e.store.SaveMarket(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("engine.CreateMarket: save market: %w", err)
	}
	if err := e.store.BumpStats(ctx, 1, 0, 0); err != nil {
		return domain.Market{}, fmt.Errorf("engine.CreateMarket: bump stats: %w", err)
	}

	slog.Info("market created",
		"market", m.ID,
		"title", m.Title,
		"outcomes", m.NumOutcomes,
		"family", int(m.Curve.Family),
		"deadline", m.Deadline,
	)
	return m, nil
}

// VaultAccount devuelve la cuenta de ledger del vault de un mercado.
func VaultAccount(marketID string) string {
	return "vault:" + marketID
}

// routeFee acredita cada parte del split a su destino. Las partes a cero
// no generan transferencia.
func (e *Engine) routeFee(ctx context.Context, creator string, split domain.FeeSplit) error {
	if split.Protocol > 0 {
		if err := e.ledger.Credit(ctx, e.cfg.Treasury, split.Protocol); err != nil {
			return fmt.Errorf("credit treasury: %w", err)
		}
	}
	if split.Creator > 0 {
		if err := e.ledger.Credit(ctx, creator, split.Creator); err != nil {
			return fmt.Errorf("credit creator: %w", err)
		}
	}
	if split.Insurance > 0 {
		if err := e.ledger.Credit(ctx, e.cfg.Insurance, split.Insurance); err != nil {
			return fmt.Errorf("credit insurance: %w", err)
		}
	}
	return nil
}

// notifyTrade entrega el recibo al notifier si hay uno configurado.
// Un notifier caído no tumba el trade: se loguea y se sigue.
func (e *Engine) notifyTrade(ctx context.Context, r domain.TradeReceipt) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyTrade(ctx, r); err != nil {
		slog.Warn("trade notifier error", "market", r.MarketID, "err", err)
	}
}

func (e *Engine) notifyResolution(ctx context.Context, m domain.Market) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyResolution(ctx, m); err != nil {
		slog.Warn("resolution notifier error", "market", m.ID, "err", err)
	}
}

// checkedAdd suma dos uint64 fallando cerrado en overflow.
func checkedAdd(a, b uint64) (uint64, error) {
	if b > math.MaxUint64-a {
		return 0, domain.ErrOverflow
	}
	return a + b, nil
}
