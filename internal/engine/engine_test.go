package engine_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/genio/internal/adapters/ledger"
	"github.com/alejandrodnm/genio/internal/domain"
	"github.com/alejandrodnm/genio/internal/engine"
	"github.com/alejandrodnm/genio/internal/ports"
)

// memStore es un MarketStore en memoria para los tests del engine.
type memStore struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	positions map[string]domain.Position
	stats     domain.ProtocolStats
}

func newMemStore() *memStore {
	return &memStore{
		markets:   make(map[string]domain.Market),
		positions: make(map[string]domain.Position),
	}
}

func cloneMarket(m domain.Market) domain.Market {
	outcomes := make([]domain.OutcomeState, len(m.Outcomes))
	copy(outcomes, m.Outcomes)
	m.Outcomes = outcomes
	return m
}

func (s *memStore) SaveMarket(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *memStore) GetMarket(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return cloneMarket(m), nil
}

func (s *memStore) ListDue(_ context.Context, now time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []domain.Market
	for _, m := range s.markets {
		if m.Status != domain.StatusResolved && !now.Before(m.Deadline) {
			due = append(due, cloneMarket(m))
		}
	}
	return due, nil
}

func (s *memStore) ListMarkets(_ context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []domain.Market
	for _, m := range s.markets {
		all = append(all, cloneMarket(m))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

func posKey(marketID, holder string, outcome int) string {
	return fmt.Sprintf("%s|%s|%d", marketID, holder, outcome)
}

func (s *memStore) SavePosition(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[posKey(p.MarketID, p.Holder, p.Outcome)] = p
	return nil
}

func (s *memStore) GetPosition(_ context.Context, marketID, holder string, outcome int) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[posKey(marketID, holder, outcome)]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return p, nil
}

func (s *memStore) PositionsByHolder(_ context.Context, marketID, holder string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID && p.Holder == holder {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) BumpStats(_ context.Context, markets, volume, fees uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalMarkets += markets
	s.stats.TotalVolume += volume
	s.stats.TotalFeesCollected += fees
	return nil
}

func (s *memStore) Stats(_ context.Context) (domain.ProtocolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

func (s *memStore) Close() error { return nil }

// fixture monta un engine con store y ledger en memoria y reloj fijo.
type fixture struct {
	store *memStore
	led   *ledger.Memory
	eng   *engine.Engine
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		store: newMemStore(),
		led:   ledger.NewMemory(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.eng = engine.New(fx.store, fx.led, fx.led, nil, engine.Config{
		Treasury:  "treasury",
		Insurance: "insurance",
	}).WithClock(func() time.Time { return fx.now })
	return fx
}

func (fx *fixture) advance(d time.Duration) { fx.now = fx.now.Add(d) }

func (fx *fixture) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := fx.led.Balance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func (fx *fixture) createMarket(t *testing.T, req engine.CreateMarketRequest) domain.Market {
	t.Helper()
	if req.Creator == "" {
		req.Creator = "alice"
	}
	if req.Title == "" && req.Strike == 0 {
		req.Title = "BTC above $100k?"
	}
	if req.NumOutcomes == 0 {
		req.NumOutcomes = 2
	}
	if req.Deadline.IsZero() {
		req.Deadline = fx.now.Add(time.Hour)
	}
	if req.Curve.TotalSupply == 0 && req.Curve.SeedValue == 0 {
		req.Curve = domain.DefaultPiecewiseParams()
	}
	if req.Fees == (domain.FeeParams{}) {
		req.Fees = domain.DefaultFeeParams()
	}
	m, err := fx.eng.CreateMarket(context.Background(), req)
	require.NoError(t, err)
	return m
}

func TestCreateMarket(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, domain.StatusActive, m.Status)
	assert.Equal(t, -1, m.Winning)
	assert.Len(t, m.Outcomes, 2)

	stats, err := fx.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalMarkets)
}

func TestCreateMarket_PastDeadline(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.eng.CreateMarket(context.Background(), engine.CreateMarketRequest{
		Creator:     "alice",
		Title:       "late",
		NumOutcomes: 2,
		Deadline:    fx.now.Add(-time.Minute),
		Curve:       domain.DefaultPiecewiseParams(),
		Fees:        domain.DefaultFeeParams(),
	})
	assert.ErrorIs(t, err, domain.ErrPastDeadline)
}

func TestCreateMarket_AutoTitle(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{
		Symbol: "SOL",
		Strike: 15_000,
	})
	assert.Equal(t, "SOL above $150 at end of round?", m.Title)
}

func TestCreateMarket_SeedsCPMMReserves(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{
		Curve: domain.DefaultConstantProductParams(),
	})
	for _, o := range m.Outcomes {
		assert.Equal(t, uint64(40_000_000_000), o.ReserveValue)
		assert.Equal(t, uint64(80_000_000_000), o.ReserveShares)
	}
}

func TestBuy_HappyPath(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)

	r, err := fx.eng.Buy(context.Background(), engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100_000_000_000, Slot: 1,
	})
	require.NoError(t, err)

	// 1% de entrada: fee 1e9, neto 99e9 al vault.
	assert.Equal(t, uint64(1_000_000_000), r.Fee.Amount)
	assert.Equal(t, uint64(99_000_000_000), r.Net)
	assert.Greater(t, r.Shares, uint64(0))
	assert.Equal(t, domain.SideBuy, r.Side)

	// Split del fee: 50% creador, 5% seguro, resto treasury.
	assert.Equal(t, uint64(500_000_000), fx.balance(t, "alice"))
	assert.Equal(t, uint64(50_000_000), fx.balance(t, "insurance"))
	assert.Equal(t, uint64(450_000_000), fx.balance(t, "treasury"))

	// El vault contable y el de ledger cuadran.
	got, err := fx.store.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(99_000_000_000), got.VaultBalance)
	assert.Equal(t, got.VaultBalance, fx.balance(t, engine.VaultAccount(m.ID)))
	assert.Equal(t, r.Shares, got.Outcomes[0].Supply)
	assert.Equal(t, "bob", got.LastTrader)

	pos, err := fx.store.GetPosition(context.Background(), m.ID, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, r.Shares, pos.Shares)
	assert.Equal(t, r.Shares, fx.led.Holding(m.ID, "bob", 0))
}

func TestBuy_SmallPaymentMintsAtOpeningPrice(t *testing.T) {
	// Con un pago pequeño el precio no se mueve del de apertura y los
	// shares minteados son ≈ neto/PriceStart, dentro de la tolerancia
	// del binary search.
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000)

	r, err := fx.eng.Buy(context.Background(), engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 1_000, Slot: 1,
	})
	require.NoError(t, err)

	expected := r.Net * domain.ShareScale / domain.DefaultPiecewiseParams().PriceStart
	assert.LessOrEqual(t, r.Shares, expected)
	assert.InDelta(t, float64(expected), float64(r.Shares), 2*domain.DefaultSearchPrecision)
}

func TestBuy_Errors(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000)

	ctx := context.Background()

	_, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 0})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: "nope", Trader: "bob", Outcome: 0, Payment: 100})
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 5, Payment: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	// Sin fondos: el débito falla y el mercado queda intacto.
	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 1_000_000_000})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.VaultBalance)
}

func TestBuy_AfterDeadline(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000)

	fx.advance(2 * time.Hour)
	_, err := fx.eng.Buy(context.Background(), engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 1_000_000,
	})
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestBuy_Slippage(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)

	_, err := fx.eng.Buy(context.Background(), engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 1_000_000_000,
		MinSharesOut: ^uint64(0),
	})
	assert.ErrorIs(t, err, domain.ErrSlippage)
}

func TestBuy_PriceImpact(t *testing.T) {
	// En la familia producto-constante un trade grande mueve mucho el precio:
	// con un límite estrecho el trade se rechaza, sin límite pasa.
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{
		Curve: domain.DefaultConstantProductParams(),
	})
	fx.led.Fund("bob", 1_000_000_000_000)

	req := engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 40_000_000_000,
		MaxImpactBps: 100,
	}
	_, err := fx.eng.Buy(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrPriceImpact)

	req.MaxImpactBps = 0
	_, err = fx.eng.Buy(context.Background(), req)
	assert.NoError(t, err)
}

func TestBuy_SameSlotFeeTier(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)
	fx.led.Fund("carol", 1_000_000_000_000)

	ctx := context.Background()
	first, err := fx.eng.Buy(ctx, engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 10_000_000_000, Slot: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), first.Fee.RateBps)

	// Mismo trader, mismo slot: tier anti-bot al 15%.
	second, err := fx.eng.Buy(ctx, engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 10_000_000_000, Slot: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), second.Fee.RateBps)

	// Otro trader en el mismo slot no escala.
	third, err := fx.eng.Buy(ctx, engine.BuyRequest{
		MarketID: m.ID, Trader: "carol", Outcome: 0, Payment: 10_000_000_000, Slot: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), third.Fee.RateBps)

	// El mismo trader en un slot posterior tampoco.
	fourth, err := fx.eng.Buy(ctx, engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 10_000_000_000, Slot: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), fourth.Fee.RateBps)
}

func TestSell_RoundTrip(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)

	ctx := context.Background()
	buy, err := fx.eng.Buy(ctx, engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100_000_000_000, Slot: 1,
	})
	require.NoError(t, err)

	sell, err := fx.eng.Sell(ctx, engine.SellRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: buy.Shares, Slot: 2,
	})
	require.NoError(t, err)

	// Vender todo lo comprado nunca devuelve más de lo ingresado al vault.
	assert.LessOrEqual(t, sell.Gross, buy.Net)
	assert.Equal(t, domain.SideSell, sell.Side)

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Outcomes[0].Supply)
	assert.Equal(t, got.VaultBalance, fx.balance(t, engine.VaultAccount(m.ID)))

	pos, err := fx.store.GetPosition(ctx, m.ID, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pos.Shares)
	assert.Equal(t, uint64(0), fx.led.Holding(m.ID, "bob", 0))
}

func TestSell_Errors(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)

	ctx := context.Background()

	_, err := fx.eng.Sell(ctx, engine.SellRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: 0})
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	// Sin posición previa.
	_, err = fx.eng.Sell(ctx, engine.SellRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: 100})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	buy, err := fx.eng.Buy(ctx, engine.BuyRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 1_000_000_000,
	})
	require.NoError(t, err)

	// Más shares de los que tiene.
	_, err = fx.eng.Sell(ctx, engine.SellRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: buy.Shares + 1})
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)

	// Mínimo de salida imposible.
	_, err = fx.eng.Sell(ctx, engine.SellRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: buy.Shares, MinPaymentOut: ^uint64(0),
	})
	assert.ErrorIs(t, err, domain.ErrSlippage)
}

func TestSell_RefundClampedToVault(t *testing.T) {
	// Estado artificial: el refund de curva supera el vault disponible y se
	// clampa, el exit fee se aplica sobre el refund ya clampeado.
	fx := newFixture(t)
	ctx := context.Background()

	m := domain.Market{
		ID:          "clamp",
		Creator:     "alice",
		Title:       "clamp case",
		NumOutcomes: 2,
		Outcomes:    []domain.OutcomeState{{Supply: 1_000_000_000_000_000}, {}},
		VaultBalance: 10,
		Status:      domain.StatusActive,
		Winning:     -1,
		Deadline:    fx.now.Add(time.Hour),
		Curve:       domain.DefaultPiecewiseParams(),
		Fees:        domain.DefaultFeeParams(),
		CreatedAt:   fx.now,
	}
	require.NoError(t, fx.store.SaveMarket(ctx, m))
	require.NoError(t, fx.store.SavePosition(ctx, domain.Position{
		MarketID: m.ID, Holder: "bob", Outcome: 0, Shares: 100_000_000_000_000,
	}))
	require.NoError(t, fx.led.Mint(ctx, m.ID, "bob", 0, 100_000_000_000_000))
	require.NoError(t, fx.led.Credit(ctx, engine.VaultAccount(m.ID), 10))

	sell, err := fx.eng.Sell(ctx, engine.SellRequest{
		MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: 100_000_000_000_000,
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(10), sell.Gross)
	assert.Equal(t, uint64(10), sell.Net) // 1% de 10 es 0 por floor
	assert.Equal(t, uint64(10), fx.balance(t, "bob"))

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.VaultBalance)
	assert.Equal(t, uint64(0), fx.balance(t, engine.VaultAccount(m.ID)))
}

func TestConservation(t *testing.T) {
	// La suma de todos los saldos es invariante bajo buys y sells: cada
	// unidad debitada acaba en el vault, el creador, el seguro o el treasury.
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 500_000_000_000)
	fx.led.Fund("carol", 300_000_000_000)
	total := uint64(800_000_000_000)

	ctx := context.Background()
	accounts := []string{"bob", "carol", "alice", "treasury", "insurance", engine.VaultAccount(m.ID)}
	sum := func() uint64 {
		var s uint64
		for _, a := range accounts {
			s += fx.balance(t, a)
		}
		return s
	}

	buy1, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 120_000_000_000, Slot: 1})
	require.NoError(t, err)
	assert.Equal(t, total, sum())

	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "carol", Outcome: 1, Payment: 90_000_000_000, Slot: 2})
	require.NoError(t, err)
	assert.Equal(t, total, sum())

	_, err = fx.eng.Sell(ctx, engine.SellRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Shares: buy1.Shares / 2, Slot: 3})
	require.NoError(t, err)
	assert.Equal(t, total, sum())
}

func TestLock(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{
		LockWindow: time.Minute,
	})
	fx.led.Fund("bob", 1_000_000_000)
	ctx := context.Background()

	// Antes de la ventana no se puede lockear.
	err := fx.eng.Lock(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	// Dentro de la ventana: el trade se rechaza aunque siga Active.
	fx.advance(time.Hour - 30*time.Second)
	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 1_000_000})
	assert.ErrorIs(t, err, domain.ErrMarketLocked)

	require.NoError(t, fx.eng.Lock(ctx, m.ID))
	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, got.Status)

	// Idempotencia negativa: un mercado ya lockeado no se vuelve a lockear.
	err = fx.eng.Lock(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrMarketNotActive)
}

func TestResolve(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)
	ctx := context.Background()

	_, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100_000_000_000})
	require.NoError(t, err)

	// Antes del deadline no hay resolución.
	_, err = fx.eng.Resolve(ctx, m.ID, 0)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotReached)

	fx.advance(2 * time.Hour)

	_, err = fx.eng.Resolve(ctx, m.ID, 9)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)

	treasuryBefore := fx.balance(t, "treasury")
	snapshot, err := fx.eng.Resolve(ctx, m.ID, 0)
	require.NoError(t, err)

	// Vault 99e9, fee de resolución 2% = 1.98e9, snapshot el resto.
	assert.Equal(t, uint64(97_020_000_000), snapshot)
	// Parte protocol del fee: 45% de 1.98e9.
	assert.Equal(t, treasuryBefore+891_000_000, fx.balance(t, "treasury"))

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, got.Status)
	assert.Equal(t, 0, got.Winning)
	assert.Equal(t, snapshot, got.SnapshotPot)
	assert.Equal(t, snapshot, got.VaultBalance)

	// One-way: una segunda resolución falla.
	_, err = fx.eng.Resolve(ctx, m.ID, 1)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestResolve_ZeroWinnerSweep(t *testing.T) {
	// Nadie compró el outcome ganador: el pot entero se barre al treasury en
	// la misma transición y el vault queda a cero.
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)
	ctx := context.Background()

	_, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100_000_000_000})
	require.NoError(t, err)
	fx.advance(2 * time.Hour)

	treasuryBefore := fx.balance(t, "treasury")
	snapshot, err := fx.eng.Resolve(ctx, m.ID, 1)
	require.NoError(t, err)

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.VaultBalance)
	assert.Equal(t, uint64(0), fx.balance(t, engine.VaultAccount(m.ID)))
	// Treasury recibe el sweep completo más su parte del fee de resolución.
	assert.Equal(t, treasuryBefore+snapshot+891_000_000, fx.balance(t, "treasury"))

	// Con el pot barrido no queda nada que reclamar.
	_, err = fx.eng.Claim(ctx, m.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotWinner)
}

func TestResolveByPrice(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{Symbol: "SOL", Strike: 15_000})
	fx.advance(2 * time.Hour)
	ctx := context.Background()

	// Símbolo equivocado.
	_, err := fx.eng.ResolveByPrice(ctx, m.ID, ports.PriceReading{
		Symbol: "BTC", Price: 20_000, PublishedAt: fx.now,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	// Lectura pasada de frescura.
	_, err = fx.eng.ResolveByPrice(ctx, m.ID, ports.PriceReading{
		Symbol: "SOL", Price: 20_000, PublishedAt: fx.now.Add(-5 * time.Minute),
	})
	assert.ErrorIs(t, err, domain.ErrStalePrice)

	// Precio sobre el strike: gana el outcome 0.
	_, err = fx.eng.ResolveByPrice(ctx, m.ID, ports.PriceReading{
		Symbol: "SOL", Price: 20_000, PublishedAt: fx.now,
	})
	require.NoError(t, err)

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Winning)
	assert.Equal(t, uint64(20_000), got.FinalPrice)
}

func TestResolveByPrice_BelowStrike(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{Symbol: "SOL", Strike: 15_000})
	fx.advance(2 * time.Hour)

	_, err := fx.eng.ResolveByPrice(context.Background(), m.ID, ports.PriceReading{
		Symbol: "SOL", Price: 14_999, PublishedAt: fx.now,
	})
	require.NoError(t, err)

	got, err := fx.store.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Winning)
}

func TestClaim_SoleWinnerTakesPot(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)
	ctx := context.Background()

	_, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100_000_000_000})
	require.NoError(t, err)
	fx.advance(2 * time.Hour)

	snapshot, err := fx.eng.Resolve(ctx, m.ID, 0)
	require.NoError(t, err)

	bobBefore := fx.balance(t, "bob")
	payout, err := fx.eng.Claim(ctx, m.ID, "bob")
	require.NoError(t, err)

	// Único holder del outcome ganador: se lleva el snapshot completo.
	assert.Equal(t, snapshot, payout)
	assert.Equal(t, bobBefore+snapshot, fx.balance(t, "bob"))

	got, err := fx.store.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.VaultBalance)
	assert.Equal(t, snapshot, got.SnapshotPot) // el snapshot no cambia

	// One-shot: el segundo claim falla.
	_, err = fx.eng.Claim(ctx, m.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaim_ProRata(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)
	fx.led.Fund("carol", 1_000_000_000_000)
	ctx := context.Background()

	b1, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 100_000_000_000, Slot: 1})
	require.NoError(t, err)
	b2, err := fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "carol", Outcome: 0, Payment: 50_000_000_000, Slot: 2})
	require.NoError(t, err)
	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "carol", Outcome: 1, Payment: 30_000_000_000, Slot: 3})
	require.NoError(t, err)
	fx.advance(2 * time.Hour)

	snapshot, err := fx.eng.Resolve(ctx, m.ID, 0)
	require.NoError(t, err)

	p1, err := fx.eng.Claim(ctx, m.ID, "bob")
	require.NoError(t, err)
	p2, err := fx.eng.Claim(ctx, m.ID, "carol")
	require.NoError(t, err)

	// Los floors pro-rata nunca suman más que el snapshot y el dust es < 2.
	assert.LessOrEqual(t, p1+p2, snapshot)
	assert.GreaterOrEqual(t, p1+p2+2, snapshot)

	// El ratio se respeta: quien entró antes y más barato cobra más.
	assert.Greater(t, b1.Shares, b2.Shares)
	assert.Greater(t, p1, p2)
}

func TestClaim_Errors(t *testing.T) {
	fx := newFixture(t)
	m := fx.createMarket(t, engine.CreateMarketRequest{})
	fx.led.Fund("bob", 1_000_000_000_000)
	fx.led.Fund("carol", 1_000_000_000_000)
	ctx := context.Background()

	// Mercado sin resolver.
	_, err := fx.eng.Claim(ctx, m.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrNotResolved)

	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "bob", Outcome: 0, Payment: 10_000_000_000, Slot: 1})
	require.NoError(t, err)
	_, err = fx.eng.Buy(ctx, engine.BuyRequest{MarketID: m.ID, Trader: "carol", Outcome: 1, Payment: 10_000_000_000, Slot: 2})
	require.NoError(t, err)
	fx.advance(2 * time.Hour)

	_, err = fx.eng.Resolve(ctx, m.ID, 0)
	require.NoError(t, err)

	// Carol solo tiene el outcome perdedor.
	_, err = fx.eng.Claim(ctx, m.ID, "carol")
	assert.ErrorIs(t, err, domain.ErrNotWinner)
}
