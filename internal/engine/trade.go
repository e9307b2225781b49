package engine

// trade.go: ejecutor de trades contra la curva del mercado.
//
// Orden de efectos en buy: validar → debitar al trader (único efecto que
// puede fallar por fondos) → acreditar vault y fees → mintear shares →
// persistir mercado y posición. En sell es simétrico con el refund
// clampeado al vault disponible antes del exit fee.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"github.com/alejandrodnm/genio/internal/domain"
)

// BuyRequest es una compra de shares de un outcome.
type BuyRequest struct {
	MarketID     string
	Trader       string
	Outcome      int
	Payment      uint64
	MinSharesOut uint64
	// MaxImpactBps acota cuánto puede superar el precio medio realizado al
	// spot pre-trade. 0 = sin límite.
	MaxImpactBps uint64
	// Slot es la unidad de serialización del host para el tier same-slot.
	Slot uint64
}

// SellRequest es una venta de shares de una posición.
type SellRequest struct {
	MarketID      string
	Trader        string
	Outcome       int
	Shares        uint64
	MinPaymentOut uint64
	Slot          uint64
}

// Buy ejecuta una compra: aplica el entry fee, resuelve la inversa de la
// curva, valida slippage e impacto y muta supply, vault y posición.
func (e *Engine) Buy(ctx context.Context, req BuyRequest) (domain.TradeReceipt, error) {
	if req.Payment == 0 {
		return domain.TradeReceipt{}, domain.ErrZeroAmount
	}

	m, err := e.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if err := tradeable(m, e.now()); err != nil {
		return domain.TradeReceipt{}, err
	}
	if !m.ValidOutcome(req.Outcome) {
		return domain.TradeReceipt{}, domain.ErrInvalidOutcome
	}

	curve, err := domain.NewCurve(m.Curve)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	st := m.Outcomes[req.Outcome]
	spotBefore, err := curve.Spot(st)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	rate := m.Fees.TradeFeeBps(m.Fees.EntryBps, m.LastTrader, m.LastTradeSlot, req.Trader, req.Slot, curve.Endgame(st))
	fee, err := domain.FeeAmount(req.Payment, rate)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	net := req.Payment - fee

	shares, err := curve.SharesForPayment(st, net)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if shares == 0 || shares < req.MinSharesOut {
		return domain.TradeReceipt{}, domain.ErrSlippage
	}
	if err := checkImpact(spotBefore, net, shares, req.MaxImpactBps); err != nil {
		return domain.TradeReceipt{}, err
	}

	newSt, err := curve.Apply(st, shares, true)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	newVault, err := checkedAdd(m.VaultBalance, net)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	split, err := m.Fees.Split(fee, m.Creator == e.cfg.Treasury)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	// A partir de aquí empiezan los efectos externos.
	if err := e.ledger.Debit(ctx, req.Trader, req.Payment); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: debit trader: %w", err)
	}
	if err := e.ledger.Credit(ctx, VaultAccount(m.ID), net); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: credit vault: %w", err)
	}
	if err := e.routeFee(ctx, m.Creator, split); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: %w", err)
	}
	if err := e.shares.Mint(ctx, m.ID, req.Trader, req.Outcome, shares); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: mint shares: %w", err)
	}

	m.Outcomes[req.Outcome] = newSt
	m.VaultBalance = newVault
	m.LastTrader = req.Trader
	m.LastTradeSlot = req.Slot
	if err := e.store.SaveMarket(ctx, m); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: save market: %w", err)
	}

	pos, err := e.store.GetPosition(ctx, m.ID, req.Trader, req.Outcome)
	if errors.Is(err, domain.ErrPositionNotFound) {
		pos = domain.Position{MarketID: m.ID, Holder: req.Trader, Outcome: req.Outcome}
	} else if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: load position: %w", err)
	}
	pos.Shares, err = checkedAdd(pos.Shares, shares)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: save position: %w", err)
	}
	if err := e.store.BumpStats(ctx, 0, req.Payment, fee); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Buy: bump stats: %w", err)
	}

	spotAfter, err := curve.Spot(newSt)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	receipt := domain.TradeReceipt{
		MarketID:   m.ID,
		Trader:     req.Trader,
		Outcome:    req.Outcome,
		Side:       domain.SideBuy,
		Slot:       req.Slot,
		Gross:      req.Payment,
		Net:        net,
		Shares:     shares,
		Fee:        domain.FeeBreakdown{RateBps: rate, Amount: fee, Split: split},
		SpotBefore: spotBefore,
		SpotAfter:  spotAfter,
		ExecutedAt: e.now().UTC(),
	}
	e.notifyTrade(ctx, receipt)

	slog.Debug("buy executed",
		"market", m.ID, "trader", req.Trader, "outcome", req.Outcome,
		"gross", req.Payment, "net", net, "shares", shares, "fee_bps", rate,
	)
	return receipt, nil
}

// Sell ejecuta una venta: el refund bruto de la curva se clampa al vault
// disponible y el exit fee se calcula sobre el refund ya clampeado.
func (e *Engine) Sell(ctx context.Context, req SellRequest) (domain.TradeReceipt, error) {
	if req.Shares == 0 {
		return domain.TradeReceipt{}, domain.ErrZeroAmount
	}

	m, err := e.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	if err := tradeable(m, e.now()); err != nil {
		return domain.TradeReceipt{}, err
	}
	if !m.ValidOutcome(req.Outcome) {
		return domain.TradeReceipt{}, domain.ErrInvalidOutcome
	}

	pos, err := e.store.GetPosition(ctx, m.ID, req.Trader, req.Outcome)
	if errors.Is(err, domain.ErrPositionNotFound) {
		return domain.TradeReceipt{}, domain.ErrInsufficientShares
	} else if err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: load position: %w", err)
	}
	if pos.Shares < req.Shares {
		return domain.TradeReceipt{}, domain.ErrInsufficientShares
	}

	curve, err := domain.NewCurve(m.Curve)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	st := m.Outcomes[req.Outcome]
	spotBefore, err := curve.Spot(st)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	gross, err := curve.Refund(st, req.Shares)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	// Clamp al vault: el shortfall por redondeo no bloquea la venta.
	refund := gross
	if refund > m.VaultBalance {
		refund = m.VaultBalance
	}

	rate := m.Fees.TradeFeeBps(m.Fees.ExitBps, m.LastTrader, m.LastTradeSlot, req.Trader, req.Slot, curve.Endgame(st))
	fee, err := domain.FeeAmount(refund, rate)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	net := refund - fee
	if net < req.MinPaymentOut {
		return domain.TradeReceipt{}, domain.ErrSlippage
	}

	newSt, err := curve.Apply(st, req.Shares, false)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	split, err := m.Fees.Split(fee, m.Creator == e.cfg.Treasury)
	if err != nil {
		return domain.TradeReceipt{}, err
	}

	if err := e.shares.Burn(ctx, m.ID, req.Trader, req.Outcome, req.Shares); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: burn shares: %w", err)
	}
	if refund > 0 {
		if err := e.ledger.Debit(ctx, VaultAccount(m.ID), refund); err != nil {
			return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: debit vault: %w", err)
		}
	}
	if net > 0 {
		if err := e.ledger.Credit(ctx, req.Trader, net); err != nil {
			return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: credit trader: %w", err)
		}
	}
	if err := e.routeFee(ctx, m.Creator, split); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: %w", err)
	}

	m.Outcomes[req.Outcome] = newSt
	m.VaultBalance -= refund
	m.LastTrader = req.Trader
	m.LastTradeSlot = req.Slot
	if err := e.store.SaveMarket(ctx, m); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: save market: %w", err)
	}

	pos.Shares -= req.Shares
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: save position: %w", err)
	}
	if err := e.store.BumpStats(ctx, 0, refund, fee); err != nil {
		return domain.TradeReceipt{}, fmt.Errorf("engine.Sell: bump stats: %w", err)
	}

	spotAfter, err := curve.Spot(newSt)
	if err != nil {
		return domain.TradeReceipt{}, err
	}
	receipt := domain.TradeReceipt{
		MarketID:   m.ID,
		Trader:     req.Trader,
		Outcome:    req.Outcome,
		Side:       domain.SideSell,
		Slot:       req.Slot,
		Gross:      refund,
		Net:        net,
		Shares:     req.Shares,
		Fee:        domain.FeeBreakdown{RateBps: rate, Amount: fee, Split: split},
		SpotBefore: spotBefore,
		SpotAfter:  spotAfter,
		ExecutedAt: e.now().UTC(),
	}
	e.notifyTrade(ctx, receipt)

	slog.Debug("sell executed",
		"market", m.ID, "trader", req.Trader, "outcome", req.Outcome,
		"refund", refund, "net", net, "shares", req.Shares, "fee_bps", rate,
	)
	return receipt, nil
}

// tradeable valida que el mercado acepta trades en `now` con el error de
// estado específico de cada caso.
func tradeable(m domain.Market, now time.Time) error {
	if m.Status != domain.StatusActive {
		if m.Status == domain.StatusLocked {
			return domain.ErrMarketLocked
		}
		return domain.ErrMarketNotActive
	}
	if !now.Before(m.Deadline) {
		return domain.ErrMarketNotActive
	}
	if m.InLockWindow(now) {
		return domain.ErrMarketLocked
	}
	return nil
}

// checkImpact rechaza el trade si el precio medio realizado supera el spot
// pre-trade en más de maxBps. maxBps 0 desactiva el límite.
func checkImpact(spotBefore, net, shares, maxBps uint64) error {
	if maxBps == 0 || shares == 0 {
		return nil
	}
	// avg y límite comparados en cruz para no perder precisión:
	// net·ShareScale/shares > spot·(1+max) ⇔ net·ShareScale·10000 > spot·(10000+max)·shares
	lhs := new(uint256.Int).Mul(u256(net), u256(domain.ShareScale))
	lhs.Mul(lhs, u256(domain.BpsDenominator))
	rhs := new(uint256.Int).Mul(u256(spotBefore), u256(domain.BpsDenominator+maxBps))
	rhs.Mul(rhs, u256(shares))
	if lhs.Gt(rhs) {
		return domain.ErrPriceImpact
	}
	return nil
}

func u256(v uint64) *uint256.Int {
	return new(uint256.Int).SetUint64(v)
}
