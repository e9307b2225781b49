package storage

// sqlite.go: persistencia de mercados, posiciones y stats de protocolo.
//
// Estrategia:
//   - `markets`: una fila por mercado con curva y fees aplanados en
//     columnas (los params son inmutables, no hace falta versionar).
//   - `outcomes`: una fila por (market, idx) con supply y reservas.
//   - `positions`: una fila por (market, holder, outcome).
//   - `protocol_stats`: singleton con los contadores agregados.
// El host serializa las transiciones por mercado, así que no hay locking
// por fila propio: el mutex protege solo la conexión única de SQLite.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/genio/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS markets (
    id              TEXT PRIMARY KEY,
    creator         TEXT    NOT NULL,
    title           TEXT    NOT NULL,
    num_outcomes    INTEGER NOT NULL,
    vault_balance   INTEGER NOT NULL DEFAULT 0,
    snapshot_pot    INTEGER NOT NULL DEFAULT 0,
    status          INTEGER NOT NULL DEFAULT 0,
    winning         INTEGER NOT NULL DEFAULT -1,
    deadline        DATETIME NOT NULL,
    lock_window_s   INTEGER NOT NULL DEFAULT 0,
    resolved_at     DATETIME,
    symbol          TEXT    NOT NULL DEFAULT '',
    strike          INTEGER NOT NULL DEFAULT 0,
    final_price     INTEGER NOT NULL DEFAULT 0,
    last_trader     TEXT    NOT NULL DEFAULT '',
    last_trade_slot INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,

    curve_family    INTEGER NOT NULL,
    total_supply    INTEGER NOT NULL DEFAULT 0,
    phase1_end      INTEGER NOT NULL DEFAULT 0,
    phase2_end      INTEGER NOT NULL DEFAULT 0,
    price_start     INTEGER NOT NULL DEFAULT 0,
    price_p1        INTEGER NOT NULL DEFAULT 0,
    price_p2        INTEGER NOT NULL DEFAULT 0,
    price_max       INTEGER NOT NULL DEFAULT 0,
    slope_k         INTEGER NOT NULL DEFAULT 0,
    virtual_anchor  INTEGER NOT NULL DEFAULT 0,
    seed_value      INTEGER NOT NULL DEFAULT 0,
    seed_shares     INTEGER NOT NULL DEFAULT 0,
    endgame_bps     INTEGER NOT NULL DEFAULT 0,
    search_iters    INTEGER NOT NULL DEFAULT 0,
    search_prec     INTEGER NOT NULL DEFAULT 0,

    entry_bps       INTEGER NOT NULL DEFAULT 0,
    exit_bps        INTEGER NOT NULL DEFAULT 0,
    resolution_bps  INTEGER NOT NULL DEFAULT 0,
    same_slot_bps   INTEGER NOT NULL DEFAULT 0,
    endgame_fee_bps INTEGER NOT NULL DEFAULT 0,
    creator_bps     INTEGER NOT NULL DEFAULT 0,
    insurance_bps   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
    market_id      TEXT    NOT NULL,
    idx            INTEGER NOT NULL,
    supply         INTEGER NOT NULL DEFAULT 0,
    reserve_value  INTEGER NOT NULL DEFAULT 0,
    reserve_shares INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (market_id, idx)
);

CREATE TABLE IF NOT EXISTS positions (
    market_id TEXT    NOT NULL,
    holder    TEXT    NOT NULL,
    outcome   INTEGER NOT NULL,
    shares    INTEGER NOT NULL DEFAULT 0,
    claimed   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (market_id, holder, outcome)
);

CREATE TABLE IF NOT EXISTS accounts (
    account TEXT PRIMARY KEY,
    balance INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS holdings (
    market_id TEXT    NOT NULL,
    holder    TEXT    NOT NULL,
    outcome   INTEGER NOT NULL,
    shares    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (market_id, holder, outcome)
);

CREATE TABLE IF NOT EXISTS protocol_stats (
    id            INTEGER PRIMARY KEY CHECK (id = 1),
    total_markets INTEGER NOT NULL DEFAULT 0,
    total_volume  INTEGER NOT NULL DEFAULT 0,
    total_fees    INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO protocol_stats (id) VALUES (1);

CREATE INDEX IF NOT EXISTS idx_markets_deadline ON markets(status, deadline);
CREATE INDEX IF NOT EXISTS idx_positions_holder ON positions(market_id, holder);
`

// SQLiteStore implementa ports.MarketStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica
// el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveMarket hace upsert del mercado y reemplaza sus outcomes en una tx.
func (s *SQLiteStore) SaveMarket(ctx context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket: begin tx: %w", err)
	}
	defer tx.Rollback()

	var resolvedAt any
	if !m.ResolvedAt.IsZero() {
		resolvedAt = m.ResolvedAt.UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO markets (
			id, creator, title, num_outcomes, vault_balance, snapshot_pot,
			status, winning, deadline, lock_window_s, resolved_at,
			symbol, strike, final_price, last_trader, last_trade_slot, created_at,
			curve_family, total_supply, phase1_end, phase2_end,
			price_start, price_p1, price_p2, price_max, slope_k, virtual_anchor,
			seed_value, seed_shares, endgame_bps, search_iters, search_prec,
			entry_bps, exit_bps, resolution_bps, same_slot_bps,
			endgame_fee_bps, creator_bps, insurance_bps
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			vault_balance   = excluded.vault_balance,
			snapshot_pot    = excluded.snapshot_pot,
			status          = excluded.status,
			winning         = excluded.winning,
			resolved_at     = excluded.resolved_at,
			final_price     = excluded.final_price,
			last_trader     = excluded.last_trader,
			last_trade_slot = excluded.last_trade_slot`,
		m.ID, m.Creator, m.Title, m.NumOutcomes, int64(m.VaultBalance), int64(m.SnapshotPot),
		int(m.Status), m.Winning, m.Deadline.UTC(), int64(m.LockWindow/time.Second), resolvedAt,
		m.Symbol, int64(m.Strike), int64(m.FinalPrice), m.LastTrader, int64(m.LastTradeSlot), m.CreatedAt.UTC(),
		int(m.Curve.Family), int64(m.Curve.TotalSupply), int64(m.Curve.Phase1End), int64(m.Curve.Phase2End),
		int64(m.Curve.PriceStart), int64(m.Curve.PriceP1), int64(m.Curve.PriceP2), int64(m.Curve.PriceMax),
		int64(m.Curve.SlopeK), int64(m.Curve.VirtualAnchor),
		int64(m.Curve.SeedValue), int64(m.Curve.SeedShares), int64(m.Curve.EndgameBps),
		m.Curve.SearchIterations, int64(m.Curve.SearchPrecision),
		int64(m.Fees.EntryBps), int64(m.Fees.ExitBps), int64(m.Fees.ResolutionBps), int64(m.Fees.SameSlotBps),
		int64(m.Fees.EndgameFeeBps), int64(m.Fees.CreatorBps), int64(m.Fees.InsuranceBps),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket: upsert market: %w", err)
	}

	for i, o := range m.Outcomes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outcomes (market_id, idx, supply, reserve_value, reserve_shares)
			VALUES (?,?,?,?,?)
			ON CONFLICT(market_id, idx) DO UPDATE SET
				supply         = excluded.supply,
				reserve_value  = excluded.reserve_value,
				reserve_shares = excluded.reserve_shares`,
			m.ID, i, int64(o.Supply), int64(o.ReserveValue), int64(o.ReserveShares),
		)
		if err != nil {
			return fmt.Errorf("storage.SaveMarket: upsert outcome %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveMarket: commit: %w", err)
	}
	return nil
}

// GetMarket devuelve el mercado con sus outcomes.
func (s *SQLiteStore) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, selectMarket+` WHERE id = ?`, id)
	m, err := scanMarket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, domain.ErrMarketNotFound
	} else if err != nil {
		return domain.Market{}, fmt.Errorf("storage.GetMarket: %w", err)
	}

	if err := s.loadOutcomes(ctx, &m); err != nil {
		return domain.Market{}, fmt.Errorf("storage.GetMarket: %w", err)
	}
	return m, nil
}

// ListDue devuelve los mercados no resueltos con deadline vencido.
func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time) ([]domain.Market, error) {
	return s.listMarkets(ctx, ` WHERE status != ? AND deadline <= ? ORDER BY deadline`,
		int(domain.StatusResolved), now.UTC())
}

// ListMarkets devuelve todos los mercados, más recientes primero.
func (s *SQLiteStore) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	return s.listMarkets(ctx, ` ORDER BY created_at DESC`)
}

func (s *SQLiteStore) listMarkets(ctx context.Context, clause string, args ...any) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, selectMarket+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.listMarkets: query: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.listMarkets: scan: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.listMarkets: rows: %w", err)
	}

	for i := range markets {
		if err := s.loadOutcomes(ctx, &markets[i]); err != nil {
			return nil, fmt.Errorf("storage.listMarkets: %w", err)
		}
	}
	return markets, nil
}

// SavePosition hace upsert de la posición.
func (s *SQLiteStore) SavePosition(ctx context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (market_id, holder, outcome, shares, claimed)
		VALUES (?,?,?,?,?)
		ON CONFLICT(market_id, holder, outcome) DO UPDATE SET
			shares  = excluded.shares,
			claimed = excluded.claimed`,
		p.MarketID, p.Holder, p.Outcome, int64(p.Shares), p.Claimed,
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %w", err)
	}
	return nil
}

// GetPosition devuelve la posición o domain.ErrPositionNotFound.
func (s *SQLiteStore) GetPosition(ctx context.Context, marketID, holder string, outcome int) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p domain.Position
	var shares int64
	err := s.db.QueryRowContext(ctx, `
		SELECT market_id, holder, outcome, shares, claimed
		FROM positions WHERE market_id = ? AND holder = ? AND outcome = ?`,
		marketID, holder, outcome,
	).Scan(&p.MarketID, &p.Holder, &p.Outcome, &shares, &p.Claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, domain.ErrPositionNotFound
	} else if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition: %w", err)
	}
	p.Shares = uint64(shares)
	return p, nil
}

// PositionsByHolder devuelve las posiciones del holder en un mercado.
func (s *SQLiteStore) PositionsByHolder(ctx context.Context, marketID, holder string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, holder, outcome, shares, claimed
		FROM positions WHERE market_id = ? AND holder = ? ORDER BY outcome`,
		marketID, holder,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.PositionsByHolder: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var shares int64
		if err := rows.Scan(&p.MarketID, &p.Holder, &p.Outcome, &shares, &p.Claimed); err != nil {
			return nil, fmt.Errorf("storage.PositionsByHolder: scan: %w", err)
		}
		p.Shares = uint64(shares)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// BumpStats acumula los contadores de protocolo.
func (s *SQLiteStore) BumpStats(ctx context.Context, markets, volume, fees uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE protocol_stats SET
			total_markets = total_markets + ?,
			total_volume  = total_volume + ?,
			total_fees    = total_fees + ?
		WHERE id = 1`,
		int64(markets), int64(volume), int64(fees),
	)
	if err != nil {
		return fmt.Errorf("storage.BumpStats: %w", err)
	}
	return nil
}

// Stats devuelve los contadores agregados.
func (s *SQLiteStore) Stats(ctx context.Context) (domain.ProtocolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var markets, volume, fees int64
	err := s.db.QueryRowContext(ctx, `
		SELECT total_markets, total_volume, total_fees FROM protocol_stats WHERE id = 1`,
	).Scan(&markets, &volume, &fees)
	if err != nil {
		return domain.ProtocolStats{}, fmt.Errorf("storage.Stats: %w", err)
	}
	return domain.ProtocolStats{
		TotalMarkets:       uint64(markets),
		TotalVolume:        uint64(volume),
		TotalFeesCollected: uint64(fees),
	}, nil
}

// Close cierra la conexión a la base de datos limpiamente.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectMarket = `
	SELECT id, creator, title, num_outcomes, vault_balance, snapshot_pot,
		status, winning, deadline, lock_window_s, resolved_at,
		symbol, strike, final_price, last_trader, last_trade_slot, created_at,
		curve_family, total_supply, phase1_end, phase2_end,
		price_start, price_p1, price_p2, price_max, slope_k, virtual_anchor,
		seed_value, seed_shares, endgame_bps, search_iters, search_prec,
		entry_bps, exit_bps, resolution_bps, same_slot_bps,
		endgame_fee_bps, creator_bps, insurance_bps
	FROM markets`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (domain.Market, error) {
	var m domain.Market
	var vault, snapshot, lockWindowS, strike, finalPrice, lastSlot int64
	var totalSupply, p1End, p2End, pStart, pP1, pP2, pMax, slopeK, anchor int64
	var seedValue, seedShares, endgameBps, searchPrec int64
	var entry, exit, resolution, sameSlot, endgameFee, creatorBps, insuranceBps int64
	var status, family, searchIters int
	var resolvedAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.Creator, &m.Title, &m.NumOutcomes, &vault, &snapshot,
		&status, &m.Winning, &m.Deadline, &lockWindowS, &resolvedAt,
		&m.Symbol, &strike, &finalPrice, &m.LastTrader, &lastSlot, &m.CreatedAt,
		&family, &totalSupply, &p1End, &p2End,
		&pStart, &pP1, &pP2, &pMax, &slopeK, &anchor,
		&seedValue, &seedShares, &endgameBps, &searchIters, &searchPrec,
		&entry, &exit, &resolution, &sameSlot,
		&endgameFee, &creatorBps, &insuranceBps,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.VaultBalance = uint64(vault)
	m.SnapshotPot = uint64(snapshot)
	m.Status = domain.MarketStatus(status)
	m.LockWindow = time.Duration(lockWindowS) * time.Second
	if resolvedAt.Valid {
		m.ResolvedAt = resolvedAt.Time
	}
	m.Strike = uint64(strike)
	m.FinalPrice = uint64(finalPrice)
	m.LastTradeSlot = uint64(lastSlot)
	m.Curve = domain.CurveParams{
		Family:           domain.CurveFamily(family),
		TotalSupply:      uint64(totalSupply),
		Phase1End:        uint64(p1End),
		Phase2End:        uint64(p2End),
		PriceStart:       uint64(pStart),
		PriceP1:          uint64(pP1),
		PriceP2:          uint64(pP2),
		PriceMax:         uint64(pMax),
		SlopeK:           uint64(slopeK),
		VirtualAnchor:    uint64(anchor),
		SeedValue:        uint64(seedValue),
		SeedShares:       uint64(seedShares),
		EndgameBps:       uint64(endgameBps),
		SearchIterations: searchIters,
		SearchPrecision:  uint64(searchPrec),
	}
	m.Fees = domain.FeeParams{
		EntryBps:      uint64(entry),
		ExitBps:       uint64(exit),
		ResolutionBps: uint64(resolution),
		SameSlotBps:   uint64(sameSlot),
		EndgameFeeBps: uint64(endgameFee),
		CreatorBps:    uint64(creatorBps),
		InsuranceBps:  uint64(insuranceBps),
	}
	return m, nil
}

func (s *SQLiteStore) loadOutcomes(ctx context.Context, m *domain.Market) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, supply, reserve_value, reserve_shares
		FROM outcomes WHERE market_id = ? ORDER BY idx`, m.ID)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}
	defer rows.Close()

	m.Outcomes = make([]domain.OutcomeState, m.NumOutcomes)
	for rows.Next() {
		var idx int
		var supply, rv, rs int64
		if err := rows.Scan(&idx, &supply, &rv, &rs); err != nil {
			return fmt.Errorf("scan outcome: %w", err)
		}
		if idx >= 0 && idx < len(m.Outcomes) {
			m.Outcomes[idx] = domain.OutcomeState{
				Supply:        uint64(supply),
				ReserveValue:  uint64(rv),
				ReserveShares: uint64(rs),
			}
		}
	}
	return rows.Err()
}
