package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

var _ domain.PositionStore = (*PositionStore)(nil)

const positionCols = `market_id, user_addr, shares_yes, shares_no,
	total_invested, trades_count, last_trade_at, has_claimed, claimed_amount`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p                            domain.Position
		marketID, user               string
		sharesYes, sharesNo          int64
		totalInvested, claimedAmount int64
		tradesCount                  int32
	)
	err := row.Scan(
		&marketID, &user, &sharesYes, &sharesNo,
		&totalInvested, &tradesCount, &p.LastTradeAt, &p.HasClaimed, &claimedAmount,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.MarketID = common.HexToHash(marketID)
	p.User = common.HexToAddress(user)
	p.SharesYes = uint64(sharesYes)
	p.SharesNo = uint64(sharesNo)
	p.TotalInvested = uint64(totalInvested)
	p.TradesCount = uint32(tradesCount)
	p.ClaimedAmount = uint64(claimedAmount)
	return p, nil
}

// Upsert inserts or replaces a position row.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (` + positionCols + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (market_id, user_addr) DO UPDATE SET
			shares_yes     = EXCLUDED.shares_yes,
			shares_no      = EXCLUDED.shares_no,
			total_invested = EXCLUDED.total_invested,
			trades_count   = EXCLUDED.trades_count,
			last_trade_at  = EXCLUDED.last_trade_at,
			has_claimed    = EXCLUDED.has_claimed,
			claimed_amount = EXCLUDED.claimed_amount,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID.Hex(), p.User.Hex(), int64(p.SharesYes), int64(p.SharesNo),
		int64(p.TotalInvested), int32(p.TradesCount), p.LastTradeAt,
		p.HasClaimed, int64(p.ClaimedAmount),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w",
			p.MarketID.Hex(), p.User.Hex(), err)
	}
	return nil
}

// Get retrieves one user's position in one market.
func (s *PositionStore) Get(ctx context.Context, marketID common.Hash, user common.Address) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 AND user_addr = $2`,
		marketID.Hex(), user.Hex())
	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w",
			marketID.Hex(), user.Hex(), err)
	}
	return p, nil
}

// ListByMarket returns all positions in a market.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID common.Hash, opts domain.ListOpts) ([]domain.Position, error) {
	return s.list(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1`,
		[]any{marketID.Hex()}, opts)
}

// ListByUser returns all positions held by a user.
func (s *PositionStore) ListByUser(ctx context.Context, user common.Address, opts domain.ListOpts) ([]domain.Position, error) {
	return s.list(ctx,
		`SELECT `+positionCols+` FROM positions WHERE user_addr = $1`,
		[]any{user.Hex()}, opts)
}

func (s *PositionStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts) ([]domain.Position, error) {
	argIdx := len(args) + 1

	query += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// TotalWinningShares sums the shares of a market that pay out under the given
// outcome.
func (s *PositionStore) TotalWinningShares(ctx context.Context, marketID common.Hash, outcome domain.Outcome) (uint64, error) {
	var expr string
	switch outcome {
	case domain.OutcomeYes:
		expr = "shares_yes"
	case domain.OutcomeNo:
		expr = "shares_no"
	case domain.OutcomeInvalid:
		expr = "shares_yes + shares_no"
	default:
		return 0, nil
	}

	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(`+expr+`), 0) FROM positions WHERE market_id = $1`,
		marketID.Hex(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: total winning shares %s: %w", marketID.Hex(), err)
	}
	return uint64(total), nil
}
