package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketCols = `id, creator, state, question, evidence_hash,
	b_parameter, initial_liquidity, current_liquidity, shares_yes, shares_no, total_volume,
	resolver, proposed_outcome, final_outcome, dispute_initiator, was_disputed,
	accrued_protocol_fees, accrued_resolver_fees, accrued_lp_fees,
	proposal_likes, proposal_dislikes, dispute_agree, dispute_disagree,
	created_at, approved_at, activated_at, resolution_proposed_at,
	disputed_at, finalized_at, cancelled_at`

func marketArgs(m domain.Market) []any {
	return []any{
		m.ID.Hex(), m.Creator.Hex(), int16(m.State), m.Question, m.EvidenceHash,
		int64(m.BParameter), int64(m.InitialLiquidity), int64(m.CurrentLiquidity),
		int64(m.SharesYes), int64(m.SharesNo), int64(m.TotalVolume),
		m.Resolver.Hex(), int16(m.ProposedOutcome), int16(m.FinalOutcome),
		m.DisputeInitiator.Hex(), m.WasDisputed,
		int64(m.AccruedProtocolFees), int64(m.AccruedResolverFees), int64(m.AccruedLPFees),
		int64(m.ProposalLikes), int64(m.ProposalDislikes),
		int64(m.DisputeAgree), int64(m.DisputeDisagree),
		m.CreatedAt, m.ApprovedAt, m.ActivatedAt, m.ResolutionProposedAt,
		m.DisputedAt, m.FinalizedAt, m.CancelledAt,
	}
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                                domain.Market
		id, creator, resolver, initiator string
		state, proposed, final           int16
		bParam, initLiq, curLiq          int64
		sharesYes, sharesNo, volume      int64
		protoFees, resolverFees, lpFees  int64
		likes, dislikes, agree, disagree int64
	)
	err := row.Scan(
		&id, &creator, &state, &m.Question, &m.EvidenceHash,
		&bParam, &initLiq, &curLiq, &sharesYes, &sharesNo, &volume,
		&resolver, &proposed, &final, &initiator, &m.WasDisputed,
		&protoFees, &resolverFees, &lpFees,
		&likes, &dislikes, &agree, &disagree,
		&m.CreatedAt, &m.ApprovedAt, &m.ActivatedAt, &m.ResolutionProposedAt,
		&m.DisputedAt, &m.FinalizedAt, &m.CancelledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = common.HexToHash(id)
	m.Creator = common.HexToAddress(creator)
	m.State = domain.MarketState(state)
	m.BParameter = uint64(bParam)
	m.InitialLiquidity = uint64(initLiq)
	m.CurrentLiquidity = uint64(curLiq)
	m.SharesYes = uint64(sharesYes)
	m.SharesNo = uint64(sharesNo)
	m.TotalVolume = uint64(volume)
	m.Resolver = common.HexToAddress(resolver)
	m.ProposedOutcome = domain.Outcome(proposed)
	m.FinalOutcome = domain.Outcome(final)
	m.DisputeInitiator = common.HexToAddress(initiator)
	m.AccruedProtocolFees = uint64(protoFees)
	m.AccruedResolverFees = uint64(resolverFees)
	m.AccruedLPFees = uint64(lpFees)
	m.ProposalLikes = uint64(likes)
	m.ProposalDislikes = uint64(dislikes)
	m.DisputeAgree = uint64(agree)
	m.DisputeDisagree = uint64(disagree)
	return m, nil
}

// Create inserts a new market. Fails with ErrAlreadyExists when the id is
// already taken.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (` + marketCols + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29, $30
		)`
	if _, err := s.pool.Exec(ctx, query, marketArgs(m)...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create market %s: %w", m.ID.Hex(), err)
	}
	return nil
}

// Update replaces an existing market row.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			creator = $2, state = $3, question = $4, evidence_hash = $5,
			b_parameter = $6, initial_liquidity = $7, current_liquidity = $8,
			shares_yes = $9, shares_no = $10, total_volume = $11,
			resolver = $12, proposed_outcome = $13, final_outcome = $14,
			dispute_initiator = $15, was_disputed = $16,
			accrued_protocol_fees = $17, accrued_resolver_fees = $18, accrued_lp_fees = $19,
			proposal_likes = $20, proposal_dislikes = $21,
			dispute_agree = $22, dispute_disagree = $23,
			created_at = $24, approved_at = $25, activated_at = $26,
			resolution_proposed_at = $27, disputed_at = $28,
			finalized_at = $29, cancelled_at = $30,
			updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, marketArgs(m)...)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a market by its id.
func (s *MarketStore) GetByID(ctx context.Context, id common.Hash) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id.Hex())
	m, err := scanMarket(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id.Hex(), err)
	}
	return m, nil
}

// ListByState returns markets in the given state with pagination and optional
// time filtering.
func (s *MarketStore) ListByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, `SELECT `+marketCols+` FROM markets WHERE state = $1`,
		[]any{int16(state)}, opts)
}

// List returns markets with pagination and optional time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx, `SELECT `+marketCols+` FROM markets WHERE 1=1`, nil, opts)
}

func (s *MarketStore) list(ctx context.Context, query string, args []any, opts domain.ListOpts) ([]domain.Market, error) {
	argIdx := len(args) + 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}
