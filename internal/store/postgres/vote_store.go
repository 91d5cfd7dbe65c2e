package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// VoteStore implements domain.VoteStore using PostgreSQL. The primary key on
// (market_id, voter, kind) is the duplicate-vote guard.
type VoteStore struct {
	pool *pgxpool.Pool
}

// NewVoteStore creates a new VoteStore backed by the given connection pool.
func NewVoteStore(pool *pgxpool.Pool) *VoteStore {
	return &VoteStore{pool: pool}
}

var _ domain.VoteStore = (*VoteStore)(nil)

// Create inserts a ballot. Fails with ErrAlreadyExists when the voter has
// already voted in this round.
func (s *VoteStore) Create(ctx context.Context, v domain.VoteRecord) error {
	const query = `
		INSERT INTO votes (market_id, voter, kind, approve, voted_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, query,
		v.MarketID.Hex(), v.Voter.Hex(), string(v.Kind), v.Approve, v.VotedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create vote %s/%s: %w",
			v.MarketID.Hex(), v.Voter.Hex(), err)
	}
	return nil
}

// Get retrieves one voter's ballot in one round of one market.
func (s *VoteStore) Get(ctx context.Context, marketID common.Hash, voter common.Address, kind domain.VoteKind) (domain.VoteRecord, error) {
	var record domain.VoteRecord
	var id, voterHex, kindStr string
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, voter, kind, approve, voted_at FROM votes
		 WHERE market_id = $1 AND voter = $2 AND kind = $3`,
		marketID.Hex(), voter.Hex(), string(kind),
	).Scan(&id, &voterHex, &kindStr, &record.Approve, &record.VotedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.VoteRecord{}, domain.ErrNotFound
		}
		return domain.VoteRecord{}, fmt.Errorf("postgres: get vote %s/%s: %w",
			marketID.Hex(), voter.Hex(), err)
	}
	record.MarketID = common.HexToHash(id)
	record.Voter = common.HexToAddress(voterHex)
	record.Kind = domain.VoteKind(kindStr)
	return record, nil
}

// Tally returns (approve, reject) counts for one round of one market.
func (s *VoteStore) Tally(ctx context.Context, marketID common.Hash, kind domain.VoteKind) (approve, reject uint64, err error) {
	var forCount, againstCount int64
	err = s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE approve),
			COUNT(*) FILTER (WHERE NOT approve)
		 FROM votes WHERE market_id = $1 AND kind = $2`,
		marketID.Hex(), string(kind),
	).Scan(&forCount, &againstCount)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: tally votes %s: %w", marketID.Hex(), err)
	}
	return uint64(forCount), uint64(againstCount), nil
}

// ListByMarket returns all ballots in one round of one market.
func (s *VoteStore) ListByMarket(ctx context.Context, marketID common.Hash, kind domain.VoteKind, opts domain.ListOpts) ([]domain.VoteRecord, error) {
	query := `SELECT market_id, voter, kind, approve, voted_at FROM votes
		WHERE market_id = $1 AND kind = $2 ORDER BY voted_at ASC`
	args := []any{marketID.Hex(), string(kind)}
	argIdx := 3

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
		return nil, fmt.Errorf("postgres: list votes %s: %w", marketID.Hex(), err)
	}
	defer rows.Close()

	var votes []domain.VoteRecord
	for rows.Next() {
		var record domain.VoteRecord
		var id, voterHex, kindStr string
		if err := rows.Scan(&id, &voterHex, &kindStr, &record.Approve, &record.VotedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan vote: %w", err)
		}
		record.MarketID = common.HexToHash(id)
		record.Voter = common.HexToAddress(voterHex)
		record.Kind = domain.VoteKind(kindStr)
		votes = append(votes, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list votes rows: %w", err)
	}
	return votes, nil
}
