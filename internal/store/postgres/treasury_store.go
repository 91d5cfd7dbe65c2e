package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// TreasuryStore implements domain.Treasury using PostgreSQL. Balances never
// go negative: debits are conditional updates and transfers run in a single
// transaction.
type TreasuryStore struct {
	pool *pgxpool.Pool
}

// NewTreasuryStore creates a new TreasuryStore backed by the given connection pool.
func NewTreasuryStore(pool *pgxpool.Pool) *TreasuryStore {
	return &TreasuryStore{pool: pool}
}

var _ domain.Treasury = (*TreasuryStore)(nil)

// Balance returns an account's balance. Unknown accounts hold zero.
func (s *TreasuryStore) Balance(ctx context.Context, account common.Address) (uint64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM treasury_accounts WHERE account = $1`, account.Hex(),
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("postgres: balance %s: %w", account.Hex(), err)
	}
	return uint64(balance), nil
}

// Credit adds amount to an account, creating it on first use.
func (s *TreasuryStore) Credit(ctx context.Context, account common.Address, amount uint64) error {
	return credit(ctx, s.pool, account, amount)
}

// Debit removes amount from an account, failing when the balance is short.
func (s *TreasuryStore) Debit(ctx context.Context, account common.Address, amount uint64) error {
	return debit(ctx, s.pool, account, amount)
}

// Transfer atomically moves amount between two accounts.
func (s *TreasuryStore) Transfer(ctx context.Context, from, to common.Address, amount uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := debit(ctx, tx, from, amount); err != nil {
		return err
	}
	if err := credit(ctx, tx, to, amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}

// pgxExecutor is the subset of pgx shared by pools and transactions.
type pgxExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func credit(ctx context.Context, db pgxExecutor, account common.Address, amount uint64) error {
	const query = `
		INSERT INTO treasury_accounts (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET
			balance    = treasury_accounts.balance + EXCLUDED.balance,
			updated_at = NOW()`
	if _, err := db.Exec(ctx, query, account.Hex(), int64(amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account.Hex(), err)
	}
	return nil
}

func debit(ctx context.Context, db pgxExecutor, account common.Address, amount uint64) error {
	const query = `
		UPDATE treasury_accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE account = $1 AND balance >= $2`
	tag, err := db.Exec(ctx, query, account.Hex(), int64(amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", account.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: debit %s: insufficient balance", account.Hex())
	}
	return nil
}
