package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets.
type MarketStore interface {
	Create(ctx context.Context, market Market) error
	Update(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id common.Hash) (Market, error)
	ListByState(ctx context.Context, state MarketState, opts ListOpts) ([]Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists per-user market positions.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, marketID common.Hash, user common.Address) (Position, error)
	ListByMarket(ctx context.Context, marketID common.Hash, opts ListOpts) ([]Position, error)
	ListByUser(ctx context.Context, user common.Address, opts ListOpts) ([]Position, error)
	// TotalWinningShares sums WinningShares over all positions of a market
	// for the given outcome.
	TotalWinningShares(ctx context.Context, marketID common.Hash, outcome Outcome) (uint64, error)
}

// VoteStore persists vote records. Create must fail with ErrAlreadyExists
// when a record with the same (market, voter, kind) already exists; that
// uniqueness is the duplicate-vote guard.
type VoteStore interface {
	Create(ctx context.Context, vote VoteRecord) error
	Get(ctx context.Context, marketID common.Hash, voter common.Address, kind VoteKind) (VoteRecord, error)
	// Tally returns (approve, reject) counts for one round of one market.
	Tally(ctx context.Context, marketID common.Hash, kind VoteKind) (approve, reject uint64, err error)
	ListByMarket(ctx context.Context, marketID common.Hash, kind VoteKind, opts ListOpts) ([]VoteRecord, error)
}

// ConfigStore persists the protocol-wide configuration singleton.
type ConfigStore interface {
	Get(ctx context.Context) (GlobalConfig, error)
	Put(ctx context.Context, cfg GlobalConfig) error
}

// Treasury tracks value-unit balances for users, fee wallets, and market
// escrows. Implementations must reject debits past zero.
type Treasury interface {
	Balance(ctx context.Context, account common.Address) (uint64, error)
	Credit(ctx context.Context, account common.Address, amount uint64) error
	Debit(ctx context.Context, account common.Address, amount uint64) error
	Transfer(ctx context.Context, from, to common.Address, amount uint64) error
}

// EscrowAddress derives the deterministic account holding a market's
// liquidity.
func EscrowAddress(marketID common.Hash) common.Address {
	h := crypto.Keccak256Hash([]byte("zmart:escrow"), marketID[:])
	return common.BytesToAddress(h[12:])
}

// MaxTransferable returns how much can leave an account without dipping
// below the reserve floor. Never negative: at or below the floor it is zero.
func MaxTransferable(balance, reserve uint64) uint64 {
	if balance <= reserve {
		return 0
	}
	return balance - reserve
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
