package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL. The config is a
// singleton row.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a new ConfigStore backed by the given connection pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

var _ domain.ConfigStore = (*ConfigStore)(nil)

// Get returns the stored global config, or ErrNotFound before the first Put.
func (s *ConfigStore) Get(ctx context.Context) (domain.GlobalConfig, error) {
	var (
		cfg                       domain.GlobalConfig
		admin, backend, feeWallet string
		protoBps, resolverBps     int32
		lpBps, propBps, dispBps   int32
		delaySecs, periodSecs     int64
		reputation                int32
	)
	err := s.pool.QueryRow(ctx, `
		SELECT admin, backend_authority, protocol_fee_wallet,
			protocol_fee_bps, resolver_fee_bps, lp_fee_bps,
			proposal_threshold_bps, dispute_threshold_bps,
			min_resolution_delay_s, dispute_period_s,
			min_resolver_reputation, paused, updated_at
		FROM global_config WHERE id = 1`,
	).Scan(
		&admin, &backend, &feeWallet,
		&protoBps, &resolverBps, &lpBps,
		&propBps, &dispBps,
		&delaySecs, &periodSecs,
		&reputation, &cfg.Paused, &cfg.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.GlobalConfig{}, domain.ErrNotFound
		}
		return domain.GlobalConfig{}, fmt.Errorf("postgres: get config: %w", err)
	}

	cfg.Admin = common.HexToAddress(admin)
	cfg.BackendAuthority = common.HexToAddress(backend)
	cfg.ProtocolFeeWallet = common.HexToAddress(feeWallet)
	cfg.ProtocolFeeBps = uint16(protoBps)
	cfg.ResolverFeeBps = uint16(resolverBps)
	cfg.LPFeeBps = uint16(lpBps)
	cfg.ProposalThresholdBps = uint16(propBps)
	cfg.DisputeThresholdBps = uint16(dispBps)
	cfg.MinResolutionDelay = time.Duration(delaySecs) * time.Second
	cfg.DisputePeriod = time.Duration(periodSecs) * time.Second
	cfg.MinResolverReputation = uint16(reputation)
	return cfg, nil
}

// Put stores the global config, replacing any existing row atomically.
func (s *ConfigStore) Put(ctx context.Context, cfg domain.GlobalConfig) error {
	const query = `
		INSERT INTO global_config (
			id, admin, backend_authority, protocol_fee_wallet,
			protocol_fee_bps, resolver_fee_bps, lp_fee_bps,
			proposal_threshold_bps, dispute_threshold_bps,
			min_resolution_delay_s, dispute_period_s,
			min_resolver_reputation, paused, updated_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			admin                   = EXCLUDED.admin,
			backend_authority       = EXCLUDED.backend_authority,
			protocol_fee_wallet     = EXCLUDED.protocol_fee_wallet,
			protocol_fee_bps        = EXCLUDED.protocol_fee_bps,
			resolver_fee_bps        = EXCLUDED.resolver_fee_bps,
			lp_fee_bps              = EXCLUDED.lp_fee_bps,
			proposal_threshold_bps  = EXCLUDED.proposal_threshold_bps,
			dispute_threshold_bps   = EXCLUDED.dispute_threshold_bps,
			min_resolution_delay_s  = EXCLUDED.min_resolution_delay_s,
			dispute_period_s        = EXCLUDED.dispute_period_s,
			min_resolver_reputation = EXCLUDED.min_resolver_reputation,
			paused                  = EXCLUDED.paused,
			updated_at              = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		cfg.Admin.Hex(), cfg.BackendAuthority.Hex(), cfg.ProtocolFeeWallet.Hex(),
		int32(cfg.ProtocolFeeBps), int32(cfg.ResolverFeeBps), int32(cfg.LPFeeBps),
		int32(cfg.ProposalThresholdBps), int32(cfg.DisputeThresholdBps),
		int64(cfg.MinResolutionDelay/time.Second), int64(cfg.DisputePeriod/time.Second),
		int32(cfg.MinResolverReputation), cfg.Paused, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: put config: %w", err)
	}
	return nil
}
