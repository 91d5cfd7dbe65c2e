package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// ConfigService owns the global protocol configuration. Reads fall back to
// defaults until an admin writes the first config row.
type ConfigService struct {
	config   domain.ConfigStore
	defaults domain.GlobalConfig
	emitter
	now func() time.Time
}

// NewConfigService creates a ConfigService seeded with the given defaults.
func NewConfigService(
	config domain.ConfigStore,
	defaults domain.GlobalConfig,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ConfigService {
	return &ConfigService{
		config:   config,
		defaults: defaults,
		emitter:  emitter{bus: bus, audit: audit, logger: logger},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the current global config, or the configured defaults when no
// row has been written yet.
func (s *ConfigService) Get(ctx context.Context) (domain.GlobalConfig, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.defaults, nil
		}
		return domain.GlobalConfig{}, fmt.Errorf("config_service: get config: %w", err)
	}
	return cfg, nil
}

// EnsureDefault writes the default config if none exists yet. Called once at
// startup so every later read sees a persisted row.
func (s *ConfigService) EnsureDefault(ctx context.Context) error {
	_, err := s.config.Get(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("config_service: get config: %w", err)
	}
	cfg := s.defaults
	cfg.UpdatedAt = s.now()
	if err := s.config.Put(ctx, cfg); err != nil {
		return fmt.Errorf("config_service: seed default config: %w", err)
	}
	s.logger.InfoContext(ctx, "config_service: default config seeded",
		slog.String("admin", cfg.Admin.Hex()),
	)
	return nil
}

// UpdateGlobalConfig replaces the config wholesale. Only the current admin
// may call it, and the new config must validate before it is stored.
func (s *ConfigService) UpdateGlobalConfig(ctx context.Context, caller common.Address, next domain.GlobalConfig) error {
	current, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if caller != current.Admin {
		return domain.ErrUnauthorized
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("config_service: validate config: %w", err)
	}

	now := s.now()
	next.UpdatedAt = now
	if err := s.config.Put(ctx, next); err != nil {
		return fmt.Errorf("config_service: store config: %w", err)
	}

	s.emit(ctx, domain.EventConfigUpdated, common.Hash{}, now, map[string]any{
		"admin":                  next.Admin.Hex(),
		"backend_authority":      next.BackendAuthority.Hex(),
		"protocol_fee_bps":       next.ProtocolFeeBps,
		"resolver_fee_bps":       next.ResolverFeeBps,
		"lp_fee_bps":             next.LPFeeBps,
		"proposal_threshold_bps": next.ProposalThresholdBps,
		"dispute_threshold_bps":  next.DisputeThresholdBps,
	})
	s.logger.InfoContext(ctx, "config_service: global config updated",
		slog.String("caller", caller.Hex()),
	)
	return nil
}

// SetPaused toggles the protocol pause flag. The admin or the backend
// authority may flip it.
func (s *ConfigService) SetPaused(ctx context.Context, caller common.Address, paused bool) error {
	cfg, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if caller != cfg.Admin && caller != cfg.BackendAuthority {
		return domain.ErrUnauthorized
	}
	if cfg.Paused == paused {
		return nil
	}

	now := s.now()
	cfg.Paused = paused
	cfg.UpdatedAt = now
	if err := s.config.Put(ctx, cfg); err != nil {
		return fmt.Errorf("config_service: store config: %w", err)
	}

	s.emit(ctx, domain.EventProtocolPaused, common.Hash{}, now, map[string]any{
		"paused": paused,
		"caller": caller.Hex(),
	})
	s.logger.WarnContext(ctx, "config_service: pause flag changed",
		slog.Bool("paused", paused),
		slog.String("caller", caller.Hex()),
	)
	return nil
}
