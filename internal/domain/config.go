package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Default protocol parameters, applied when no stored config exists yet.
const (
	DefaultProtocolFeeBps          uint16 = 300
	DefaultResolverFeeBps          uint16 = 200
	DefaultLPFeeBps                uint16 = 500
	DefaultProposalThresholdBps    uint16 = 7000
	DefaultDisputeThresholdBps     uint16 = 6000
	DefaultMinResolutionDelay             = 24 * time.Hour
	DefaultDisputePeriod                  = 72 * time.Hour
	DefaultMinResolverReputation   uint16 = 8000
)

// GlobalConfig holds protocol-wide parameters shared by all markets.
type GlobalConfig struct {
	Admin              common.Address
	BackendAuthority   common.Address
	ProtocolFeeWallet  common.Address

	ProtocolFeeBps uint16
	ResolverFeeBps uint16
	LPFeeBps       uint16

	// Vote thresholds in basis points, compared inclusively.
	ProposalThresholdBps uint16
	DisputeThresholdBps  uint16

	// MinResolutionDelay is the minimum time a market must trade before a
	// resolution can be proposed. DisputePeriod is the challenge window
	// after a proposal.
	MinResolutionDelay time.Duration
	DisputePeriod      time.Duration

	MinResolverReputation uint16

	// Paused halts all trading and lifecycle progression except finalize
	// and claims.
	Paused bool

	UpdatedAt time.Time
}

// DefaultGlobalConfig returns a config with protocol defaults and the given
// authorities.
func DefaultGlobalConfig(admin, backend, feeWallet common.Address) GlobalConfig {
	return GlobalConfig{
		Admin:                 admin,
		BackendAuthority:      backend,
		ProtocolFeeWallet:     feeWallet,
		ProtocolFeeBps:        DefaultProtocolFeeBps,
		ResolverFeeBps:        DefaultResolverFeeBps,
		LPFeeBps:              DefaultLPFeeBps,
		ProposalThresholdBps:  DefaultProposalThresholdBps,
		DisputeThresholdBps:   DefaultDisputeThresholdBps,
		MinResolutionDelay:    DefaultMinResolutionDelay,
		DisputePeriod:         DefaultDisputePeriod,
		MinResolverReputation: DefaultMinResolverReputation,
	}
}

// Validate checks parameter bounds. Every update must pass in full before
// any field is written.
func (c GlobalConfig) Validate() error {
	total := uint32(c.ProtocolFeeBps) + uint32(c.ResolverFeeBps) + uint32(c.LPFeeBps)
	if total > 10_000 {
		return ErrInvalidFeeConfig
	}
	if c.ProposalThresholdBps > 10_000 || c.DisputeThresholdBps > 10_000 {
		return ErrInvalidThreshold
	}
	if c.MinResolutionDelay <= 0 || c.DisputePeriod <= 0 {
		return ErrInvalidTimeLimit
	}
	return nil
}
