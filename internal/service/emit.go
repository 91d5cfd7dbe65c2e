package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// emitter fans a protocol event out to the pub/sub channel, the durable
// stream, and the audit log. Delivery failures are logged and swallowed;
// event emission never fails the operation that produced it.
type emitter struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

func (e emitter) emit(ctx context.Context, typ string, marketID common.Hash, at time.Time, detail map[string]any) {
	evt := domain.Event{
		Type:   typ,
		At:     at,
		Detail: detail,
	}
	if marketID != (common.Hash{}) {
		evt.MarketID = marketID.Hex()
	}

	payload, err := evt.Encode()
	if err != nil {
		e.logger.WarnContext(ctx, "service: encode event failed",
			slog.String("event", typ),
			slog.String("error", err.Error()),
		)
		return
	}

	if pubErr := e.bus.Publish(ctx, domain.EventChannel, payload); pubErr != nil {
		e.logger.WarnContext(ctx, "service: publish event failed",
			slog.String("event", typ),
			slog.String("error", pubErr.Error()),
		)
	}
	if streamErr := e.bus.StreamAppend(ctx, domain.EventStream, payload); streamErr != nil {
		e.logger.WarnContext(ctx, "service: stream append failed",
			slog.String("event", typ),
			slog.String("error", streamErr.Error()),
		)
	}
	if auditErr := e.audit.Log(ctx, typ, detail); auditErr != nil {
		e.logger.WarnContext(ctx, "service: audit log failed",
			slog.String("event", typ),
			slog.String("error", auditErr.Error()),
		)
	}
}

// lockKey is the distributed-lock key guarding value transfers of a market.
func lockKey(marketID common.Hash) string {
	return "zmart:market:" + marketID.Hex()
}

// lockTTL bounds how long a market lock can be held if a holder dies.
const lockTTL = 30 * time.Second

// maxMarketLifetime is the sanity window for lifecycle timestamps measured
// from market creation. A clock far outside it indicates manipulation.
const maxMarketLifetime = 2 * 365 * 24 * time.Hour

// checkClock validates a lifecycle timestamp: it must not precede any
// already-recorded lifecycle timestamp and must fall within the sanity
// window of market creation.
func checkClock(m *domain.Market, now time.Time) error {
	latest := m.CreatedAt
	for _, ts := range []*time.Time{
		m.ApprovedAt, m.ActivatedAt, m.ResolutionProposedAt, m.DisputedAt,
	} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}
	if now.Before(latest) {
		return domain.ErrInvalidTimestamp
	}
	if now.After(m.CreatedAt.Add(maxMarketLifetime)) {
		return domain.ErrInvalidTimestamp
	}
	return nil
}
