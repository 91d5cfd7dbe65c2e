package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// In-memory store implementations backing the service tests.

type memMarkets struct {
	mu sync.Mutex
	m  map[common.Hash]domain.Market
}

func newMemMarkets() *memMarkets {
	return &memMarkets{m: make(map[common.Hash]domain.Market)}
}

func (s *memMarkets) Create(_ context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[market.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[market.ID] = market
	return nil
}

func (s *memMarkets) Update(_ context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[market.ID]; !ok {
		return domain.ErrNotFound
	}
	s.m[market.ID] = market
	return nil
}

func (s *memMarkets) GetByID(_ context.Context, id common.Hash) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	market, ok := s.m[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return market, nil
}

func (s *memMarkets) ListByState(_ context.Context, state domain.MarketState, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.m {
		if m.State == state {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarkets) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.m))
	for _, m := range s.m {
		out = append(out, m)
	}
	return out, nil
}

func (s *memMarkets) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.m)), nil
}

type posKey struct {
	market common.Hash
	user   common.Address
}

type memPositions struct {
	mu sync.Mutex
	m  map[posKey]domain.Position
}

func newMemPositions() *memPositions {
	return &memPositions{m: make(map[posKey]domain.Position)}
}

func (s *memPositions) Upsert(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[posKey{pos.MarketID, pos.User}] = pos
	return nil
}

func (s *memPositions) Get(_ context.Context, marketID common.Hash, user common.Address) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.m[posKey{marketID, user}]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *memPositions) ListByMarket(_ context.Context, marketID common.Hash, _ domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for k, p := range s.m {
		if k.market == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositions) ListByUser(_ context.Context, user common.Address, _ domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for k, p := range s.m {
		if k.user == user {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPositions) TotalWinningShares(_ context.Context, marketID common.Hash, outcome domain.Outcome) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for k, p := range s.m {
		if k.market == marketID {
			total += p.WinningShares(outcome)
		}
	}
	return total, nil
}

type memVotes struct {
	mu sync.Mutex
	m  map[common.Hash]domain.VoteRecord
}

func newMemVotes() *memVotes {
	return &memVotes{m: make(map[common.Hash]domain.VoteRecord)}
}

func (s *memVotes) Create(_ context.Context, vote domain.VoteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vote.Key()
	if _, ok := s.m[key]; ok {
		return domain.ErrAlreadyExists
	}
	s.m[key] = vote
	return nil
}

func (s *memVotes) Get(_ context.Context, marketID common.Hash, voter common.Address, kind domain.VoteKind) (domain.VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vote, ok := s.m[domain.VoteKey(marketID, voter, kind)]
	if !ok {
		return domain.VoteRecord{}, domain.ErrNotFound
	}
	return vote, nil
}

func (s *memVotes) Tally(_ context.Context, marketID common.Hash, kind domain.VoteKind) (approve, reject uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.m {
		if v.MarketID != marketID || v.Kind != kind {
			continue
		}
		if v.Approve {
			approve++
		} else {
			reject++
		}
	}
	return approve, reject, nil
}

func (s *memVotes) ListByMarket(_ context.Context, marketID common.Hash, kind domain.VoteKind, _ domain.ListOpts) ([]domain.VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.VoteRecord
	for _, v := range s.m {
		if v.MarketID == marketID && v.Kind == kind {
			out = append(out, v)
		}
	}
	return out, nil
}

type memConfig struct {
	mu  sync.Mutex
	cfg *domain.GlobalConfig
}

func (s *memConfig) Get(_ context.Context) (domain.GlobalConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return domain.GlobalConfig{}, domain.ErrNotFound
	}
	return *s.cfg, nil
}

func (s *memConfig) Put(_ context.Context, cfg domain.GlobalConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
	return nil
}

type memTreasury struct {
	mu       sync.Mutex
	balances map[common.Address]uint64
}

func newMemTreasury() *memTreasury {
	return &memTreasury{balances: make(map[common.Address]uint64)}
}

func (s *memTreasury) Balance(_ context.Context, account common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account], nil
}

func (s *memTreasury) Credit(_ context.Context, account common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] += amount
	return nil
}

func (s *memTreasury) Debit(_ context.Context, account common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[account] < amount {
		return errors.New("treasury: insufficient balance")
	}
	s.balances[account] -= amount
	return nil
}

func (s *memTreasury) Transfer(ctx context.Context, from, to common.Address, amount uint64) error {
	if err := s.Debit(ctx, from, amount); err != nil {
		return err
	}
	return s.Credit(ctx, to, amount)
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type memBus struct {
	mu        sync.Mutex
	published [][]byte
	stream    []domain.StreamMessage
}

func (b *memBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, payload)
	return nil
}

func (b *memBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, domain.StreamMessage{Payload: payload})
	return nil
}

func (b *memBus) StreamRead(_ context.Context, _ string, _ string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count > len(b.stream) {
		count = len(b.stream)
	}
	return b.stream[:count], nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{
		ID:     int64(len(a.entries) + 1),
		Event:  event,
		Detail: detail,
	})
	return nil
}

func (a *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

type memPrices struct {
	mu sync.Mutex
	m  map[common.Hash][2]uint64
}

func newMemPrices() *memPrices {
	return &memPrices{m: make(map[common.Hash][2]uint64)}
}

func (p *memPrices) SetPrices(_ context.Context, marketID common.Hash, yes, no uint64, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[marketID] = [2]uint64{yes, no}
	return nil
}

func (p *memPrices) GetPrices(_ context.Context, marketID common.Hash) (uint64, uint64, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prices, ok := p.m[marketID]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	return prices[0], prices[1], time.Time{}, nil
}

func (p *memPrices) Invalidate(_ context.Context, marketID common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, marketID)
	return nil
}

// testEnv wires every service against shared in-memory stores with a
// controllable clock.
type testEnv struct {
	markets   *memMarkets
	positions *memPositions
	votes     *memVotes
	config    *memConfig
	treasury  *memTreasury
	locks     *memLocks
	bus       *memBus
	audit     *memAudit
	prices    *memPrices

	marketSvc   *MarketService
	tradeSvc    *TradeService
	voteSvc     *VoteService
	positionSvc *PositionService
	configSvc   *ConfigService

	clock time.Time
}

var (
	testAdmin   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testBackend = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	testWallet  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func newTestEnv() *testEnv {
	env := &testEnv{
		markets:   newMemMarkets(),
		positions: newMemPositions(),
		votes:     newMemVotes(),
		config:    &memConfig{},
		treasury:  newMemTreasury(),
		locks:     newMemLocks(),
		bus:       &memBus{},
		audit:     &memAudit{},
		prices:    newMemPrices(),
		clock:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := domain.DefaultGlobalConfig(testAdmin, testBackend, testWallet)
	cfg.UpdatedAt = env.clock
	env.config.cfg = &cfg

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return env.clock }

	env.marketSvc = NewMarketService(env.markets, env.config, env.treasury, env.locks,
		env.prices, env.bus, env.audit, logger)
	env.marketSvc.now = now
	env.tradeSvc = NewTradeService(env.markets, env.positions, env.config, env.treasury,
		env.locks, env.prices, env.bus, env.audit, logger)
	env.tradeSvc.now = now
	env.voteSvc = NewVoteService(env.markets, env.votes, env.config, env.bus, env.audit, logger)
	env.voteSvc.now = now
	env.positionSvc = NewPositionService(env.markets, env.positions, env.treasury,
		env.locks, env.bus, env.audit, logger)
	env.positionSvc.now = now
	env.configSvc = NewConfigService(env.config, cfg, env.bus, env.audit, logger)
	env.configSvc.now = now

	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func (e *testEnv) fund(account common.Address, amount uint64) {
	e.treasury.mu.Lock()
	defer e.treasury.mu.Unlock()
	e.treasury.balances[account] += amount
}

func (e *testEnv) setPaused(paused bool) {
	e.config.mu.Lock()
	defer e.config.mu.Unlock()
	e.config.cfg.Paused = paused
}
