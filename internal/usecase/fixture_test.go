package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/infrastructure/ledger"
	"github.com/vitos/token_staking/internal/infrastructure/storage"
	"github.com/vitos/token_staking/internal/usecase"
	"go.uber.org/zap"
)

const (
	day       = 86_400
	startTime = 1_700_000_000
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	custody = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	oneToken = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
)

// tokens returns n whole tokens with 18 decimals.
func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), oneToken)
}

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *fakeClock) Advance(seconds int64) {
	c.mu.Lock()
	c.now += seconds
	c.mu.Unlock()
}

func (c *fakeClock) Unix() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.now)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(e domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *recordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// defaultConfig mirrors the stock pool: 10% base, 30 day lock, 5% penalty,
// +2%/+5%/+10% at 1k/5k/10k tokens, minimum 10 tokens.
func defaultConfig() *domain.Config {
	return &domain.Config{
		Owner:                  owner,
		MinimumStakeAmount:     tokens(10),
		AnnualRewardRate:       1000,
		LockPeriod:             30 * day,
		EarlyWithdrawalPenalty: 500,
		TierThresholds:         [3]*uint256.Int{tokens(1000), tokens(5000), tokens(10000)},
		TierRewardRates:        [3]uint64{200, 500, 1000},
	}
}

type fixture struct {
	svc       *usecase.StakingService
	store     domain.Store
	ledger    *ledger.MemoryLedger
	clock     *fakeClock
	publisher *recordingPublisher
}

type fixtureOption func(*fixtureOptions)

type fixtureOptions struct {
	store  domain.Store
	ledger domain.TokenLedger
	config *domain.Config
}

func withStore(s domain.Store) fixtureOption {
	return func(o *fixtureOptions) { o.store = s }
}

func withLedger(l domain.TokenLedger) fixtureOption {
	return func(o *fixtureOptions) { o.ledger = l }
}

func withConfig(cfg *domain.Config) fixtureOption {
	return func(o *fixtureOptions) { o.config = cfg }
}

// newFixture builds a bootstrapped service. Alice and Bob each hold one
// million tokens and have approved custody for all of them.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	mem := ledger.NewMemoryLedger(custody, zap.NewNop())
	o := fixtureOptions{store: storage.NewMemoryStore(), ledger: mem, config: defaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	for _, who := range []common.Address{alice, bob} {
		require.NoError(t, mem.Mint(who, tokens(1_000_000)))
		require.NoError(t, mem.Approve(who, custody, tokens(1_000_000)))
	}

	clock := &fakeClock{now: startTime}
	pub := &recordingPublisher{}
	svc := usecase.NewStakingService(o.store, usecase.NewTransferExecutor(o.ledger, custody), pub, clock, zap.NewNop())
	require.NoError(t, svc.Bootstrap(context.Background(), o.config))

	return &fixture{svc: svc, store: o.store, ledger: mem, clock: clock, publisher: pub}
}

func (f *fixture) balance(t *testing.T, who common.Address) *uint256.Int {
	t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), who)
	require.NoError(t, err)
	return b
}

func (f *fixture) position(t *testing.T, who common.Address) *domain.Position {
	t.Helper()
	p, err := f.svc.UserInfo(context.Background(), who)
	require.NoError(t, err)
	return p
}

func (f *fixture) stake(t *testing.T, who common.Address, amount *uint256.Int) *domain.Position {
	t.Helper()
	p, err := f.svc.Stake(context.Background(), who, amount)
	require.NoError(t, err)
	return p
}

func (f *fixture) storedEvents(t *testing.T) []*domain.EventRecord {
	t.Helper()
	events, err := f.svc.ListEvents(context.Background(), 100)
	require.NoError(t, err)
	return events
}
