package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// StakingService is the staking ledger. Every mutating call is one serialized
// transition: position and config writes, ledger transfers and the event log
// either all commit or none do.
type StakingService struct {
	store     domain.Store
	executor  *TransferExecutor
	calc      *RewardCalculator
	tiers     *TierEvaluator
	publisher domain.EventPublisher
	clock     domain.Clock
	logger    *zap.Logger

	mu     sync.RWMutex
	config *domain.Config // nil until Bootstrap
}

func NewStakingService(
	store domain.Store,
	executor *TransferExecutor,
	publisher domain.EventPublisher,
	clock domain.Clock,
	logger *zap.Logger,
) *StakingService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tiers := NewTierEvaluator()
	return &StakingService{
		store:     store,
		executor:  executor,
		calc:      NewRewardCalculator(tiers),
		tiers:     tiers,
		publisher: publisher,
		clock:     clock,
		logger:    logger.Named("staking"),
	}
}

// Bootstrap loads the stored config, or persists seed when the store is empty.
// A stored config always wins so admin changes survive restarts.
func (s *StakingService) Bootstrap(ctx context.Context, seed *domain.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.store.LoadConfig(ctx)
	switch {
	case err == nil:
		s.logger.Info("Loaded stored config", zap.String("owner", cfg.Owner.Hex()))
	case errors.Is(err, domain.ErrConfigNotFound):
		if seed == nil {
			return fmt.Errorf("no stored config and no seed: %w", domain.ErrInvalidConfig)
		}
		if err := seed.Validate(); err != nil {
			return err
		}
		cfg = seed.Clone()
		if err := s.store.RunInTx(ctx, func(tx domain.StoreTx) error {
			return tx.SaveConfig(ctx, cfg)
		}); err != nil {
			return fmt.Errorf("failed to seed config: %w", err)
		}
		s.logger.Info("Seeded config", zap.String("owner", cfg.Owner.Hex()))
	default:
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	s.config = cfg
	return nil
}

func (s *StakingService) now() uint64 {
	t := s.clock.Now().Unix()
	if t < 0 {
		return 0
	}
	return uint64(t)
}

func (s *StakingService) currentConfig() (*domain.Config, error) {
	if s.config == nil {
		return nil, domain.ErrNotInitialized
	}
	return s.config, nil
}

// --- Transitions ---

// Stake deposits amount for participant. An active position first compounds its
// pending rewards and blends its start time; an empty one restarts at now.
func (s *StakingService) Stake(ctx context.Context, participant common.Address, amount *uint256.Int) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	now := s.now()

	var evt *domain.StakedEvent
	var next *domain.Position
	var stranded bool
	err = s.executor.Run(ctx, func(batch *TransferBatch) error {
		defer func() { stranded = batch.Irreversible() }()
		return s.store.RunInTx(ctx, func(tx domain.StoreTx) error {
			pos, err := loadPosition(ctx, tx, participant)
			if err != nil {
				return err
			}
			out, err := applyStake(s.calc, pos, cfg, amount, now)
			if err != nil {
				return err
			}
			next = out.position

			// Effects are written before the ledger is touched.
			if err := tx.SavePosition(ctx, next); err != nil {
				return fmt.Errorf("failed to save position: %w", err)
			}
			evt = &domain.StakedEvent{
				Participant: participant,
				Amount:      amount.Clone(),
				Compounded:  out.compounded,
				TotalStaked: next.TotalStaked.Clone(),
				At:          now,
			}
			if err := tx.AppendEvent(ctx, evt); err != nil {
				return fmt.Errorf("failed to record event: %w", err)
			}
			return batch.Pull(ctx, participant, amount)
		})
	})
	if err != nil {
		if stranded {
			s.logStranded("stake", participant, err)
			return nil, err
		}
		s.logger.Warn("Stake rejected",
			zap.String("participant", participant.Hex()),
			zap.String("amount", domain.FormatAmount(amount)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Staked",
		zap.String("participant", participant.Hex()),
		zap.String("amount", domain.FormatAmount(amount)),
		zap.String("compounded", domain.FormatAmount(evt.Compounded)),
		zap.String("total_staked", domain.FormatAmount(next.TotalStaked)))
	s.publisher.Publish(evt)
	return next.Clone(), nil
}

// Withdraw removes amount from participant's position. Before the lock period
// elapses a penalty share of amount goes to the owner instead.
func (s *StakingService) Withdraw(ctx context.Context, participant common.Address, amount *uint256.Int) (*WithdrawalQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdraw(ctx, participant, func(*domain.Position) *uint256.Int { return amount })
}

// WithdrawAll withdraws the whole current balance.
func (s *StakingService) WithdrawAll(ctx context.Context, participant common.Address) (*WithdrawalQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withdraw(ctx, participant, func(pos *domain.Position) *uint256.Int { return pos.TotalStaked.Clone() })
}

func (s *StakingService) withdraw(ctx context.Context, participant common.Address, amountOf func(*domain.Position) *uint256.Int) (*WithdrawalQuote, error) {
	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	now := s.now()

	var (
		quote    *WithdrawalQuote
		evt      *domain.WithdrawnEvent
		deferred *domain.PenaltyDeferredEvent
		stranded bool
	)
	err = s.executor.Run(ctx, func(batch *TransferBatch) error {
		defer func() { stranded = batch.Irreversible() }()
		return s.store.RunInTx(ctx, func(tx domain.StoreTx) error {
			deferred = nil
			pos, err := loadPosition(ctx, tx, participant)
			if err != nil {
				return err
			}
			quote, err = quoteWithdrawal(pos, cfg, amountOf(pos), now)
			if err != nil {
				return err
			}
			next := applyWithdrawal(pos, quote.Amount, now)
			if err := tx.SavePosition(ctx, next); err != nil {
				return fmt.Errorf("failed to save position: %w", err)
			}
			evt = &domain.WithdrawnEvent{
				Participant: participant,
				Amount:      quote.Amount.Clone(),
				Penalty:     quote.Penalty.Clone(),
				Payout:      quote.Payout.Clone(),
				TotalStaked: next.TotalStaked.Clone(),
				Early:       quote.IsEarly,
				At:          now,
			}
			if err := tx.AppendEvent(ctx, evt); err != nil {
				return fmt.Errorf("failed to record event: %w", err)
			}

			if err := batch.Pay(ctx, participant, quote.Payout); err != nil {
				return err
			}
			if quote.Penalty.IsZero() {
				return nil
			}
			payErr := batch.Pay(ctx, cfg.Owner, quote.Penalty)
			if payErr == nil || !batch.Irreversible() {
				return payErr
			}

			// The payout cannot be taken back, so the withdrawal stands and
			// the penalty is owed to the owner until it is settled.
			owed := &domain.OwedPenalty{
				Owner:       cfg.Owner,
				Participant: participant,
				Amount:      quote.Penalty.Clone(),
				CreatedAt:   now,
			}
			if err := tx.AddOwedPenalty(ctx, owed); err != nil {
				return fmt.Errorf("failed to record owed penalty: %w", err)
			}
			deferred = &domain.PenaltyDeferredEvent{
				Owner:       cfg.Owner,
				Participant: participant,
				Amount:      quote.Penalty.Clone(),
				At:          now,
			}
			if err := tx.AppendEvent(ctx, deferred); err != nil {
				return fmt.Errorf("failed to record event: %w", err)
			}
			s.logger.Error("Penalty transfer failed after payout, penalty deferred",
				zap.String("participant", participant.Hex()),
				zap.String("owner", cfg.Owner.Hex()),
				zap.String("penalty", domain.FormatAmount(quote.Penalty)),
				zap.Error(payErr))
			return nil
		})
	})
	if err != nil {
		if stranded {
			s.logStranded("withdraw", participant, err)
		} else {
			s.logger.Warn("Withdrawal rejected",
				zap.String("participant", participant.Hex()),
				zap.Error(err))
		}
		return nil, err
	}

	quote.PenaltyDeferred = deferred != nil
	s.logger.Info("Withdrawn",
		zap.String("participant", participant.Hex()),
		zap.String("amount", domain.FormatAmount(quote.Amount)),
		zap.String("penalty", domain.FormatAmount(quote.Penalty)),
		zap.Bool("early", quote.IsEarly),
		zap.Bool("penalty_deferred", quote.PenaltyDeferred))
	s.publisher.Publish(evt)
	if deferred != nil {
		s.publisher.Publish(deferred)
	}
	return quote, nil
}

// logStranded reports transfers that landed on a non-staging ledger while the
// store rolled the transition back. Those need manual reconciliation.
func (s *StakingService) logStranded(op string, participant common.Address, err error) {
	s.logger.Error("Ledger transfers landed but the transition was not recorded",
		zap.String("op", op),
		zap.String("participant", participant.Hex()),
		zap.Error(err))
}

// --- Queries ---

// UserInfo returns the participant's position; participants that never staked
// get an empty one.
func (s *StakingService) UserInfo(ctx context.Context, participant common.Address) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadPosition(ctx, s.store, participant)
}

func (s *StakingService) PendingRewards(ctx context.Context, participant common.Address) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	pos, err := loadPosition(ctx, s.store, participant)
	if err != nil {
		return nil, err
	}
	return s.calc.PendingRewards(pos, cfg, s.now())
}

// QuoteWithdrawal previews Withdraw(participant, amount) without changing state.
func (s *StakingService) QuoteWithdrawal(ctx context.Context, participant common.Address, amount *uint256.Int) (*WithdrawalQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	pos, err := loadPosition(ctx, s.store, participant)
	if err != nil {
		return nil, err
	}
	return quoteWithdrawal(pos, cfg, amount, s.now())
}

// RateInfo describes the reward rate a position currently earns.
type RateInfo struct {
	Tier          int
	BaseRate      uint64
	BonusRate     uint64
	EffectiveRate uint64
	NextTier      int
	NextShortfall *uint256.Int
}

func (s *StakingService) EffectiveRate(ctx context.Context, participant common.Address) (*RateInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	pos, err := loadPosition(ctx, s.store, participant)
	if err != nil {
		return nil, err
	}
	info := &RateInfo{
		Tier:          s.tiers.TierIndex(pos.TotalStaked, cfg),
		BaseRate:      cfg.AnnualRewardRate,
		BonusRate:     s.tiers.BonusRate(pos.TotalStaked, cfg),
		EffectiveRate: s.calc.EffectiveRate(pos.TotalStaked, cfg),
	}
	info.NextTier, info.NextShortfall, _ = s.tiers.NextTier(pos.TotalStaked, cfg)
	return info, nil
}

// Config returns a copy of the current economic parameters.
func (s *StakingService) Config() (*domain.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Clone(), nil
}

func (s *StakingService) MinimumStakeAmount() (*uint256.Int, error) {
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	return cfg.MinimumStakeAmount, nil
}

func (s *StakingService) AnnualRewardRate() (uint64, error) {
	cfg, err := s.Config()
	if err != nil {
		return 0, err
	}
	return cfg.AnnualRewardRate, nil
}

func (s *StakingService) LockPeriod() (uint64, error) {
	cfg, err := s.Config()
	if err != nil {
		return 0, err
	}
	return cfg.LockPeriod, nil
}

func (s *StakingService) EarlyWithdrawalPenalty() (uint64, error) {
	cfg, err := s.Config()
	if err != nil {
		return 0, err
	}
	return cfg.EarlyWithdrawalPenalty, nil
}

func (s *StakingService) Owner() (common.Address, error) {
	cfg, err := s.Config()
	if err != nil {
		return common.Address{}, err
	}
	return cfg.Owner, nil
}

func (s *StakingService) TierThreshold(index int) (*uint256.Int, error) {
	cfg, err := s.Config()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= domain.TierCount {
		return nil, fmt.Errorf("%w: %d", domain.ErrTierIndexOutOfRange, index)
	}
	return cfg.TierThresholds[index], nil
}

func (s *StakingService) TierRewardRate(index int) (uint64, error) {
	cfg, err := s.Config()
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= domain.TierCount {
		return 0, fmt.Errorf("%w: %d", domain.ErrTierIndexOutOfRange, index)
	}
	return cfg.TierRewardRates[index], nil
}

// PoolStats sums every position in the registry.
func (s *StakingService) PoolStats(ctx context.Context) (*domain.PoolStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	stats := &domain.PoolStats{TotalStaked: new(uint256.Int)}
	for _, p := range positions {
		stats.Participants++
		if p.IsActive() {
			stats.ActivePositions++
			stats.TotalStaked.Add(stats.TotalStaked, p.TotalStaked)
		}
	}
	return stats, nil
}

func (s *StakingService) ListEvents(ctx context.Context, limit int) ([]*domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListEvents(ctx, limit)
}

// Custody is the account holding every staked token.
func (s *StakingService) Custody() common.Address {
	return s.executor.Custody()
}

// LedgerBalance reads a token balance straight from the ledger.
func (s *StakingService) LedgerBalance(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return s.executor.Ledger().BalanceOf(ctx, owner)
}

func loadPosition(ctx context.Context, repo domain.PositionRepository, participant common.Address) (*domain.Position, error) {
	pos, err := repo.GetPosition(ctx, participant)
	if errors.Is(err, domain.ErrPositionNotFound) {
		return domain.NewPosition(participant), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position: %w", err)
	}
	return pos, nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(domain.Event) {}
