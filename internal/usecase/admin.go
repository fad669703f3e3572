package usecase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// SetMinimumStakeAmount replaces the per-deposit floor. Any value is accepted.
func (s *StakingService) SetMinimumStakeAmount(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.authorize(caller)
	if err != nil {
		return err
	}
	if amount == nil {
		return fmt.Errorf("%w: minimum stake amount is required", domain.ErrInvalidAmount)
	}

	next := cfg.Clone()
	next.MinimumStakeAmount = amount.Clone()
	return s.commitConfig(ctx, next, &domain.MinimumStakeUpdatedEvent{
		Owner:    caller,
		Previous: cfg.MinimumStakeAmount.Clone(),
		Current:  amount.Clone(),
		At:       s.now(),
	})
}

// SetEarlyWithdrawalPenalty replaces the penalty rate; bps above 10000 are rejected.
func (s *StakingService) SetEarlyWithdrawalPenalty(ctx context.Context, caller common.Address, bps uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.authorize(caller)
	if err != nil {
		return err
	}
	if bps > domain.BasisPoints {
		return fmt.Errorf("%w: %d bps", domain.ErrInvalidPenalty, bps)
	}

	next := cfg.Clone()
	next.EarlyWithdrawalPenalty = bps
	return s.commitConfig(ctx, next, &domain.EarlyWithdrawalPenaltyUpdatedEvent{
		Owner:    caller,
		Previous: cfg.EarlyWithdrawalPenalty,
		Current:  bps,
		At:       s.now(),
	})
}

// TransferOwnership hands the admin role and future penalties to newOwner.
func (s *StakingService) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.authorize(caller)
	if err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return domain.ErrInvalidOwner
	}

	next := cfg.Clone()
	next.Owner = newOwner
	return s.commitConfig(ctx, next, &domain.OwnershipTransferredEvent{
		PreviousOwner: caller,
		NewOwner:      newOwner,
		At:            s.now(),
	})
}

func (s *StakingService) authorize(caller common.Address) (*domain.Config, error) {
	cfg, err := s.currentConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsOwner(caller) {
		s.logger.Warn("Admin call rejected", zap.String("caller", caller.Hex()))
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, caller.Hex())
	}
	return cfg, nil
}

// commitConfig persists next with its observation and swaps the cached config
// only once the store transaction committed.
func (s *StakingService) commitConfig(ctx context.Context, next *domain.Config, evt domain.Event) error {
	err := s.store.RunInTx(ctx, func(tx domain.StoreTx) error {
		if err := tx.SaveConfig(ctx, next); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Config update failed", zap.String("event", string(evt.Type())), zap.Error(err))
		return err
	}

	s.config = next
	s.logger.Info("Config updated", zap.String("event", string(evt.Type())))
	s.publisher.Publish(evt)
	return nil
}
