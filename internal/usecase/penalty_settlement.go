package usecase

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// OwedPenalties lists penalties still waiting for their transfer, oldest first.
func (s *StakingService) OwedPenalties(ctx context.Context) ([]*domain.OwedPenalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListOwedPenalties(ctx)
}

// SettleOwedPenalties retries every owed penalty in its own transition. A
// settled penalty is removed together with its transfer; the first failure
// stops the run and leaves the rest owed.
func (s *StakingService) SettleOwedPenalties(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.currentConfig(); err != nil {
		return 0, err
	}
	owed, err := s.store.ListOwedPenalties(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list owed penalties: %w", err)
	}

	settled := 0
	for _, p := range owed {
		evt := &domain.PenaltySettledEvent{
			Owner:       p.Owner,
			Participant: p.Participant,
			Amount:      p.Amount.Clone(),
			At:          s.now(),
		}
		var stranded bool
		err := s.executor.Run(ctx, func(batch *TransferBatch) error {
			defer func() { stranded = batch.Irreversible() }()
			return s.store.RunInTx(ctx, func(tx domain.StoreTx) error {
				if err := tx.RemoveOwedPenalty(ctx, p.ID); err != nil {
					return err
				}
				if err := tx.AppendEvent(ctx, evt); err != nil {
					return fmt.Errorf("failed to record event: %w", err)
				}
				return batch.Pay(ctx, p.Owner, p.Amount)
			})
		})
		if err != nil {
			if stranded {
				s.logStranded("settle_penalty", p.Participant, err)
			} else {
				s.logger.Warn("Owed penalty still unpaid",
					zap.Int64("id", p.ID),
					zap.String("owner", p.Owner.Hex()),
					zap.String("amount", domain.FormatAmount(p.Amount)),
					zap.Error(err))
			}
			return settled, err
		}

		settled++
		s.logger.Info("Owed penalty settled",
			zap.Int64("id", p.ID),
			zap.String("owner", p.Owner.Hex()),
			zap.String("amount", domain.FormatAmount(p.Amount)))
		s.publisher.Publish(evt)
	}
	return settled, nil
}

func sumOwed(owed []*domain.OwedPenalty) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, p := range owed {
		if _, overflow := total.AddOverflow(total, p.Amount); overflow {
			return nil, fmt.Errorf("%w: owed penalties", domain.ErrArithmeticOverflow)
		}
	}
	return total, nil
}
