package usecase

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
)

// stakeOutcome is the next state of a position after a deposit.
type stakeOutcome struct {
	position   *domain.Position
	compounded *uint256.Int
}

// applyStake computes the position after depositing amount at now. It does not
// mutate pos. Pending rewards are folded into the balance, while only the
// deposited capital shifts the weighted start time.
func applyStake(calc *RewardCalculator, pos *domain.Position, cfg *domain.Config, amount *uint256.Int, now uint64) (*stakeOutcome, error) {
	if amount == nil || amount.IsZero() || amount.Lt(cfg.MinimumStakeAmount) {
		return nil, fmt.Errorf("%w: %s < %s", domain.ErrBelowMinimumStake,
			domain.FormatAmount(amount), domain.FormatAmount(cfg.MinimumStakeAmount))
	}

	next := pos.Clone()
	next.UpdatedAt = now

	if !pos.IsActive() {
		next.TotalStaked = amount.Clone()
		next.WeightedStartTime = now
		return &stakeOutcome{position: next, compounded: new(uint256.Int)}, nil
	}

	pending, err := calc.PendingRewards(pos, cfg, now)
	if err != nil {
		return nil, err
	}
	start, err := weightedStartTime(pos.TotalStaked, pos.WeightedStartTime, amount, now)
	if err != nil {
		return nil, err
	}

	total, overflow := new(uint256.Int).AddOverflow(pos.TotalStaked, pending)
	if overflow {
		return nil, fmt.Errorf("%w: staked + pending", domain.ErrArithmeticOverflow)
	}
	if _, overflow = total.AddOverflow(total, amount); overflow {
		return nil, fmt.Errorf("%w: staked + pending + amount", domain.ErrArithmeticOverflow)
	}

	next.TotalStaked = total
	next.WeightedStartTime = start
	return &stakeOutcome{position: next, compounded: pending}, nil
}

// weightedStartTime blends the old start and now, weighted by old balance and
// new deposit:
//
//	(oldStaked*oldStart + amount*now) / (oldStaked + amount)
//
// Integer division drops the remainder, which rounds toward the older timestamp.
func weightedStartTime(oldStaked *uint256.Int, oldStart uint64, amount *uint256.Int, now uint64) (uint64, error) {
	oldWeight, overflow := new(uint256.Int).MulOverflow(oldStaked, uint256.NewInt(oldStart))
	if overflow {
		return 0, fmt.Errorf("%w: weighted start", domain.ErrArithmeticOverflow)
	}
	newWeight, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(now))
	if overflow {
		return 0, fmt.Errorf("%w: weighted start", domain.ErrArithmeticOverflow)
	}
	sum, overflow := new(uint256.Int).AddOverflow(oldWeight, newWeight)
	if overflow {
		return 0, fmt.Errorf("%w: weighted start", domain.ErrArithmeticOverflow)
	}
	denom, overflow := new(uint256.Int).AddOverflow(oldStaked, amount)
	if overflow {
		return 0, fmt.Errorf("%w: weighted start", domain.ErrArithmeticOverflow)
	}
	// Both weights are at most max(oldStart, now) times the denominator, so the
	// quotient always fits in 64 bits.
	return sum.Div(sum, denom).Uint64(), nil
}
