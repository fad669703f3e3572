package usecase

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
)

// rewardDenominator is 10000 bps * seconds per year.
var rewardDenominator = uint256.NewInt(domain.BasisPoints * domain.SecondsPerYear)

// RewardCalculator converts stake size and elapsed time into accrued rewards.
// It has no state and never mutates its inputs.
type RewardCalculator struct {
	tiers *TierEvaluator
}

func NewRewardCalculator(tiers *TierEvaluator) *RewardCalculator {
	if tiers == nil {
		tiers = NewTierEvaluator()
	}
	return &RewardCalculator{tiers: tiers}
}

// EffectiveRate is the base annual rate plus the bonus of the top matching tier, in bps.
func (c *RewardCalculator) EffectiveRate(staked *uint256.Int, cfg *domain.Config) uint64 {
	return cfg.AnnualRewardRate + c.tiers.BonusRate(staked, cfg)
}

// PendingRewards returns the reward accrued by pos since its weighted start time:
//
//	staked * effectiveRate * elapsed / (10000 * secondsPerYear)
//
// truncated toward zero. A start time in the future counts as zero elapsed.
func (c *RewardCalculator) PendingRewards(pos *domain.Position, cfg *domain.Config, now uint64) (*uint256.Int, error) {
	if !pos.IsActive() || now <= pos.WeightedStartTime {
		return new(uint256.Int), nil
	}
	elapsed := now - pos.WeightedStartTime
	rate := c.EffectiveRate(pos.TotalStaked, cfg)

	acc, overflow := new(uint256.Int).MulOverflow(pos.TotalStaked, uint256.NewInt(rate))
	if overflow {
		return nil, fmt.Errorf("%w: staked * rate", domain.ErrArithmeticOverflow)
	}
	if _, overflow = acc.MulOverflow(acc, uint256.NewInt(elapsed)); overflow {
		return nil, fmt.Errorf("%w: staked * rate * elapsed", domain.ErrArithmeticOverflow)
	}
	return acc.Div(acc, rewardDenominator), nil
}
