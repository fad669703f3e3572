package usecase

import (
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
)

// NoTier is returned when a balance is below every tier threshold.
const NoTier = -1

type TierEvaluator struct{}

func NewTierEvaluator() *TierEvaluator {
	return &TierEvaluator{}
}

// TierIndex returns the highest tier whose threshold staked meets. Tiers are
// exclusive: only the top matching tier counts.
func (e *TierEvaluator) TierIndex(staked *uint256.Int, cfg *domain.Config) int {
	if staked == nil {
		return NoTier
	}
	for i := domain.TierCount - 1; i >= 0; i-- {
		t := cfg.TierThresholds[i]
		if t != nil && !staked.Lt(t) {
			return i
		}
	}
	return NoTier
}

// BonusRate returns the tier bonus in bps for staked, 0 below every tier.
func (e *TierEvaluator) BonusRate(staked *uint256.Int, cfg *domain.Config) uint64 {
	i := e.TierIndex(staked, cfg)
	if i == NoTier {
		return 0
	}
	return cfg.TierRewardRates[i]
}

// NextTier returns the next tier above staked and the amount still missing to
// reach it. ok is false when staked already sits in the top tier.
func (e *TierEvaluator) NextTier(staked *uint256.Int, cfg *domain.Config) (index int, shortfall *uint256.Int, ok bool) {
	if staked == nil {
		staked = new(uint256.Int)
	}
	next := e.TierIndex(staked, cfg) + 1
	if next >= domain.TierCount {
		return NoTier, new(uint256.Int), false
	}
	return next, new(uint256.Int).Sub(cfg.TierThresholds[next], staked), true
}
