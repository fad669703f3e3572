package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// BasisPoints is 100% expressed in bps.
	BasisPoints    = 10_000
	SecondsPerYear = 365 * 86_400
	TierCount      = 3
)

// Config holds the economic parameters of the pool. Owner is the only identity
// allowed to change them.
type Config struct {
	Owner                  common.Address
	MinimumStakeAmount     *uint256.Int
	AnnualRewardRate       uint64 // bps
	LockPeriod             uint64 // seconds
	EarlyWithdrawalPenalty uint64 // bps
	TierThresholds         [TierCount]*uint256.Int
	TierRewardRates        [TierCount]uint64 // bps, added on top of AnnualRewardRate
}

func (c *Config) Clone() *Config {
	cp := *c
	cp.MinimumStakeAmount = cloneAmount(c.MinimumStakeAmount)
	for i := range c.TierThresholds {
		cp.TierThresholds[i] = cloneAmount(c.TierThresholds[i])
	}
	return &cp
}

func (c *Config) IsOwner(addr common.Address) bool {
	return c.Owner == addr
}

func (c *Config) Validate() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("%w: owner must be set", ErrInvalidConfig)
	}
	if c.MinimumStakeAmount == nil {
		return fmt.Errorf("%w: minimum stake amount must be set", ErrInvalidConfig)
	}
	if c.EarlyWithdrawalPenalty > BasisPoints {
		return fmt.Errorf("%w: early withdrawal penalty %d bps above %d", ErrInvalidPenalty, c.EarlyWithdrawalPenalty, BasisPoints)
	}
	for i, t := range c.TierThresholds {
		if t == nil {
			return fmt.Errorf("%w: tier %d threshold must be set", ErrInvalidConfig, i)
		}
		if i > 0 && !t.Gt(c.TierThresholds[i-1]) {
			return fmt.Errorf("%w: tier thresholds must be strictly ascending", ErrInvalidConfig)
		}
	}
	return nil
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return v.Clone()
}
