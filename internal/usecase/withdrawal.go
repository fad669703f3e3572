package usecase

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
)

// WithdrawalQuote is the split of a withdrawal between the participant and the owner.
type WithdrawalQuote struct {
	Amount    *uint256.Int
	Penalty   *uint256.Int
	Payout    *uint256.Int
	IsEarly   bool
	UnlocksAt uint64

	// PenaltyDeferred is set by Withdraw when the payout landed but the penalty
	// transfer failed; the penalty is then kept as owed.
	PenaltyDeferred bool
}

// quoteWithdrawal applies the lock-period rule to amount. The same function backs
// both the read-only preview and the withdraw transition.
func quoteWithdrawal(pos *domain.Position, cfg *domain.Config, amount *uint256.Int, now uint64) (*WithdrawalQuote, error) {
	if amount == nil || amount.IsZero() || amount.Gt(pos.TotalStaked) {
		return nil, fmt.Errorf("%w: requested %s, staked %s", domain.ErrInsufficientStake,
			domain.FormatAmount(amount), domain.FormatAmount(pos.TotalStaked))
	}

	var elapsed uint64
	if now > pos.WeightedStartTime {
		elapsed = now - pos.WeightedStartTime
	}

	q := &WithdrawalQuote{
		Amount:    amount.Clone(),
		Penalty:   new(uint256.Int),
		IsEarly:   elapsed < cfg.LockPeriod,
		UnlocksAt: pos.WeightedStartTime + cfg.LockPeriod,
	}
	if q.IsEarly {
		penalty, overflow := new(uint256.Int).MulOverflow(amount, uint256.NewInt(cfg.EarlyWithdrawalPenalty))
		if overflow {
			return nil, fmt.Errorf("%w: amount * penalty", domain.ErrArithmeticOverflow)
		}
		q.Penalty = penalty.Div(penalty, uint256.NewInt(domain.BasisPoints))
	}
	q.Payout = new(uint256.Int).Sub(amount, q.Penalty)
	return q, nil
}

// applyWithdrawal returns the position after removing amount. Pending rewards are
// not folded in: only Stake compounds, so rewards accrued since the last deposit
// stay unpaid until the next deposit.
func applyWithdrawal(pos *domain.Position, amount *uint256.Int, now uint64) *domain.Position {
	next := pos.Clone()
	next.TotalStaked = new(uint256.Int).Sub(pos.TotalStaked, amount)
	next.UpdatedAt = now
	return next
}
