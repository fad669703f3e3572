package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type PositionState string

const (
	PositionUninitialized PositionState = "uninitialized"
	PositionActive        PositionState = "active"
	PositionClosed        PositionState = "closed"
)

// Position is a participant's locked balance and the blended moment it started
// accruing. A position is never deleted; a full withdrawal only zeroes it.
type Position struct {
	Participant       common.Address
	TotalStaked       *uint256.Int
	WeightedStartTime uint64 // unix seconds
	UpdatedAt         uint64
}

func NewPosition(participant common.Address) *Position {
	return &Position{
		Participant: participant,
		TotalStaked: new(uint256.Int),
	}
}

func (p *Position) Clone() *Position {
	c := *p
	if p.TotalStaked != nil {
		c.TotalStaked = p.TotalStaked.Clone()
	} else {
		c.TotalStaked = new(uint256.Int)
	}
	return &c
}

// IsActive reports whether the position currently holds a balance.
func (p *Position) IsActive() bool {
	return p.TotalStaked != nil && !p.TotalStaked.IsZero()
}

// State derives the lifecycle state. Timestamps are real unix times, so a zero
// start time means the participant never staked.
func (p *Position) State() PositionState {
	switch {
	case p.IsActive():
		return PositionActive
	case p.WeightedStartTime == 0:
		return PositionUninitialized
	default:
		return PositionClosed
	}
}

// PoolStats aggregates every position in the registry.
type PoolStats struct {
	Participants    int
	ActivePositions int
	TotalStaked     *uint256.Int
}

// OwedPenalty is an early-withdrawal penalty the owner earned but was not paid:
// the participant's payout landed on a ledger that cannot undo it and the
// owner's transfer failed afterwards. It is paid to the owner recorded here.
type OwedPenalty struct {
	ID          int64
	Owner       common.Address
	Participant common.Address
	Amount      *uint256.Int
	CreatedAt   uint64
}

func (p *OwedPenalty) Clone() *OwedPenalty {
	c := *p
	if p.Amount != nil {
		c.Amount = p.Amount.Clone()
	}
	return &c
}
