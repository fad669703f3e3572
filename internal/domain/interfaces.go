package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TokenLedger is the external fungible token the pool holds custody on. Every
// call is made on behalf of the custody account. Any error is a hard failure.
type TokenLedger interface {
	BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error)
	// Transfer moves amount from custody to `to`.
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
	// TransferFrom moves amount from `from` to `to` using custody's allowance.
	TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) error
}

// AtomicLedger is a ledger able to stage a batch of transfers. The batch is
// applied only when fn returns nil.
type AtomicLedger interface {
	TokenLedger
	Atomic(ctx context.Context, fn func(ledger TokenLedger) error) error
}

// PositionRepository reads and writes positions. GetPosition returns
// ErrPositionNotFound for participants that never staked.
type PositionRepository interface {
	GetPosition(ctx context.Context, participant common.Address) (*Position, error)
	SavePosition(ctx context.Context, position *Position) error
}

// ConfigRepository stores the single global Config record. LoadConfig returns
// ErrConfigNotFound before the first SaveConfig.
type ConfigRepository interface {
	LoadConfig(ctx context.Context) (*Config, error)
	SaveConfig(ctx context.Context, cfg *Config) error
}

// EventRepository is the append-only log of observations.
type EventRepository interface {
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, limit int) ([]*EventRecord, error)
}

// OwedPenaltyRepository keeps penalties waiting to be paid to the owner.
// AddOwedPenalty assigns the ID.
type OwedPenaltyRepository interface {
	AddOwedPenalty(ctx context.Context, p *OwedPenalty) error
	RemoveOwedPenalty(ctx context.Context, id int64) error
	ListOwedPenalties(ctx context.Context) ([]*OwedPenalty, error)
}

// StoreTx is the view of the store inside a transaction.
type StoreTx interface {
	PositionRepository
	ConfigRepository
	OwedPenaltyRepository
	AppendEvent(ctx context.Context, event Event) error
}

// Store persists positions, config, owed penalties and events. RunInTx commits
// only when fn returns nil; otherwise every write made through tx is discarded.
type Store interface {
	PositionRepository
	ConfigRepository
	OwedPenaltyRepository
	EventRepository
	ListPositions(ctx context.Context) ([]*Position, error)
	RunInTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// EventPublisher fans committed observations out to subscribers.
type EventPublisher interface {
	Publish(event Event)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
