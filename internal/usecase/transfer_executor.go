package usecase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
)

// TransferExecutor issues the ledger side effects of a transition on behalf of
// the custody account.
type TransferExecutor struct {
	ledger  domain.TokenLedger
	custody common.Address
}

func NewTransferExecutor(ledger domain.TokenLedger, custody common.Address) *TransferExecutor {
	return &TransferExecutor{
		ledger:  ledger,
		custody: custody,
	}
}

func (e *TransferExecutor) Custody() common.Address {
	return e.custody
}

func (e *TransferExecutor) Ledger() domain.TokenLedger {
	return e.ledger
}

// Run calls fn with a batch bound to the ledger. When the ledger can stage
// transfers, nothing fn issued survives an error returned by fn. Otherwise every
// transfer lands as it is issued and the batch reports it through Irreversible.
func (e *TransferExecutor) Run(ctx context.Context, fn func(b *TransferBatch) error) error {
	if atomic, ok := e.ledger.(domain.AtomicLedger); ok {
		return atomic.Atomic(ctx, func(l domain.TokenLedger) error {
			return fn(&TransferBatch{ledger: l, custody: e.custody, staged: true})
		})
	}
	return fn(&TransferBatch{ledger: e.ledger, custody: e.custody})
}

type TransferBatch struct {
	ledger  domain.TokenLedger
	custody common.Address
	staged  bool
	landed  int
}

// Irreversible reports whether a transfer of this batch already reached a
// ledger that cannot take it back.
func (b *TransferBatch) Irreversible() bool {
	return !b.staged && b.landed > 0
}

// Pull moves amount from participant into custody.
func (b *TransferBatch) Pull(ctx context.Context, from common.Address, amount *uint256.Int) error {
	if err := b.ledger.TransferFrom(ctx, from, b.custody, amount); err != nil {
		return fmt.Errorf("%w: pull %s from %s: %w", domain.ErrLedgerTransferFailed, domain.FormatAmount(amount), from.Hex(), err)
	}
	b.landed++
	return nil
}

// Pay moves amount out of custody to `to`.
func (b *TransferBatch) Pay(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := b.ledger.Transfer(ctx, to, amount); err != nil {
		return fmt.Errorf("%w: pay %s to %s: %w", domain.ErrLedgerTransferFailed, domain.FormatAmount(amount), to.Hex(), err)
	}
	b.landed++
	return nil
}
