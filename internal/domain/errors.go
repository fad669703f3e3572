package domain

import "errors"

var (
	ErrBelowMinimumStake    = errors.New("stake amount below minimum")
	ErrInsufficientStake    = errors.New("insufficient stake")
	ErrInvalidPenalty       = errors.New("penalty above 100%")
	ErrUnauthorized         = errors.New("caller is not the owner")
	ErrLedgerTransferFailed = errors.New("ledger transfer failed")

	ErrInvalidOwner        = errors.New("invalid owner address")
	ErrTierIndexOutOfRange = errors.New("tier index out of range")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidConfig       = errors.New("invalid config")
	ErrPositionNotFound    = errors.New("position not found")
	ErrConfigNotFound      = errors.New("config not found")
	ErrOwedPenaltyNotFound = errors.New("owed penalty not found")
	ErrNotInitialized      = errors.New("staking service not initialized")
)
