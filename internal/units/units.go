// Package units converts between human token amounts ("12.5") and the
// smallest on-ledger unit, given the token's decimals.
package units

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/vitos/token_staking/internal/domain"
)

var (
	ErrNegative      = errors.New("negative amount")
	ErrTooPrecise    = errors.New("amount has more decimals than the token")
	ErrInvalidNumber = errors.New("invalid number")
)

// Parse scales human by 10^decimals. Fractions below one smallest unit are
// rejected, not rounded.
func Parse(human string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNumber, human)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegative, human)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrTooPrecise, human, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", domain.ErrArithmeticOverflow, human)
	}
	return v, nil
}

// MustParse is Parse for constants known to be valid.
func MustParse(human string, decimals int32) *uint256.Int {
	v, err := Parse(human, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

func toDecimal(amount *uint256.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -decimals)
}

// Format renders amount in human units without trailing zeros.
func Format(amount *uint256.Int, decimals int32) string {
	return toDecimal(amount, decimals).String()
}

// Float is lossy and meant for metrics only.
func Float(amount *uint256.Int, decimals int32) float64 {
	return toDecimal(amount, decimals).InexactFloat64()
}
