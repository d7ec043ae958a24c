// Package units converts between BTC decimal amounts and satoshis.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits in one BTC.
const Decimals = 8

// Amount parsing errors.
var (
	ErrEmptyAmount      = errors.New("empty amount")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrTooManyDecimals  = errors.New("too many decimal places")
	ErrAmountOutOfRange = errors.New("amount exceeds max supply")
)

var maxSatoshi = decimal.NewFromInt(btcutil.MaxSatoshi)

// ParseBTC converts a decimal BTC string such as "0.00002" to satoshis.
// Sub-satoshi precision is rejected rather than rounded.
func ParseBTC(s string) (btcutil.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return FromDecimal(d)
}

// FromDecimal converts a BTC decimal value to satoshis.
func FromDecimal(d decimal.Decimal) (btcutil.Amount, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	sats := d.Shift(Decimals)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, fmt.Errorf("%w (max %d)", ErrTooManyDecimals, Decimals)
	}
	if sats.GreaterThan(maxSatoshi) {
		return 0, ErrAmountOutOfRange
	}
	return btcutil.Amount(sats.IntPart()), nil
}

// ToDecimal converts satoshis to a BTC decimal value.
func ToDecimal(a btcutil.Amount) decimal.Decimal {
	return decimal.New(int64(a), -Decimals)
}

// FormatBTC renders satoshis as a fixed 8-decimal BTC string.
func FormatBTC(a btcutil.Amount) string {
	return ToDecimal(a).StringFixed(Decimals)
}
