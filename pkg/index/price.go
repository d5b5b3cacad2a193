package index

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
)

// BaseUnitsPerCoin is the number of indivisible base units in one display unit.
const BaseUnitsPerCoin = 1_000_000_000

var (
	ErrInvalidAmount = errors.New("invalid amount")

	baseRat   = new(big.Rat).SetInt64(BaseUnitsPerCoin)
	maxUint64 = new(big.Int).SetUint64(math.MaxUint64)
)

func ToDisplay(base uint64) float64 {
	return float64(base) / BaseUnitsPerCoin
}

// FromDisplay converts a display amount back to base units, rounding to the
// nearest unit so FromDisplay(ToDisplay(p)) == p for p below 2^50.
func FromDisplay(display float64) (uint64, error) {
	if math.IsNaN(display) || math.IsInf(display, 0) || display < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, display)
	}
	scaled := math.Round(display * BaseUnitsPerCoin)
	if scaled >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: %v overflows", ErrInvalidAmount, display)
	}
	return uint64(scaled), nil
}

// decimalAmount is plain decimal notation with an optional short exponent.
// Fractions ("1/2") and base prefixes ("0x10") are not amounts.
var decimalAmount = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d{1,3})?$`)

// ParseDisplayAmount parses a decimal string such as "2.5" into base units.
// Precision below one base unit is truncated.
func ParseDisplayAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if !decimalAmount.MatchString(s) {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	r.Mul(r, baseRat)
	units := new(big.Int).Quo(r.Num(), r.Denom())
	if units.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	return units.Uint64(), nil
}

// FormatDisplay renders base units as a decimal with the given number of places.
func FormatDisplay(base uint64, decimals int) string {
	r := new(big.Rat).SetFrac(new(big.Int).SetUint64(base), big.NewInt(BaseUnitsPerCoin))
	return r.FloatString(decimals)
}
