package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MicrosPerUnit is the number of Rate steps in one currency unit.
const MicrosPerUnit = 1_000_000

// Rate is an amount of money in millionths of a currency unit. Costs are kept
// as integers so totals add up exactly.
type Rate int64

// DefaultCostPerUnit is 0.05 per billing unit.
const DefaultCostPerUnit Rate = 50_000

// Float returns r in whole currency units.
func (r Rate) Float() float64 {
	return float64(r) / MicrosPerUnit
}

// String formats r with up to six decimals, trimming trailing zeros.
func (r Rate) String() string {
	s := strconv.FormatFloat(r.Float(), 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// MarshalJSON writes r as a plain decimal number.
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalJSON accepts a decimal number.
func (r *Rate) UnmarshalJSON(b []byte) error {
	parsed, err := ParseRate(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// UnmarshalText accepts a decimal amount, as written in tariff files.
func (r *Rate) UnmarshalText(b []byte) error {
	return r.UnmarshalJSON(b)
}

// ParseRate parses a decimal amount such as "0.05".
func ParseRate(s string) (Rate, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidRate, s)
	}
	if f < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidRate, s)
	}
	if f > math.MaxInt64/MicrosPerUnit {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidRate, s)
	}
	// Round to the nearest micro so 0.05 does not become 49999.
	return Rate(f*MicrosPerUnit + 0.5), nil
}
