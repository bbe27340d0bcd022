package coding

import (
	"fmt"
)

// Limits are the per-segment character limits of one encoding.
type Limits struct {
	// Single is the most characters a message may have and still go out as one segment.
	Single int `json:"single" yaml:"single"`
	// Concat is the size of each piece once a message is split; the user data
	// header of a concatenated message takes the difference.
	Concat int `json:"concat" yaml:"concat"`
}

// Validate rejects limits that would make the splitter loop or produce empty pieces.
func (l Limits) Validate() error {
	if l.Single <= 0 || l.Concat <= 0 {
		return fmt.Errorf("%w: single=%d concat=%d", ErrInvalidLimits, l.Single, l.Concat)
	}
	return nil
}

// Units is the number of billing units a text of n characters needs when
// sent on its own.
func (l Limits) Units(n int) int {
	if n <= l.Single {
		return 1
	}
	return 1 + (n-l.Single+l.Concat-1)/l.Concat
}

// LimitTable holds the limits for each encoding.
type LimitTable map[Encoding]Limits

// DefaultLimits returns the standard SMS limits: 160/153 for GSM and 70/67
// for Unicode. The returned table is a fresh copy and may be modified.
func DefaultLimits() LimitTable {
	return LimitTable{
		GSM:     {Single: 160, Concat: 153},
		Unicode: {Single: 70, Concat: 67},
	}
}

// For returns the limits of enc.
func (t LimitTable) For(enc Encoding) (Limits, error) {
	l, ok := t[enc]
	if !ok {
		return Limits{}, fmt.Errorf("%w: %q", ErrInvalidEncoding, string(enc))
	}
	return l, nil
}

// Validate checks every entry of the table.
func (t LimitTable) Validate() error {
	for enc, l := range t {
		if !enc.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidEncoding, string(enc))
		}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%s: %w", enc, err)
		}
	}
	return nil
}

// Merge returns a copy of t with the entries of override laid over it.
func (t LimitTable) Merge(override LimitTable) LimitTable {
	merged := make(LimitTable, len(t)+len(override))
	for enc, l := range t {
		merged[enc] = l
	}
	for enc, l := range override {
		merged[enc] = l
	}
	return merged
}
