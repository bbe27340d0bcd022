package coding

import (
	"unicode/utf8"
)

// Splitter cuts message text into transmission segments.
type Splitter struct {
	Limits LimitTable
}

// NewSplitter returns a Splitter using limits, or DefaultLimits when limits is nil.
func NewSplitter(limits LimitTable) *Splitter {
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Splitter{Limits: limits}
}

var defaultSplitter = NewSplitter(nil)

// Split partitions text with the default limits. See Splitter.Split.
func Split(text string, enc Encoding, autoSplit bool) ([]string, error) {
	return defaultSplitter.Split(text, enc, autoSplit)
}

// Split partitions text into segments for enc.
//
// Empty text gives no segments. When autoSplit is false, or the text fits the
// single-segment limit, the text is returned whole. Otherwise the first segment
// holds Single characters and every following one up to Concat characters.
// Lengths count code points; joining the segments yields text unchanged.
func (s *Splitter) Split(text string, enc Encoding, autoSplit bool) ([]string, error) {
	limits, err := s.Limits.For(enc)
	if err != nil {
		return nil, err
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	length := utf8.RuneCountInString(text)
	if !autoSplit || length <= limits.Single {
		return []string{text}, nil
	}

	segments := make([]string, 0, 1+(length-limits.Single+limits.Concat-1)/limits.Concat)
	limit := limits.Single
	for text != "" {
		cut := runeOffset(text, limit)
		segments = append(segments, text[:cut])
		text = text[cut:]
		limit = limits.Concat
	}
	return segments, nil
}

// Count returns how many segments Split would produce, without building them.
func (s *Splitter) Count(text string, enc Encoding, autoSplit bool) (int, error) {
	limits, err := s.Limits.For(enc)
	if err != nil {
		return 0, err
	}
	if err := limits.Validate(); err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	if !autoSplit {
		return 1, nil
	}
	return limits.Units(utf8.RuneCountInString(text)), nil
}

// runeOffset returns the byte offset of the n-th rune of s, or len(s) when s
// is shorter than n runes.
func runeOffset(s string, n int) int {
	offset := 0
	for i := 0; i < n && offset < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[offset:])
		offset += size
	}
	return offset
}
