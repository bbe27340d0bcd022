// Package formatter turns a message draft into the segment list that will be
// sent and billed. It glues the coding and billing packages together and is the
// single place that decides which encoding a draft goes out with.
package formatter

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"smscard-gateway/billing"
	"smscard-gateway/coding"
)

// Status summarises how expensive a segment is, for display.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// warningUnits is the most units a segment may take before it is critical.
const warningUnits = 3

// Draft is the complete input of one formatting pass. A zero Encoding means
// "use the detected encoding".
type Draft struct {
	Text         string          `json:"text"`
	Encoding     coding.Encoding `json:"encoding,omitempty"`
	AutoSplit    bool            `json:"auto_split"`
	IncludeMedia bool            `json:"include_media"`
	MediaURL     string          `json:"media_url,omitempty"`
}

// Validate performs the host-level checks that Format itself does not.
func (d Draft) Validate() error {
	if d.IncludeMedia && strings.TrimSpace(d.MediaURL) == "" {
		return ErrMissingMediaURL
	}
	if d.Encoding != "" && !d.Encoding.Valid() {
		return coding.ErrInvalidEncoding
	}
	return nil
}

// MessageSegment is one transmission-sized piece of a formatted message.
type MessageSegment struct {
	Index          int          `json:"index"`
	Content        string       `json:"content"`
	CharacterCount int          `json:"character_count"`
	SegmentUnits   int          `json:"segment_units"`
	Cost           billing.Rate `json:"cost"`
	IncludesMedia  bool         `json:"includes_media"`
	MediaURL       string       `json:"media_url,omitempty"`
	Status         Status       `json:"status"`
}

// Result is the output of Format. It is derived data and is rebuilt from the
// draft on every call.
type Result struct {
	Text             string           `json:"text"`
	DetectedEncoding coding.Encoding  `json:"detected_encoding"`
	Encoding         coding.Encoding  `json:"encoding"`
	CharacterCount   int              `json:"character_count"`
	Segments         []MessageSegment `json:"segments"`
	TotalUnits       int              `json:"total_units"`
	TotalCost        billing.Rate     `json:"total_cost"`
}

// Observer is told about every formatted result. It is how metrics hook in.
type Observer interface {
	Observe(Result)
}

// Formatter formats drafts with a fixed limit table and rate.
type Formatter struct {
	splitter  *coding.Splitter
	estimator *billing.Estimator
	limits    coding.LimitTable
	normalize bool
	observer  Observer
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithNormalization makes Format convert the text to Unicode NFC first, so
// decomposed accents count as one character and can still match the GSM alphabet.
func WithNormalization() Option {
	return func(f *Formatter) { f.normalize = true }
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(f *Formatter) { f.observer = o }
}

// New builds a Formatter. A nil limit table means coding.DefaultLimits.
func New(limits coding.LimitTable, costPerUnit billing.Rate, opts ...Option) *Formatter {
	if limits == nil {
		limits = coding.DefaultLimits()
	}
	f := &Formatter{
		splitter:  coding.NewSplitter(limits),
		estimator: billing.NewEstimator(limits, costPerUnit),
		limits:    limits,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Limits returns the limit table the formatter splits with.
func (f *Formatter) Limits() coding.LimitTable {
	return f.limits
}

// CostPerUnit returns the rate the formatter bills with.
func (f *Formatter) CostPerUnit() billing.Rate {
	return f.estimator.CostPerUnit
}

// Classify is coding.Classify, exposed for "detected encoding" displays.
// Unlike Format it never normalizes, so it agrees with Segment on the same text.
func (f *Formatter) Classify(text string) coding.Encoding {
	return coding.Classify(text)
}

// Segment splits text with the formatter's limits. The text is split as given,
// so the segments always join back to it.
func (f *Formatter) Segment(text string, enc coding.Encoding, autoSplit bool) ([]string, error) {
	return f.splitter.Split(text, enc, autoSplit)
}

// SegmentCount returns how many segments Segment would produce.
func (f *Formatter) SegmentCount(text string, enc coding.Encoding, autoSplit bool) (int, error) {
	return f.splitter.Count(text, enc, autoSplit)
}

// Estimate prices segments with the formatter's limits and rate.
func (f *Formatter) Estimate(segments []string, enc coding.Encoding) (billing.Estimate, error) {
	return f.estimator.Estimate(segments, enc)
}

// Format splits and prices a draft. Whitespace-only text gives no segments.
// Media, when enabled, is attached to the first segment only.
func (f *Formatter) Format(d Draft) (Result, error) {
	text := f.prepare(d.Text)
	detected := coding.Classify(text)

	enc := d.Encoding
	if enc == "" {
		enc = detected
	}
	limits, err := f.limits.For(enc)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Text:             text,
		DetectedEncoding: detected,
		Encoding:         enc,
		CharacterCount:   utf8.RuneCountInString(text),
		Segments:         []MessageSegment{},
	}
	if strings.TrimSpace(text) == "" {
		f.notify(res)
		return res, nil
	}

	pieces, err := f.splitter.Split(text, enc, d.AutoSplit)
	if err != nil {
		return Result{}, err
	}
	est, err := f.estimator.Estimate(pieces, enc)
	if err != nil {
		return Result{}, err
	}

	res.Segments = make([]MessageSegment, len(est.PerSegment))
	for i, sc := range est.PerSegment {
		count := utf8.RuneCountInString(sc.Content)
		seg := MessageSegment{
			Index:          i,
			Content:        sc.Content,
			CharacterCount: count,
			SegmentUnits:   sc.Units,
			Cost:           sc.Cost,
			Status:         segmentStatus(count, sc.Units, limits),
		}
		if d.IncludeMedia && i == 0 {
			seg.IncludesMedia = true
			seg.MediaURL = d.MediaURL
		}
		res.Segments[i] = seg
	}
	res.TotalUnits = est.TotalUnits
	res.TotalCost = est.TotalCost

	f.notify(res)
	return res, nil
}

func (f *Formatter) prepare(text string) string {
	if f.normalize {
		return norm.NFC.String(text)
	}
	return text
}

func (f *Formatter) notify(res Result) {
	if f.observer != nil {
		f.observer.Observe(res)
	}
}

func segmentStatus(count, units int, limits coding.Limits) Status {
	switch {
	case count <= limits.Single:
		return StatusOK
	case units <= warningUnits:
		return StatusWarning
	default:
		return StatusCritical
	}
}
