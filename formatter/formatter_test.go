package formatter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smscard-gateway/billing"
	"smscard-gateway/coding"
)

type recordingObserver struct {
	results []Result
}

func (o *recordingObserver) Observe(r Result) {
	o.results = append(o.results, r)
}

func newTestFormatter(opts ...Option) *Formatter {
	return New(nil, billing.DefaultCostPerUnit, opts...)
}

func TestFormatHello(t *testing.T) {
	res, err := newTestFormatter().Format(Draft{Text: "Hello", AutoSplit: true})
	require.NoError(t, err)

	assert.Equal(t, coding.GSM, res.DetectedEncoding)
	assert.Equal(t, coding.GSM, res.Encoding)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, MessageSegment{
		Index:          0,
		Content:        "Hello",
		CharacterCount: 5,
		SegmentUnits:   1,
		Cost:           50_000,
		Status:         StatusOK,
	}, res.Segments[0])
	assert.Equal(t, 1, res.TotalUnits)
	assert.Equal(t, 0.05, res.TotalCost.Float())
}

func TestFormatSplitsWithMediaOnFirstSegment(t *testing.T) {
	text := strings.Repeat("a", 200)
	res, err := newTestFormatter().Format(Draft{
		Text:         text,
		AutoSplit:    true,
		IncludeMedia: true,
		MediaURL:     "https://cards.example/cake.jpg",
	})
	require.NoError(t, err)
	require.Len(t, res.Segments, 2)

	assert.Equal(t, 160, res.Segments[0].CharacterCount)
	assert.Equal(t, 40, res.Segments[1].CharacterCount)
	assert.True(t, res.Segments[0].IncludesMedia)
	assert.Equal(t, "https://cards.example/cake.jpg", res.Segments[0].MediaURL)
	assert.False(t, res.Segments[1].IncludesMedia)
	assert.Empty(t, res.Segments[1].MediaURL)
	assert.Equal(t, 1, res.Segments[1].Index)
	assert.Equal(t, 2, res.TotalUnits)
	assert.Equal(t, 0.10, res.TotalCost.Float())
	var joined strings.Builder
	for _, seg := range res.Segments {
		joined.WriteString(seg.Content)
	}
	assert.Equal(t, text, joined.String())
}

func TestFormatNoSplit(t *testing.T) {
	res, err := newTestFormatter().Format(Draft{Text: strings.Repeat("a", 500), Encoding: coding.GSM})
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, 4, res.Segments[0].SegmentUnits)
	assert.Equal(t, StatusCritical, res.Segments[0].Status)
	assert.Equal(t, 0.20, res.TotalCost.Float())
}

func TestFormatStatus(t *testing.T) {
	res, err := newTestFormatter().Format(Draft{Text: strings.Repeat("a", 300), Encoding: coding.GSM})
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, res.Segments[0].Status)
}

func TestFormatEmptyAndBlank(t *testing.T) {
	obs := &recordingObserver{}
	f := newTestFormatter(WithObserver(obs))
	for _, text := range []string{"", "   \n "} {
		res, err := f.Format(Draft{Text: text, AutoSplit: true})
		require.NoError(t, err)
		assert.Empty(t, res.Segments)
		assert.NotNil(t, res.Segments)
		assert.Zero(t, res.TotalUnits)
		assert.Zero(t, res.TotalCost)
	}
	assert.Len(t, obs.results, 2)
}

func TestFormatDetectsUnicode(t *testing.T) {
	res, err := newTestFormatter().Format(Draft{Text: "café☕ " + strings.Repeat("x", 70), AutoSplit: true})
	require.NoError(t, err)
	assert.Equal(t, coding.Unicode, res.DetectedEncoding)
	assert.Equal(t, coding.Unicode, res.Encoding)
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 70, res.Segments[0].CharacterCount)
}

func TestFormatExplicitEncodingOverridesDetection(t *testing.T) {
	res, err := newTestFormatter().Format(Draft{Text: "Hello 🎂", Encoding: coding.GSM, AutoSplit: true})
	require.NoError(t, err)
	assert.Equal(t, coding.Unicode, res.DetectedEncoding)
	assert.Equal(t, coding.GSM, res.Encoding)
}

func TestFormatInvalidEncoding(t *testing.T) {
	_, err := newTestFormatter().Format(Draft{Text: "hi", Encoding: "KOI8"})
	assert.ErrorIs(t, err, coding.ErrInvalidEncoding)
}

func TestFormatNormalization(t *testing.T) {
	// "e" followed by a combining acute accent.
	decomposed := "Cafe\u0301"

	plain, err := newTestFormatter().Format(Draft{Text: decomposed, AutoSplit: true})
	require.NoError(t, err)
	assert.Equal(t, coding.Unicode, plain.DetectedEncoding)
	assert.Equal(t, 5, plain.CharacterCount)

	normalized, err := newTestFormatter(WithNormalization()).Format(Draft{Text: decomposed, AutoSplit: true})
	require.NoError(t, err)
	assert.Equal(t, coding.GSM, normalized.DetectedEncoding)
	assert.Equal(t, 4, normalized.CharacterCount)
	assert.Equal(t, "Caf\u00e9", normalized.Text)
}

func TestSegmentKeepsInputWhenNormalizing(t *testing.T) {
	f := newTestFormatter(WithNormalization())
	text := strings.Repeat("e\u0301", 100)

	assert.Equal(t, coding.Unicode, f.Classify(text))
	segments, err := f.Segment(text, coding.Unicode, true)
	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, text, strings.Join(segments, ""))

	count, err := f.SegmentCount(text, coding.Unicode, true)
	require.NoError(t, err)
	assert.Equal(t, len(segments), count)
}

func TestFormatIsDeterministic(t *testing.T) {
	f := newTestFormatter()
	d := Draft{Text: strings.Repeat("Shana tova! ", 30), AutoSplit: true}
	first, err := f.Format(d)
	require.NoError(t, err)
	second, err := f.Format(d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDraftValidate(t *testing.T) {
	assert.ErrorIs(t, Draft{IncludeMedia: true}.Validate(), ErrMissingMediaURL)
	assert.ErrorIs(t, Draft{Encoding: "UTF8"}.Validate(), coding.ErrInvalidEncoding)
	assert.NoError(t, Draft{IncludeMedia: true, MediaURL: "https://x"}.Validate())
	assert.NoError(t, Draft{}.Validate())
}

func TestFormatterCustomLimits(t *testing.T) {
	f := New(coding.LimitTable{
		coding.GSM:     {Single: 10, Concat: 5},
		coding.Unicode: {Single: 4, Concat: 2},
	}, 1_000)
	res, err := f.Format(Draft{Text: strings.Repeat("z", 21), AutoSplit: true})
	require.NoError(t, err)
	assert.Len(t, res.Segments, 4)
	assert.Equal(t, billing.Rate(4_000), res.TotalCost)
}
