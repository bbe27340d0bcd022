package billing

import (
	"unicode/utf8"

	"smscard-gateway/coding"
)

// SegmentCost is the billing of one segment.
type SegmentCost struct {
	Content string `json:"content"`
	Units   int    `json:"units"`
	Cost    Rate   `json:"cost"`
}

// Estimate is the billing of a whole segment list.
type Estimate struct {
	PerSegment []SegmentCost `json:"per_segment"`
	TotalUnits int           `json:"total_units"`
	TotalCost  Rate          `json:"total_cost"`
}

// Estimator prices segment lists.
type Estimator struct {
	Limits      coding.LimitTable
	CostPerUnit Rate
}

// NewEstimator returns an Estimator with the given limits and rate. A nil
// table means coding.DefaultLimits.
func NewEstimator(limits coding.LimitTable, costPerUnit Rate) *Estimator {
	if limits == nil {
		limits = coding.DefaultLimits()
	}
	return &Estimator{Limits: limits, CostPerUnit: costPerUnit}
}

var defaultEstimator = NewEstimator(nil, DefaultCostPerUnit)

// EstimateCost prices segments with the default limits and rate.
func EstimateCost(segments []string, enc coding.Encoding) (Estimate, error) {
	return defaultEstimator.Estimate(segments, enc)
}

// Estimate prices every segment on its own: the units of a segment are those
// its content would need if sent standalone under enc, so an oversized piece
// is billed for all the units it really takes.
func (e *Estimator) Estimate(segments []string, enc coding.Encoding) (Estimate, error) {
	limits, err := e.Limits.For(enc)
	if err != nil {
		return Estimate{}, err
	}
	if err := limits.Validate(); err != nil {
		return Estimate{}, err
	}

	est := Estimate{PerSegment: make([]SegmentCost, 0, len(segments))}
	for _, content := range segments {
		units := limits.Units(utf8.RuneCountInString(content))
		cost := Rate(units) * e.CostPerUnit
		est.PerSegment = append(est.PerSegment, SegmentCost{
			Content: content,
			Units:   units,
			Cost:    cost,
		})
		est.TotalUnits += units
		est.TotalCost += cost
	}
	return est, nil
}
