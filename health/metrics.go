package health

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"smscard-gateway/formatter"
)

// Collector exports the health registry as gauges on every scrape.
type Collector struct {
	desc     map[string]*prometheus.Desc
	registry *Registry
}

func NewCollector(registry *Registry) *Collector {
	return &Collector{
		desc: map[string]*prometheus.Desc{
			"component_up":      prometheus.NewDesc("smscard_component_up", "Whether a backing component answered its health check", []string{"component"}, nil),
			"component_latency": prometheus.NewDesc("smscard_component_latency_seconds", "Latency of the last health check", []string{"component"}, nil),
		},
		registry: registry,
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.desc {
		ch <- desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	report := c.registry.Report(context.Background())
	for _, comp := range report.Components {
		up := 0.0
		if comp.Up {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.desc["component_up"], prometheus.GaugeValue, up, comp.Name)
		ch <- prometheus.MustNewConstMetric(c.desc["component_latency"], prometheus.GaugeValue, comp.LatencyMS/1000, comp.Name)
	}
}

// FormatterMetrics counts formatting results by encoding. It satisfies
// formatter.Observer.
type FormatterMetrics struct {
	Messages *prometheus.CounterVec
	Segments *prometheus.CounterVec
	Units    *prometheus.CounterVec
	Cost     *prometheus.CounterVec
}

func NewFormatterMetrics(reg prometheus.Registerer) *FormatterMetrics {
	m := &FormatterMetrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smscard_messages_formatted_total",
			Help: "Messages run through the formatter",
		}, []string{"encoding"}),
		Segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smscard_segments_total",
			Help: "Segments produced by the formatter",
		}, []string{"encoding"}),
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smscard_segment_units_total",
			Help: "Billable units produced by the formatter",
		}, []string{"encoding"}),
		Cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smscard_estimated_cost_total",
			Help: "Estimated cost of formatted messages in currency units",
		}, []string{"encoding"}),
	}
	if reg != nil {
		reg.MustRegister(m.Messages, m.Segments, m.Units, m.Cost)
	}
	return m
}

func (m *FormatterMetrics) Observe(res formatter.Result) {
	enc := res.Encoding.String()
	m.Messages.WithLabelValues(enc).Inc()
	m.Segments.WithLabelValues(enc).Add(float64(len(res.Segments)))
	m.Units.WithLabelValues(enc).Add(float64(res.TotalUnits))
	m.Cost.WithLabelValues(enc).Add(res.TotalCost.Float())
}
