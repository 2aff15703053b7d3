package prometheus

import (
	"net/http"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is what the collector reads on every scrape. *fedAuth.Facade
// implements it.
type Source interface {
	MetricsSnapshot() fedAuth.MetricsSnapshot
	AuditDropped() uint64
	Session() fedAuth.Session
}

type counterDesc struct {
	id   fedAuth.MetricID
	desc *prom.Desc
}

type histogramDesc struct {
	id   fedAuth.MetricID
	desc *prom.Desc
}

type gaugeDesc struct {
	value func(fedAuth.Session) float64
	desc  *prom.Desc
}

// Collector turns facade snapshots into const metrics at scrape time.
type Collector struct {
	source     Source
	counters   []counterDesc
	histograms []histogramDesc
	gauges     []gaugeDesc
	dropped    *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from facade. A nil facade yields a
// collector that reports nothing.
func NewCollector(facade *fedAuth.Facade) *Collector {
	if facade == nil {
		return NewCollectorFromSource(nil)
	}
	return NewCollectorFromSource(facade)
}

// NewCollectorFromSource creates a collector from any [Source].
func NewCollectorFromSource(source Source) *Collector {
	c := &Collector{
		source:     source,
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		gauges:     make([]gaugeDesc, 0, len(internaldefs.SessionGaugeDefs)),
		dropped: prom.NewDesc("fedauth_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.SessionGaugeDefs {
		c.gauges = append(c.gauges, gaugeDesc{value: def.Value, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	for _, d := range c.gauges {
		ch <- d.desc
	}
	ch <- c.dropped
}

// Collect emits counters and histograms only while facade metrics are
// enabled. Session gauges and the audit drop count are always emitted.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	if c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	if len(snapshot.Counters) > 0 {
		for _, d := range c.counters {
			ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(snapshot.Counters[d.id]))
		}
	}

	for _, d := range c.histograms {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]
		ch <- prom.MustNewConstHistogram(d.desc, count, snapshot.Sums[d.id].Seconds(), buckets)
	}

	session := c.source.Session()
	for _, d := range c.gauges {
		ch <- prom.MustNewConstMetric(d.desc, prom.GaugeValue, d.value(session))
	}

	ch <- prom.MustNewConstMetric(c.dropped, prom.CounterValue, float64(c.source.AuditDropped()))
}

// Handler serves the collector from a dedicated registry.
func (c *Collector) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
