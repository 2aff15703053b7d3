package otel

import (
	"context"
	"errors"
	"fmt"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter observes on every collection. *fedAuth.Facade
// implements it.
type Source interface {
	MetricsSnapshot() fedAuth.MetricsSnapshot
	AuditDropped() uint64
	Session() fedAuth.Session
}

type latencyInstruments struct {
	id      fedAuth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// OTelExporter publishes facade metrics and session state as observable
// instruments on a meter.
type OTelExporter struct {
	source       Source
	registration metric.Registration

	counters     map[fedAuth.MetricID]metric.Int64ObservableCounter
	latency      []latencyInstruments
	session      []metric.Float64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read facade.
func NewOTelExporter(meter metric.Meter, facade *fedAuth.Facade) (*OTelExporter, error) {
	if facade == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, facade)
}

// NewOTelExporterFromSource registers instruments on meter that read source.
func NewOTelExporterFromSource(meter metric.Meter, source Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[fedAuth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		li, err := newLatencyInstruments(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, li)
		for _, b := range li.buckets {
			observables = append(observables, b)
		}
		observables = append(observables, li.count, li.sum)
	}

	for _, def := range internaldefs.SessionGaugeDefs {
		ins, err := meter.Float64ObservableGauge(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create session gauge %s: %w", def.Name, err)
		}
		e.session = append(e.session, ins)
		observables = append(observables, ins)
	}

	dropped, err := meter.Int64ObservableCounter("fedauth_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func newLatencyInstruments(meter metric.Meter, def internaldefs.HistogramDef) (latencyInstruments, error) {
	li := latencyInstruments{id: def.ID}
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
		if err != nil {
			return li, fmt.Errorf("create bucket gauge %s: %w", name, err)
		}
		li.buckets[i] = ins
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
	if err != nil {
		return li, fmt.Errorf("create count gauge %s_count: %w", def.Name, err)
	}
	sum, err := meter.Float64ObservableGauge(def.Name+"_sum",
		metric.WithDescription("Histogram total observed time."), metric.WithUnit("s"))
	if err != nil {
		return li, fmt.Errorf("create sum gauge %s_sum: %w", def.Name, err)
	}
	li.count, li.sum = count, sum
	return li, nil
}

// observe skips counters and histograms while facade metrics are disabled.
func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) > 0 {
		for id, ins := range e.counters {
			o.ObserveInt64(ins, int64(snapshot.Counters[id]))
		}
	}
	for _, li := range e.latency {
		raw, ok := snapshot.Histograms[li.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, ins := range li.buckets {
			o.ObserveInt64(ins, int64(cumulative[i]))
		}
		o.ObserveInt64(li.count, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(li.sum, snapshot.Sums[li.id].Seconds())
	}

	session := e.source.Session()
	for i, def := range internaldefs.SessionGaugeDefs {
		o.ObserveFloat64(e.session[i], def.Value(session))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
