package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names. Counters share one instrument keyed by the event
// attribute; the latency histogram is published as cumulative bucket gauges
// keyed by le.
const (
	EventsName         = "lmsauth.events"
	LatencyBucketsName = "lmsauth.authenticate.latency.buckets"
	LatencyCountName   = "lmsauth.authenticate.latency.count"
	AuditDroppedName   = "lmsauth.audit.dropped"

	EventKey = attribute.Key("event")
	LeKey    = attribute.Key("le")
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source supplies snapshots. *lmsauth.Authority implements it.
type Source interface {
	MetricsSnapshot() lmsauth.MetricsSnapshot
	AuditDropped() uint64
}

type eventSeries struct {
	id    lmsauth.MetricID
	attrs metric.ObserveOption
}

// Exporter publishes authority counters through observable OTel instruments.
type Exporter struct {
	source       Source
	registration metric.Registration

	events       metric.Int64ObservableCounter
	series       []eventSeries
	buckets      metric.Int64ObservableGauge
	bucketAttrs  []metric.ObserveOption
	count        metric.Int64ObservableGauge
	auditDropped metric.Int64ObservableCounter
}

// New registers instruments on meter that read from auth on every collection.
func New(meter metric.Meter, auth *lmsauth.Authority) (*Exporter, error) {
	if auth == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, auth)
}

// NewFromSource is New over any Source.
func NewFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}

	var err error
	e.events, err = meter.Int64ObservableCounter(EventsName,
		metric.WithDescription("Authority events by kind."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", EventsName, err)
	}
	for _, def := range internaldefs.CounterDefs {
		e.series = append(e.series, eventSeries{
			id:    def.ID,
			attrs: metric.WithAttributeSet(attribute.NewSet(EventKey.String(def.Event()))),
		})
	}

	e.buckets, err = meter.Int64ObservableGauge(LatencyBucketsName,
		metric.WithDescription("Cumulative Authenticate latency bucket counts; le is the upper bound in seconds."),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyBucketsName, err)
	}
	for _, le := range internaldefs.HistogramBounds {
		e.bucketAttrs = append(e.bucketAttrs, metric.WithAttributeSet(attribute.NewSet(LeKey.String(le))))
	}

	e.count, err = meter.Int64ObservableGauge(LatencyCountName,
		metric.WithDescription("Authenticate calls observed by the latency histogram."),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyCountName, err)
	}

	e.auditDropped, err = meter.Int64ObservableCounter(AuditDroppedName,
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", AuditDroppedName, err)
	}

	e.registration, err = meter.RegisterCallback(e.observe, e.events, e.buckets, e.count, e.auditDropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, s := range e.series {
		o.ObserveInt64(e.events, int64(snapshot.Counters[s.id]), s.attrs)
	}

	cumulative := internaldefs.CumulativeBuckets(
		internaldefs.NormalizeBuckets(snapshot.Histograms[lmsauth.MetricAuthenticateLatency]),
	)
	for i, attrs := range e.bucketAttrs {
		o.ObserveInt64(e.buckets, int64(cumulative[i]), attrs)
	}
	o.ObserveInt64(e.count, int64(cumulative[len(cumulative)-1]))

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
