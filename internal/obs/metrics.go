// Package obs carries the in-process stage-timing metrics the retrieval and
// answer pipelines record: a narrow Metrics interface, an OpenTelemetry
// implementation, and a no-op default so components never need to nil-check.
package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the surface the pipelines record against. Implementations must
// be safe for concurrent use.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// Noop drops every observation.
type Noop struct{}

func (Noop) IncCounter(string, map[string]string)                {}
func (Noop) ObserveHistogram(string, float64, map[string]string) {}

// Otel records through the global OpenTelemetry meter provider, caching
// instruments by name so hot paths do not re-create them per call.
type Otel struct {
	meter metric.Meter

	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

func NewOtel(scope string) *Otel {
	return &Otel{
		meter:      otel.Meter(scope),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (o *Otel) IncCounter(name string, labels map[string]string) {
	if o == nil {
		return
	}
	o.mu.RLock()
	c, ok := o.counters[name]
	o.mu.RUnlock()
	if !ok {
		o.mu.Lock()
		c, ok = o.counters[name]
		if !ok {
			var err error
			c, err = o.meter.Int64Counter(name)
			if err != nil {
				o.mu.Unlock()
				return
			}
			o.counters[name] = c
		}
		o.mu.Unlock()
	}
	c.Add(context.Background(), 1, metric.WithAttributes(toAttrs(labels)...))
}

func (o *Otel) ObserveHistogram(name string, value float64, labels map[string]string) {
	if o == nil {
		return
	}
	o.mu.RLock()
	h, ok := o.histograms[name]
	o.mu.RUnlock()
	if !ok {
		o.mu.Lock()
		h, ok = o.histograms[name]
		if !ok {
			var err error
			h, err = o.meter.Float64Histogram(name)
			if err != nil {
				o.mu.Unlock()
				return
			}
			o.histograms[name] = h
		}
		o.mu.Unlock()
	}
	h.Record(context.Background(), value, metric.WithAttributes(toAttrs(labels)...))
}

func toAttrs(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
