package telemetry

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"
)

const meterScope = "gateio-gateway"

// Collector adapts an OpenTelemetry meter to the gateway's metrics contract.
// Instruments are created on first use and cached by name.
type Collector struct {
	meter apimetric.Meter

	mu         sync.Mutex
	counters   map[string]apimetric.Float64Counter
	histograms map[string]apimetric.Float64Histogram
	gauges     map[string]apimetric.Float64Gauge
}

// NewCollector builds a Collector backed by the given meter provider.
func NewCollector(provider apimetric.MeterProvider) *Collector {
	return &Collector{
		meter:      provider.Meter(meterScope),
		counters:   make(map[string]apimetric.Float64Counter),
		histograms: make(map[string]apimetric.Float64Histogram),
		gauges:     make(map[string]apimetric.Float64Gauge),
	}
}

// IncCounter adds value to the named counter.
func (c *Collector) IncCounter(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	counter, ok := c.counters[name]
	if !ok {
		created, err := c.meter.Float64Counter(name)
		if err != nil {
			c.mu.Unlock()
			return
		}
		counter = created
		c.counters[name] = counter
	}
	c.mu.Unlock()
	counter.Add(context.Background(), value, apimetric.WithAttributes(attrsFromLabels(labels)...))
}

// ObserveHistogram records value into the named histogram.
func (c *Collector) ObserveHistogram(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	histogram, ok := c.histograms[name]
	if !ok {
		created, err := c.meter.Float64Histogram(name)
		if err != nil {
			c.mu.Unlock()
			return
		}
		histogram = created
		c.histograms[name] = histogram
	}
	c.mu.Unlock()
	histogram.Record(context.Background(), value, apimetric.WithAttributes(attrsFromLabels(labels)...))
}

// SetGauge records the current value of the named gauge.
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	gauge, ok := c.gauges[name]
	if !ok {
		created, err := c.meter.Float64Gauge(name)
		if err != nil {
			c.mu.Unlock()
			return
		}
		gauge = created
		c.gauges[name] = gauge
	}
	c.mu.Unlock()
	gauge.Record(context.Background(), value, apimetric.WithAttributes(attrsFromLabels(labels)...))
}

func attrsFromLabels(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, labels[key]))
	}
	return attrs
}
