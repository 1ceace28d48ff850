package gateio

import (
	"math"
	"sync"

	"github.com/quantarc/gateio-gateway/internal/observability"
)

// SlippageUnset marks a measurement whose slippage was never computed.
const SlippageUnset = math.MaxFloat64

// latencyWindow bounds the per-algorithm rolling average.
const latencyWindow = 128

// Measurement is one completed order round-trip timing. Timestamps are
// nanoseconds since the epoch; latencies are microseconds.
type Measurement struct {
	AlgoID          string
	StartNanos      int64
	EndNanos        int64
	InternalMicros  int64
	ExchangeMicros  int64
	RoundTripMicros int64
	Slippage        float64
}

// LatencyRecorder times order round-trips keyed by internal order id. The
// opening timestamp is captured upstream by the caller; the closing timestamp
// is captured immediately before dispatch.
type LatencyRecorder struct {
	mu     sync.Mutex
	open   map[int64]Measurement
	done   map[int64]Measurement
	byAlgo map[string][]Measurement
}

// NewLatencyRecorder returns an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{
		open:   make(map[int64]Measurement, correlationPresize),
		done:   make(map[int64]Measurement, correlationPresize),
		byAlgo: make(map[string][]Measurement),
	}
}

// StartMeasurement opens the internal-latency window for an order.
func (r *LatencyRecorder) StartMeasurement(orderID int64, algoID string, startNanos int64) {
	r.mu.Lock()
	r.open[orderID] = Measurement{
		AlgoID:     algoID,
		StartNanos: startNanos,
		Slippage:   SlippageUnset,
	}
	r.mu.Unlock()
}

// StopMeasurement closes the internal-latency window. An order with no open
// window is ignored.
func (r *LatencyRecorder) StopMeasurement(orderID int64, endNanos int64) {
	r.mu.Lock()
	m, ok := r.open[orderID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.open, orderID)
	m.EndNanos = endNanos
	m.InternalMicros = (endNanos - m.StartNanos) / 1000
	m.RoundTripMicros = m.InternalMicros
	r.done[orderID] = m
	r.appendToWindowLocked(m)
	r.mu.Unlock()

	observability.Telemetry().ObserveHistogram(
		"gateway_order_internal_latency_micros",
		float64(m.InternalMicros),
		map[string]string{"algorithm_id": m.AlgoID},
	)
}

// RecordExchangeLatency attaches the exchange-side latency once the
// acknowledgement arrives and completes the round-trip figure.
func (r *LatencyRecorder) RecordExchangeLatency(orderID, micros int64) {
	r.mu.Lock()
	m, ok := r.done[orderID]
	if !ok {
		r.mu.Unlock()
		return
	}
	m.ExchangeMicros = micros
	m.RoundTripMicros = m.InternalMicros + micros
	r.done[orderID] = m
	r.mu.Unlock()
}

// SetSlippage records the slippage percentage for a completed measurement.
func (r *LatencyRecorder) SetSlippage(orderID int64, pct float64) {
	r.mu.Lock()
	if m, ok := r.done[orderID]; ok {
		m.Slippage = pct
		r.done[orderID] = m
	}
	r.mu.Unlock()
}

// Measurement returns the completed measurement for an order.
func (r *LatencyRecorder) Measurement(orderID int64) (Measurement, bool) {
	r.mu.Lock()
	m, ok := r.done[orderID]
	r.mu.Unlock()
	return m, ok
}

// AverageByAlgo returns the rolling average over the algorithm's recent
// measurements. Slippage averages only the measurements that carry one.
func (r *LatencyRecorder) AverageByAlgo(algoID string) (Measurement, bool) {
	r.mu.Lock()
	window := r.byAlgo[algoID]
	r.mu.Unlock()
	if len(window) == 0 {
		return Measurement{}, false
	}

	avg := Measurement{AlgoID: algoID, Slippage: SlippageUnset}
	var slipSum float64
	var slipCount int64
	for _, m := range window {
		avg.StartNanos = m.StartNanos
		avg.EndNanos = m.EndNanos
		avg.InternalMicros += m.InternalMicros
		avg.ExchangeMicros += m.ExchangeMicros
		avg.RoundTripMicros += m.RoundTripMicros
		if m.Slippage != SlippageUnset {
			slipSum += m.Slippage
			slipCount++
		}
	}
	n := int64(len(window))
	avg.InternalMicros /= n
	avg.ExchangeMicros /= n
	avg.RoundTripMicros /= n
	if slipCount > 0 {
		avg.Slippage = slipSum / float64(slipCount)
	}
	return avg, true
}

func (r *LatencyRecorder) appendToWindowLocked(m Measurement) {
	if m.AlgoID == "" {
		return
	}
	window := append(r.byAlgo[m.AlgoID], m)
	if len(window) > latencyWindow {
		window = window[len(window)-latencyWindow:]
	}
	r.byAlgo[m.AlgoID] = window
}
