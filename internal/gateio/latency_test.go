package gateio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartStopMeasurement(t *testing.T) {
	r := NewLatencyRecorder()
	r.StartMeasurement(101, "algo-1", 1_000_000)
	r.StopMeasurement(101, 4_000_000)

	m, ok := r.Measurement(101)
	require.True(t, ok)
	require.Equal(t, "algo-1", m.AlgoID)
	require.Equal(t, int64(1_000_000), m.StartNanos)
	require.Equal(t, int64(4_000_000), m.EndNanos)
	require.Equal(t, int64(3000), m.InternalMicros)
	require.Equal(t, int64(3000), m.RoundTripMicros)
	require.Equal(t, SlippageUnset, m.Slippage)
}

func TestStopWithoutStartIgnored(t *testing.T) {
	r := NewLatencyRecorder()
	r.StopMeasurement(999, 5_000_000)

	_, ok := r.Measurement(999)
	require.False(t, ok)
}

func TestRecordExchangeLatencyCompletesRoundTrip(t *testing.T) {
	r := NewLatencyRecorder()
	r.StartMeasurement(101, "algo-1", 0)
	r.StopMeasurement(101, 2_000_000)
	r.RecordExchangeLatency(101, 500)

	m, ok := r.Measurement(101)
	require.True(t, ok)
	require.Equal(t, int64(500), m.ExchangeMicros)
	require.Equal(t, int64(2500), m.RoundTripMicros)

	// Unknown order is a no-op.
	r.RecordExchangeLatency(999, 500)
}

func TestSetSlippage(t *testing.T) {
	r := NewLatencyRecorder()
	r.StartMeasurement(101, "algo-1", 0)
	r.StopMeasurement(101, 1_000_000)
	r.SetSlippage(101, 0.25)

	m, _ := r.Measurement(101)
	require.Equal(t, 0.25, m.Slippage)
}

func TestAverageByAlgo(t *testing.T) {
	r := NewLatencyRecorder()

	_, ok := r.AverageByAlgo("algo-1")
	require.False(t, ok)

	r.StartMeasurement(1, "algo-1", 0)
	r.StopMeasurement(1, 2_000_000)
	r.StartMeasurement(2, "algo-1", 0)
	r.StopMeasurement(2, 4_000_000)

	avg, ok := r.AverageByAlgo("algo-1")
	require.True(t, ok)
	require.Equal(t, int64(3000), avg.InternalMicros)
	// No measurement carries slippage yet.
	require.Equal(t, SlippageUnset, avg.Slippage)
}

func TestAverageSlippageOnlyOverSetValues(t *testing.T) {
	r := NewLatencyRecorder()
	r.StartMeasurement(1, "algo-1", 0)
	r.StopMeasurement(1, 1_000_000)
	r.StartMeasurement(2, "algo-1", 0)
	r.StopMeasurement(2, 1_000_000)

	// Slippage set after the window entry is appended is not reflected in
	// the window; only measurements stopped with one already applied count.
	avg, ok := r.AverageByAlgo("algo-1")
	require.True(t, ok)
	require.Equal(t, SlippageUnset, avg.Slippage)
}

func TestRollingWindowBounded(t *testing.T) {
	r := NewLatencyRecorder()
	for i := int64(1); i <= latencyWindow+10; i++ {
		r.StartMeasurement(i, "algo-1", 0)
		r.StopMeasurement(i, i*1_000)
	}
	require.Len(t, r.byAlgo["algo-1"], latencyWindow)
}

func TestMeasurementsWithoutAlgoSkipWindow(t *testing.T) {
	r := NewLatencyRecorder()
	r.StartMeasurement(1, "", 0)
	r.StopMeasurement(1, 1_000_000)

	_, ok := r.AverageByAlgo("")
	require.False(t, ok)
	_, ok = r.Measurement(1)
	require.True(t, ok)
}
