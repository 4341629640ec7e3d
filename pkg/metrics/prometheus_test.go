package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)

	r.RecordBarsFetched("yahoo", "AAPL", 10)
	r.RecordBarsFetched("yahoo", "MSFT", 5)
	r.RecordFilled("forward", 3)
	r.RecordFilled("leading", 1)
	r.RecordError("alignment")
	r.RecordDegradedTicker("ZZZ")
	r.RecordTurbulence(12.5)
	r.RecordLatency("align", 0.01)

	assert.Equal(t, 15.0, testutil.ToFloat64(r.barsFetched.WithLabelValues("yahoo")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.filled.WithLabelValues("forward")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("alignment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.degraded.WithLabelValues("ZZZ")))
	assert.Equal(t, 12.5, testutil.ToFloat64(r.turbulence))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}
