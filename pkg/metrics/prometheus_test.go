package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_CountsByLabel(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordCall("ticker", "success")
	r.RecordCall("ticker", "success")
	r.RecordCall("ticker", "circuit_open")
	r.RecordCache("primary", "set", "error")
	r.RecordBreakerState("ticker", 1)
	r.RecordConfluence("BTCUSDT", 64.2, 0.31)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("ticker", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.callsTotal.WithLabelValues("ticker", "circuit_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheOps.WithLabelValues("primary", "set", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerState.WithLabelValues("ticker")))
	assert.Equal(t, 64.2, testutil.ToFloat64(r.score.WithLabelValues("BTCUSDT")))
}

func TestRecorder_SeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
