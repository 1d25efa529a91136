package metric

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/seatrack/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestCoreMetrics_NilRegistry(t *testing.T) {
	var registry *MetricsRegistry
	assert.Nil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	require.NoError(t, registry.RegisterCounter("tcp-input", "test_counter", counter))
	counter.Inc()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	require.NoError(t, registry.RegisterGauge("udp-input", "dup_gauge", gauge))

	err := registry.RegisterGauge("udp-input", "dup_gauge", gauge)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	err = registry.RegisterGauge("serial-input", "dup_gauge", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "prometheus name conflict is an invalid registration")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "vec_total", Help: "v"}, []string{"k"})
	require.NoError(t, registry.RegisterCounterVec("feed", "vec_total", vec))

	assert.True(t, registry.Unregister("feed", "vec_total"))
	assert.False(t, registry.Unregister("feed", "vec_total"))

	require.NoError(t, registry.RegisterCounterVec("feed", "vec_total", vec))
}

func TestMetricsRegistry_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.Metrics.LinesTotal.WithLabelValues("talker").Add(3)
	registry.Metrics.Contacts.Set(7)

	assert.Equal(t, 3.0, testutil.ToFloat64(registry.Metrics.LinesTotal.WithLabelValues("talker")))

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `seatrack_router_lines_total{dialect="talker"} 3`)
	assert.Contains(t, string(body), "seatrack_store_contacts 7")
}
