package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/ciforge/internal/include"
	"github.com/specialistvlad/ciforge/internal/source"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New()
	m.MustRegister(registry)

	t.Run("ObserveCompilation", func(t *testing.T) {
		m.ObserveCompilation("created_successfully", "", 20*time.Millisecond, 4)
		m.ObserveCompilation("failed", "config_error", 5*time.Millisecond, 0)
		m.ObserveCompilation("failed", "config_error", 5*time.Millisecond, 0)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.compilations.WithLabelValues("created_successfully", "")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.compilations.WithLabelValues("failed", "config_error")))
		assert.Equal(t, 1, testutil.CollectAndCount(m.jobs))
	})

	t.Run("IncludeObserver", func(t *testing.T) {
		observe := m.IncludeObserver()
		observe(source.KindLocal, include.OutcomeFetched)
		observe(source.KindLocal, include.OutcomeMemoized)
		observe(source.KindLocal, include.OutcomeFetched)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.includeFetches.WithLabelValues(string(source.KindLocal), "fetched")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.includeFetches.WithLabelValues(string(source.KindLocal), "memoized")))
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var none *Metrics
		none.ObserveCompilation("failed", "other", time.Second, 0)
		none.IncludeObserver()(source.KindRemote, include.OutcomeError)
	})
}
