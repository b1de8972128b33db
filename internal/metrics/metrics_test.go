package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestCollect(t *testing.T) {
	collect(StatsSource{
		DestinationSize: func() int { return 42 },
		SeenKeys:        func() int { return 7 },
		Streaming:       func() bool { return true },
	})

	assert.Equal(t, float64(42), gaugeValue(t, DestinationSize))
	assert.Equal(t, float64(7), gaugeValue(t, SeenKeys))
	assert.Equal(t, float64(1), gaugeValue(t, ConnectionState))

	collect(StatsSource{Streaming: func() bool { return false }})
	assert.Equal(t, float64(0), gaugeValue(t, ConnectionState))
}

func TestCollect_UnavailableSourceKeepsLastValue(t *testing.T) {
	collect(StatsSource{DestinationSize: func() int { return 10 }})
	collect(StatsSource{DestinationSize: func() int { return -1 }})

	assert.Equal(t, float64(10), gaugeValue(t, DestinationSize))
}

func TestStartCollector_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	StartCollector(ctx, StatsSource{SeenKeys: func() int { return 3 }}, time.Millisecond)
	cancel()

	assert.Equal(t, float64(3), gaugeValue(t, SeenKeys))
}

func TestHandler_ExposesStreamMetrics(t *testing.T) {
	DuplicatesTotal.Inc()
	PersistedTotal.WithLabelValues("dedup").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tweetcastr_duplicates_total"))
	assert.True(t, strings.Contains(body, `tweetcastr_persisted_total{path="dedup"}`))
	assert.GreaterOrEqual(t, testutil.ToFloat64(DuplicatesTotal), float64(1))
}
