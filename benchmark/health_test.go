package benchmark

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func metricsPayload(count, sum float64, cumulative []float64) string {
	bounds := []float64{0.01, 0.1, 0.5, 1, 5}
	out := fmt.Sprintf("# HELP %s request latency\n# TYPE %s histogram\n", LatencyMetricName, LatencyMetricName)
	for i, b := range bounds {
		out += fmt.Sprintf("%s_bucket{le=\"%v\"} %v\n", LatencyMetricName, b, cumulative[i])
	}
	out += fmt.Sprintf("%s_bucket{le=\"+Inf\"} %v\n", LatencyMetricName, cumulative[len(cumulative)-1])
	out += fmt.Sprintf("%s_sum %v\n", LatencyMetricName, sum)
	out += fmt.Sprintf("%s_count %v\n", LatencyMetricName, count)
	return out
}

func TestHealthWatcherHealthyUnderThreshold(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, metricsPayload(0, 0, []float64{0, 0, 0, 0, 0}))
			return
		}
		fmt.Fprint(w, metricsPayload(100, 5, []float64{10, 100, 100, 100, 100}))
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	watcher := NewHealthWatcher([]string{addr})
	require.NoError(t, watcher.Prime(context.Background()))

	healthy, unhealthyAddr, err := watcher.CheckHealthy(context.Background())
	require.NoError(t, err)
	require.True(t, healthy)
	require.Empty(t, unhealthyAddr)
}

func TestHealthWatcherUnhealthyOverThreshold(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, metricsPayload(0, 0, []float64{0, 0, 0, 0, 0}))
			return
		}
		// Every sample lands in the (1s, 5s] bucket: the p99 estimate (about 4.96s) exceeds the threshold.
		fmt.Fprint(w, metricsPayload(100, 500, []float64{0, 0, 0, 0, 100}))
	}))
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	watcher := NewHealthWatcher([]string{addr})
	require.NoError(t, watcher.Prime(context.Background()))

	healthy, unhealthyAddr, err := watcher.CheckHealthy(context.Background())
	require.NoError(t, err)
	require.False(t, healthy)
	require.Equal(t, addr, unhealthyAddr)
}

func TestComputeQuantileLinearInterpolation(t *testing.T) {
	buckets := []bucket{
		{upperBound: 10, cumulative: 50},
		{upperBound: 20, cumulative: 100},
	}
	q, err := computeQuantile(buckets, 100, 0.75)
	require.NoError(t, err)
	require.InDelta(t, 15, q, 0.01)
}

func TestComputeQuantileNoData(t *testing.T) {
	_, err := computeQuantile(nil, 0, 0.99)
	require.ErrorIs(t, err, errNoDataYet)
}
