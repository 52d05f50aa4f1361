// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package benchmark

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// LatencyMetricName is the Prometheus histogram this package watches
// on each validator's /metrics endpoint to gate the benchmark's health.
const LatencyMetricName = "linera_proxy_request_latency"

// ProxyLatencyP99Threshold is the p99 latency, in seconds, above which
// a validator is declared unhealthy and the run is aborted (mirrors
// the original's PROXY_LATENCY_P99_THRESHOLD = 400ms exactly).
const ProxyLatencyP99Threshold = 0.4

type bucket struct {
	upperBound float64
	cumulative float64
}

type histogramSnapshot struct {
	buckets []bucket
	count   float64
	sum     float64
}

// HealthWatcher periodically scrapes a set of validator /metrics
// endpoints and reports whether their interval p99 request latency
// stays under ProxyLatencyP99Threshold, mirroring the original
// benchmark's metrics_watcher/validators_healthy health gate.
type HealthWatcher struct {
	client    *http.Client
	addresses []string
	previous  map[string]histogramSnapshot
}

// NewHealthWatcher builds a watcher over a set of bare host:port
// addresses; "/metrics" is appended to each when scraping.
func NewHealthWatcher(addresses []string) *HealthWatcher {
	return &HealthWatcher{
		client:    &http.Client{Timeout: 5 * time.Second},
		addresses: addresses,
		previous:  make(map[string]histogramSnapshot),
	}
}

// Prime takes an initial snapshot of every address so the first call
// to CheckHealthy has a baseline to diff against.
func (w *HealthWatcher) Prime(ctx context.Context) error {
	for _, addr := range w.addresses {
		snap, err := w.scrape(ctx, addr)
		if err != nil {
			return err
		}
		w.previous[addr] = snap
	}
	return nil
}

// CheckHealthy scrapes every address, diffs against the previous
// snapshot to isolate this interval's samples, and returns false (with
// the offending address) the first time an interval p99 exceeds
// ProxyLatencyP99Threshold.
func (w *HealthWatcher) CheckHealthy(ctx context.Context) (bool, string, error) {
	for _, addr := range w.addresses {
		current, err := w.scrape(ctx, addr)
		if err != nil {
			return false, "", err
		}
		prev, ok := w.previous[addr]
		if !ok {
			w.previous[addr] = current
			continue
		}
		diff, err := diffSnapshots(prev, current)
		if err != nil {
			return false, "", err
		}
		w.previous[addr] = current

		p99, err := computeQuantile(diff.buckets, diff.count, 0.99)
		if err != nil {
			if err == errNoDataYet {
				continue
			}
			return false, "", err
		}
		if p99 > ProxyLatencyP99Threshold {
			return false, addr, nil
		}
	}
	return true, "", nil
}

func (w *HealthWatcher) scrape(ctx context.Context, addr string) (histogramSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/metrics", nil)
	if err != nil {
		return histogramSnapshot{}, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return histogramSnapshot{}, fmt.Errorf("benchmark: scraping %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return histogramSnapshot{}, fmt.Errorf("benchmark: parsing metrics from %s: %w", addr, err)
	}
	family, ok := families[LatencyMetricName]
	if !ok {
		return histogramSnapshot{}, fmt.Errorf("benchmark: %s missing metric %s", addr, LatencyMetricName)
	}
	return snapshotFromFamily(family)
}

func snapshotFromFamily(family *dto.MetricFamily) (histogramSnapshot, error) {
	metrics := family.GetMetric()
	if len(metrics) == 0 {
		return histogramSnapshot{}, fmt.Errorf("benchmark: metric %s has no samples", LatencyMetricName)
	}
	h := metrics[0].GetHistogram()
	if h == nil {
		return histogramSnapshot{}, fmt.Errorf("benchmark: metric %s is not a histogram", LatencyMetricName)
	}

	buckets := make([]bucket, 0, len(h.GetBucket()))
	for _, b := range h.GetBucket() {
		buckets = append(buckets, bucket{upperBound: b.GetUpperBound(), cumulative: float64(b.GetCumulativeCount())})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].upperBound < buckets[j].upperBound })

	return histogramSnapshot{
		buckets: buckets,
		count:   float64(h.GetSampleCount()),
		sum:     h.GetSampleSum(),
	}, nil
}

var errNoDataYet = fmt.Errorf("benchmark: no data available yet to calculate p99")

func diffSnapshots(previous, current histogramSnapshot) (histogramSnapshot, error) {
	if current.count < previous.count {
		return histogramSnapshot{}, fmt.Errorf("benchmark: current histogram count is less than previous histogram count")
	}
	if len(previous.buckets) != len(current.buckets) {
		return histogramSnapshot{}, fmt.Errorf("benchmark: bucket counts do not match between snapshots")
	}
	diffBuckets := make([]bucket, len(current.buckets))
	for i := range current.buckets {
		if previous.buckets[i].upperBound != current.buckets[i].upperBound {
			return histogramSnapshot{}, fmt.Errorf("benchmark: bucket boundaries do not match: %v vs %v", previous.buckets[i].upperBound, current.buckets[i].upperBound)
		}
		d := current.buckets[i].cumulative - previous.buckets[i].cumulative
		if d < 0 {
			d = 0
		}
		diffBuckets[i] = bucket{upperBound: current.buckets[i].upperBound, cumulative: d}
	}
	return histogramSnapshot{
		buckets: diffBuckets,
		count:   current.count - previous.count,
		sum:     current.sum - previous.sum,
	}, nil
}

// computeQuantile estimates the value at quantile q by linear
// interpolation across bucket boundaries, the same technique the
// original benchmark uses over its prometheus_parse histogram buckets.
func computeQuantile(buckets []bucket, totalCount, q float64) (float64, error) {
	if totalCount == 0 {
		return 0, errNoDataYet
	}
	target := math.Ceil(q * totalCount)

	var prevCumulative, prevBound float64
	for _, b := range buckets {
		if b.cumulative >= target {
			bucketCount := b.cumulative - prevCumulative
			if bucketCount == 0 {
				return 0, fmt.Errorf("benchmark: bucket expected to contain target quantile is empty")
			}
			fraction := (target - prevCumulative) / bucketCount
			return prevBound + (b.upperBound-prevBound)*fraction, nil
		}
		prevCumulative = b.cumulative
		prevBound = b.upperBound
	}
	return 0, fmt.Errorf("benchmark: could not compute quantile, buckets do not cover total count")
}
