// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package benchmark implements the BPS-paced load driver and latency
// collector (spec §4.5), grounded in the original Rust benchmark's use
// of hdrhistogram for per-stage latency and prometheus_parse for p99
// health gating, adapted to github.com/HdrHistogram/hdrhistogram-go
// and github.com/prometheus/common/expfmt.
package benchmark

import (
	"fmt"
	"sync"
	"time"

	hdr "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/luxfi/sidechain/client"
)

// Stage names one of the fast block proposal round-trip's latency
// segments, mirroring the original benchmark's
// BlockTimeTimingsHistograms / SubmitFastBlockProposalTimingsHistograms
// field names.
type Stage string

const (
	StagePendingBundles             Stage = "pending_bundles"
	StageProposalConstruction       Stage = "proposal_construction"
	StageProposalSubmission         Stage = "proposal_submission"
	StageStagingExecution           Stage = "staging_execution"
	StageConfirmedBlockConstruction Stage = "confirmed_block_construction"
	StageCrossChainUpdates          Stage = "cross_chain_updates"
	// StageBlockTime is the overall round trip, Submitted to
	// CrossChainUpdatesAt, not one of the six per-step stages.
	StageBlockTime Stage = "block_time"
)

var stages = []Stage{
	StagePendingBundles,
	StageProposalConstruction,
	StageProposalSubmission,
	StageStagingExecution,
	StageConfirmedBlockConstruction,
	StageCrossChainUpdates,
	StageBlockTime,
}

// histogramSigFigs matches the original's hdrhistogram::Histogram::<u64>::new(2).
const histogramSigFigs = 2

// minRecordableNanos/maxRecordableNanos bound the histogram's tracked
// range: 1 microsecond to 5 minutes, wide enough for both a healthy
// shard and a badly degraded one without losing precision.
const (
	minRecordableNanos = int64(time.Microsecond)
	maxRecordableNanos = int64(5 * time.Minute)
)

// LatencyCollector accumulates per-stage round-trip latencies across a
// benchmark run (spec §4.5).
type LatencyCollector struct {
	mu         sync.Mutex
	histograms map[Stage]*hdr.Histogram
}

// NewLatencyCollector returns an empty collector.
func NewLatencyCollector() *LatencyCollector {
	c := &LatencyCollector{histograms: make(map[Stage]*hdr.Histogram, len(stages))}
	for _, s := range stages {
		c.histograms[s] = hdr.New(minRecordableNanos, maxRecordableNanos, histogramSigFigs)
	}
	return c
}

// RecordTimestamps derives each of the six named stages' latency from
// the elapsed time since the previous checkpoint, plus the overall
// block_time from Submitted to CrossChainUpdatesAt, and records them.
func (c *LatencyCollector) RecordTimestamps(ts client.Timestamps) error {
	steps := []struct {
		stage Stage
		d     time.Duration
	}{
		{StagePendingBundles, ts.PendingBundlesAt.Sub(ts.Submitted)},
		{StageProposalConstruction, ts.ProposalConstructionAt.Sub(ts.PendingBundlesAt)},
		{StageProposalSubmission, ts.ProposalSubmissionAt.Sub(ts.ProposalConstructionAt)},
		{StageStagingExecution, ts.StagingExecutionAt.Sub(ts.ProposalSubmissionAt)},
		{StageConfirmedBlockConstruction, ts.ConfirmedBlockConstructionAt.Sub(ts.StagingExecutionAt)},
		{StageCrossChainUpdates, ts.CrossChainUpdatesAt.Sub(ts.ConfirmedBlockConstructionAt)},
		{StageBlockTime, ts.CrossChainUpdatesAt.Sub(ts.Submitted)},
	}
	for _, s := range steps {
		if err := c.record(s.stage, s.d); err != nil {
			return err
		}
	}
	return nil
}

func (c *LatencyCollector) record(stage Stage, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("benchmark: negative latency recorded for stage %s", stage)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.histograms[stage].RecordValue(d.Nanoseconds())
}

// Quantile is a point-in-time snapshot of one stage's distribution.
type Quantile struct {
	Stage   Stage
	Count   int64
	P50     time.Duration
	P99     time.Duration
	Max     time.Duration
}

// Snapshot returns each stage's current quantiles.
func (c *LatencyCollector) Snapshot() []Quantile {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Quantile, 0, len(stages))
	for _, s := range stages {
		h := c.histograms[s]
		out = append(out, Quantile{
			Stage: s,
			Count: h.TotalCount(),
			P50:   time.Duration(h.ValueAtQuantile(50)),
			P99:   time.Duration(h.ValueAtQuantile(99)),
			Max:   time.Duration(h.Max()),
		})
	}
	return out
}
