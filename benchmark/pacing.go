// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package benchmark

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	luxlog "github.com/luxfi/log"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/client"
	sidelog "github.com/luxfi/sidechain/log"
	"github.com/luxfi/sidechain/metrics"
)

// Workload is the proposal streams of ChainCount chains: BlockAt
// produces the block to submit for the chain at chainIndex, where n
// counts the blocks the producer task owning that chain has submitted
// so far across all of its chains (the caller is responsible for
// advancing height/previous-hash/operations between calls).
type Workload interface {
	ChainCount() int
	BlockAt(chainIndex int, n uint64) chain.Block
}

// Config governs a benchmark run (spec §4.5: BPS pacing via atomic
// counters + barrier + notifier, runtime bound, group stagger).
type Config struct {
	BlocksPerSecond int

	// NumChainGroups is the number of producer tasks sharing
	// BlocksPerSecond (bps_share = floor(bps / NumChainGroups), the
	// remainder distributed one per group). Zero means one group per
	// chain in the workload.
	NumChainGroups int

	Duration     time.Duration
	GroupStagger time.Duration
	RPCTimeout   time.Duration

	// Health, if set, gates the run on validator p99 latency: the run
	// cancels as soon as CheckHealthy reports an unhealthy address
	// (spec §1 item 4, §4.5).
	Health *HealthWatcher

	// Metrics, if set, receives live submitted/confirmed/failed
	// counters alongside the atomic counts returned in Result.
	Metrics metrics.Registry

	// Logger receives the pacing task's per-second achieved-vs-target
	// line and health-gate cancellation notice. Defaults to a no-op.
	Logger luxlog.Logger
}

// Result summarizes a completed run.
type Result struct {
	Submitted int64
	Confirmed int64
	Failed    int64
	Latency   []Quantile

	// UnhealthyAddr is set when the run was cancelled early by the
	// health gate rather than running to completion.
	UnhealthyAddr string
}

// Runner drives a paced load test against a Driver, grounded in the
// original's producer task / pacing task / latency collector task
// split (spec §4.5).
type Runner struct {
	driver   *client.Driver
	workload Workload
	cfg      Config
	latency  *LatencyCollector
	log      luxlog.Logger

	submittedCounter metrics.Counter
	confirmedCounter metrics.Counter
	failedCounter    metrics.Counter
}

// NewRunner builds a Runner over an already-constructed client.Driver.
// If cfg.Metrics is set, it registers submitted/confirmed/failed
// counters on it that track the Result counts live.
func NewRunner(driver *client.Driver, workload Workload, cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = sidelog.NewNoOpLogger()
	}
	r := &Runner{driver: driver, workload: workload, cfg: cfg, latency: NewLatencyCollector(), log: logger}
	if cfg.Metrics != nil {
		r.submittedCounter = cfg.Metrics.NewCounter("benchmark_submitted")
		r.confirmedCounter = cfg.Metrics.NewCounter("benchmark_confirmed")
		r.failedCounter = cfg.Metrics.NewCounter("benchmark_failed")
	}
	return r
}

// notifier is a broadcast wakeup built on the close-and-replace channel
// idiom: waiters receive the current generation's channel and block on
// it; broadcast closes that channel (waking everyone blocked on it) and
// installs a fresh one for the next window.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// chainGroups partitions chainCount chain indices round-robin across
// groups producer tasks, so a group with multiple chains cycles through
// all of them (spec §4.5: "each owns a round-robin cursor over ...
// triples").
func chainGroups(chainCount, groups int) [][]int {
	out := make([][]int, groups)
	for i := 0; i < chainCount; i++ {
		g := i % groups
		out[g] = append(out[g], i)
	}
	return out
}

// bpsShares splits bps into groups shares of floor(bps/groups), with
// the remainder distributed one per group (spec §4.5).
func bpsShares(bps, groups int) []int {
	base, remainder := bps/groups, bps%groups
	shares := make([]int, groups)
	for g := range shares {
		shares[g] = base
		if g < remainder {
			shares[g]++
		}
	}
	return shares
}

// Run paces submissions at cfg.BlocksPerSecond, split across
// cfg.NumChainGroups producer tasks each bounded by its own bps_share,
// for cfg.Duration. Producers rendezvous on a startup barrier, then a
// pacing task swaps each group's per-second counter to zero every wall
// clock second, sums them for the achieved-BPS log line, and wakes any
// producer that hit its share via a broadcast notifier (spec §4.5).
// The run also cancels early if cfg.Health reports a validator exceeds
// the latency threshold.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.cfg.BlocksPerSecond <= 0 {
		return Result{}, fmt.Errorf("benchmark: blocks per second must be positive")
	}
	chainCount := r.workload.ChainCount()
	if chainCount == 0 {
		return Result{}, fmt.Errorf("benchmark: workload has no chains")
	}

	groups := r.cfg.NumChainGroups
	if groups <= 0 {
		groups = chainCount
	}
	if groups > chainCount {
		groups = chainCount
	}
	groupChains := chainGroups(chainCount, groups)
	shares := bpsShares(r.cfg.BlocksPerSecond, groups)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Duration)
	defer cancel()

	var (
		submitted, confirmed, failed int64
		wg                           sync.WaitGroup
		barrier                      sync.WaitGroup
		note                         = newNotifier()
		unhealthyAddr                string
		unhealthyMu                  sync.Mutex
	)
	groupCounters := make([]int64, groups)

	// Startup barrier of size groups+1 (spec §4.5): every producer and
	// the pacing task below rendezvous before any load begins.
	barrier.Add(groups + 1)
	startCh := make(chan struct{})

	for g := 0; g < groups; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			barrier.Done()
			<-startCh
			if r.cfg.GroupStagger > 0 {
				select {
				case <-time.After(time.Duration(g) * r.cfg.GroupStagger):
				case <-runCtx.Done():
					return
				}
			}
			r.driveGroup(runCtx, groupChains[g], shares[g], &groupCounters[g], note, &submitted, &confirmed, &failed)
		}()
	}

	barrier.Done()
	barrier.Wait()
	close(startCh)

	var paceWG sync.WaitGroup
	paceWG.Add(1)
	go func() {
		defer paceWG.Done()
		r.pace(runCtx, groupCounters, note)
	}()

	if r.cfg.Health != nil {
		paceWG.Add(1)
		go func() {
			defer paceWG.Done()
			if addr := r.watchHealth(runCtx, cancel); addr != "" {
				unhealthyMu.Lock()
				unhealthyAddr = addr
				unhealthyMu.Unlock()
			}
		}()
	}

	wg.Wait()
	paceWG.Wait()

	unhealthyMu.Lock()
	defer unhealthyMu.Unlock()
	return Result{
		Submitted:     atomic.LoadInt64(&submitted),
		Confirmed:     atomic.LoadInt64(&confirmed),
		Failed:        atomic.LoadInt64(&failed),
		Latency:       r.latency.Snapshot(),
		UnhealthyAddr: unhealthyAddr,
	}, nil
}

// pace implements the §4.5 pacing task: every 1s wall clock, swap each
// group's counter to zero, sum for the achieved-BPS log line, and wake
// every producer waiting on its bps_share.
func (r *Runner) pace(ctx context.Context, groupCounters []int64, note *notifier) {
	target := r.cfg.BlocksPerSecond
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var achieved int64
			for i := range groupCounters {
				achieved += atomic.SwapInt64(&groupCounters[i], 0)
			}
			r.log.Info("benchmark pacing window", "achieved_bps", achieved, "target_bps", target)
			note.broadcast()
		}
	}
}

// watchHealth polls cfg.Health once per second and cancels the run the
// first time a validator is reported unhealthy, returning its address.
func (r *Runner) watchHealth(ctx context.Context, cancel context.CancelFunc) string {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ""
		case <-ticker.C:
			healthy, addr, err := r.cfg.Health.CheckHealthy(ctx)
			if err != nil {
				continue
			}
			if !healthy {
				r.log.Error("benchmark run cancelled: validator unhealthy", "address", addr)
				cancel()
				return addr
			}
		}
	}
}

// driveGroup runs one producer task (spec §4.5): in a tight loop it
// submits a block from its round-robin chain cursor, then bumps its
// per-second counter. When that counter reaches bpsShare it awaits the
// pacing task's notifier before submitting the next block.
func (r *Runner) driveGroup(ctx context.Context, chains []int, bpsShare int, counter *int64, note *notifier, submitted, confirmed, failed *int64) {
	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
	}()

	cursor := 0
	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if atomic.LoadInt64(counter) >= int64(bpsShare) {
			waitCh := note.wait()
			select {
			case <-waitCh:
				continue
			case <-ctx.Done():
				return
			}
		}
		atomic.AddInt64(counter, 1)

		chainIndex := chains[cursor]
		cursor = (cursor + 1) % len(chains)

		block := r.workload.BlockAt(chainIndex, n)
		n++
		atomic.AddInt64(submitted, 1)
		if r.submittedCounter != nil {
			r.submittedCounter.Inc()
		}
		inflight.Add(1)
		go func(block chain.Block, round uint64) {
			defer inflight.Done()
			callCtx, cancel := context.WithTimeout(ctx, r.cfg.RPCTimeout)
			defer cancel()
			_, ts, err := r.driver.ExecuteOperation(callCtx, block, round)
			if err != nil {
				atomic.AddInt64(failed, 1)
				if r.failedCounter != nil {
					r.failedCounter.Inc()
				}
				return
			}
			atomic.AddInt64(confirmed, 1)
			if r.confirmedCounter != nil {
				r.confirmedCounter.Inc()
			}
			_ = r.latency.RecordTimestamps(ts)
		}(block, n)
	}
}
