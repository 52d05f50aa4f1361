// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package server bootstraps one validator shard process (spec §6):
// given parsed validator options and an opened storage contract, it
// wires a worker.Worker and validatornode.Local over it, registers the
// Prometheus metrics endpoint, and runs until SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/ids"
	luxlog "github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/config"
	"github.com/luxfi/sidechain/crypto"
	sidelog "github.com/luxfi/sidechain/log"
	"github.com/luxfi/sidechain/storage"
	"github.com/luxfi/sidechain/validatornode"
	"github.com/luxfi/sidechain/worker"
)

// Version is stamped into the binary at build time.
var Version = "dev"

// Options gathers what Run needs beyond the parsed validator options
// file: which shard this process is, and the already-opened storage
// contract it serves.
type Options struct {
	ValidatorOptions *config.ValidatorOptions
	ShardIndex       int
	Store            storage.Contract
	Committees       committee.Source
	SelfNodeID       ids.NodeID
	Keys             crypto.KeyPair
	GracePeriod      time.Duration
	ClockDrift       time.Duration
	Log              luxlog.Logger
}

// Shard owns one running validator shard: its Worker, its
// ValidatorNode surface, and the HTTP listener exposing /metrics.
type Shard struct {
	Node     *validatornode.Local
	Worker   *worker.Worker
	registry *prometheus.Registry
	metrics  *http.Server
}

// New wires a shard's Worker and ValidatorNode over an already-opened
// storage contract, and registers its Prometheus handler (not yet
// serving; call Serve or Run to bind and listen).
func New(opts Options) (*Shard, error) {
	if opts.ValidatorOptions == nil {
		return nil, fmt.Errorf("server: validator options are required")
	}
	if opts.ShardIndex < 0 || opts.ShardIndex >= len(opts.ValidatorOptions.Shards) {
		return nil, fmt.Errorf("server: shard index %d out of range (%d shards configured)", opts.ShardIndex, len(opts.ValidatorOptions.Shards))
	}
	log := opts.Log
	if log == nil {
		log = sidelog.NewNoOpLogger()
	}

	w := worker.New(opts.Store, opts.Committees, opts.SelfNodeID, opts.Keys, opts.GracePeriod, opts.ClockDrift, log)
	node := validatornode.NewLocal(w, Version, validatornode.NetworkDescription{})

	registry := prometheus.NewRegistry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	shardCfg := opts.ValidatorOptions.Shards[opts.ShardIndex]
	metricsPort := shardCfg.MetricsPort
	if metricsPort == 0 {
		metricsPort = shardCfg.Port + 1
	}

	return &Shard{
		Node:     node,
		Worker:   w,
		registry: registry,
		metrics: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", shardCfg.Host, metricsPort),
			Handler: mux,
		},
	}, nil
}

// Registry exposes the shard's Prometheus registerer, for metrics
// collectors constructed elsewhere (e.g. the metrics package).
func (s *Shard) Registry() *prometheus.Registry {
	return s.registry
}

// Run serves the metrics endpoint and blocks until ctx is canceled,
// then shuts the HTTP server down gracefully (spec §6: graceful
// shutdown on SIGINT/SIGTERM).
func (s *Shard) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: metrics listener failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.metrics.Shutdown(shutdownCtx)
}

// RunUntilSignal runs the shard until SIGINT/SIGTERM is received,
// mirroring the CLI's `run` subcommand entry point (spec §6).
func RunUntilSignal(s *Shard) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}
