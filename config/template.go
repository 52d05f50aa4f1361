// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"regexp"
	"strconv"
)

// digitRun matches a run of '%' characters, the edit-shards templating
// marker: a run of length k is replaced by the shard index, zero
// padded to k digits (spec §6 edit-shards).
var digitRun = regexp.MustCompile(`%+`)

// TemplateShardString replaces every run of '%' in s with index,
// zero-padded to the run's length.
func TemplateShardString(s string, index int) string {
	return digitRun.ReplaceAllStringFunc(s, func(run string) string {
		width := len(run)
		return fmt.Sprintf("%0*d", width, index)
	})
}

// EditShards rewrites opts to have numShards shards, each produced by
// templating host/port/metricsPort against its index (spec §6
// edit-shards --num-shards DD --host H --port P [--metrics-port MP]).
// host and the port strings may contain a %...% digit run.
func EditShards(opts *ValidatorOptions, numShards int, hostTemplate, portTemplate, metricsPortTemplate string) error {
	if numShards <= 0 {
		return fmt.Errorf("config: num-shards must be positive, got %d", numShards)
	}
	shards := make([]ShardConfig, numShards)
	for i := 0; i < numShards; i++ {
		port, err := strconv.Atoi(TemplateShardString(portTemplate, i))
		if err != nil {
			return fmt.Errorf("config: templated port %q is not an integer: %w", portTemplate, err)
		}
		shard := ShardConfig{
			Host: TemplateShardString(hostTemplate, i),
			Port: port,
		}
		if metricsPortTemplate != "" {
			mp, err := strconv.Atoi(TemplateShardString(metricsPortTemplate, i))
			if err != nil {
				return fmt.Errorf("config: templated metrics port %q is not an integer: %w", metricsPortTemplate, err)
			}
			shard.MetricsPort = mp
		}
		shards[i] = shard
	}
	opts.Shards = shards
	return nil
}
