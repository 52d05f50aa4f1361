// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import "fmt"

// Builder provides a fluent interface for constructing a
// ValidatorOptions, accumulating the first error encountered and
// surfacing it from Build (spec §6, teacher's config.Builder idiom).
type Builder struct {
	opts *ValidatorOptions
	err  error
}

// NewBuilder starts a Builder with sensible defaults: the simple/tcp
// protocol on both faces and no shards or proxies yet.
func NewBuilder(serverConfigPath, host string, port int) *Builder {
	return &Builder{
		opts: &ValidatorOptions{
			ServerConfigPath: serverConfigPath,
			Host:             host,
			Port:             port,
			ExternalProtocol: Protocol{Kind: "simple", Mode: "tcp"},
			InternalProtocol: Protocol{Kind: "simple", Mode: "tcp"},
		},
	}
}

// WithExternalProtocol sets the public-facing wire protocol.
func (b *Builder) WithExternalProtocol(kind, mode string) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.ExternalProtocol = Protocol{Kind: kind, Mode: mode}
	return b
}

// WithInternalProtocol sets the shard-mesh wire protocol.
func (b *Builder) WithInternalProtocol(kind, mode string) *Builder {
	if b.err != nil {
		return b
	}
	b.opts.InternalProtocol = Protocol{Kind: kind, Mode: mode}
	return b
}

// AddShard appends one shard's network face.
func (b *Builder) AddShard(host string, port, metricsPort int) *Builder {
	if b.err != nil {
		return b
	}
	if host == "" || port <= 0 {
		b.err = fmt.Errorf("config: shard host/port invalid")
		return b
	}
	b.opts.Shards = append(b.opts.Shards, ShardConfig{Host: host, Port: port, MetricsPort: metricsPort})
	return b
}

// WithUniformShards generates n shards whose host/port/metrics-port
// are produced by the given templating function, mirroring the CLI's
// edit-shards digit-run templating (spec §6).
func (b *Builder) WithUniformShards(n int, shard func(index int) ShardConfig) *Builder {
	if b.err != nil {
		return b
	}
	if n <= 0 {
		b.err = fmt.Errorf("config: shard count must be positive, got %d", n)
		return b
	}
	for i := 0; i < n; i++ {
		b.opts.Shards = append(b.opts.Shards, shard(i))
	}
	return b
}

// AddProxy appends one proxy's network face.
func (b *Builder) AddProxy(host string, publicPort, privatePort int, metricsHost string, metricsPort int) *Builder {
	if b.err != nil {
		return b
	}
	if host == "" || publicPort <= 0 || privatePort <= 0 {
		b.err = fmt.Errorf("config: proxy host/port invalid")
		return b
	}
	b.opts.Proxies = append(b.opts.Proxies, ProxyConfig{
		Host:        host,
		PublicPort:  publicPort,
		PrivatePort: privatePort,
		MetricsHost: metricsHost,
		MetricsPort: metricsPort,
	})
	return b
}

// AddBlockExporter appends one block exporter's network face.
func (b *Builder) AddBlockExporter(host string, port int) *Builder {
	if b.err != nil {
		return b
	}
	if host == "" || port <= 0 {
		b.err = fmt.Errorf("config: block exporter host/port invalid")
		return b
	}
	b.opts.BlockExporters = append(b.opts.BlockExporters, BlockExporterConfig{Host: host, Port: port})
	return b
}

// Build validates the accumulated options and returns them, or the
// first error encountered during construction or validation.
func (b *Builder) Build() (*ValidatorOptions, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.opts.Valid(); err != nil {
		return nil, err
	}
	return b.opts, nil
}
