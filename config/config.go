// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the validator options schema (spec §6) and a
// fluent Builder for constructing it, grounded in the teacher's
// config.Builder idiom (accumulate-error-then-validate-on-Build).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Protocol selects a wire transport for a network face (spec §6).
type Protocol struct {
	Kind string `yaml:"kind"`           // "simple" or "grpc"
	Mode string `yaml:"mode,omitempty"` // simple: "tcp"|"udp"; grpc: "cleartext"|"tls"
}

func (p Protocol) Valid() error {
	switch p.Kind {
	case "simple":
		if p.Mode != "tcp" && p.Mode != "udp" {
			return fmt.Errorf("config: simple protocol mode must be tcp or udp, got %q", p.Mode)
		}
	case "grpc":
		if p.Mode != "cleartext" && p.Mode != "tls" {
			return fmt.Errorf("config: grpc protocol mode must be cleartext or tls, got %q", p.Mode)
		}
	default:
		return fmt.Errorf("config: unknown protocol kind %q", p.Kind)
	}
	return nil
}

// ShardConfig is one shard's network face (spec §6 shards[]).
type ShardConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port,omitempty"`
}

// ProxyConfig is one proxy front-end's network face (spec §6 proxies[]).
type ProxyConfig struct {
	Host        string `yaml:"host"`
	PublicPort  int    `yaml:"public_port"`
	PrivatePort int    `yaml:"private_port"`
	MetricsHost string `yaml:"metrics_host"`
	MetricsPort int    `yaml:"metrics_port"`
}

// BlockExporterConfig is one block exporter's network face (spec §6
// block_exporters[]).
type BlockExporterConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ValidatorOptions is the full validator options file schema (spec §6).
type ValidatorOptions struct {
	ServerConfigPath string `yaml:"server_config_path"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`

	ExternalProtocol Protocol `yaml:"external_protocol"`
	InternalProtocol Protocol `yaml:"internal_protocol"`

	Shards          []ShardConfig         `yaml:"shards"`
	Proxies         []ProxyConfig         `yaml:"proxies"`
	BlockExporters  []BlockExporterConfig `yaml:"block_exporters,omitempty"`
}

// Valid reports whether o is a well-formed, internally consistent
// configuration (spec §7: config parse/validation failures are a
// non-zero exit kind).
func (o *ValidatorOptions) Valid() error {
	if o.ServerConfigPath == "" {
		return fmt.Errorf("config: server_config_path is required")
	}
	if o.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	if o.Port <= 0 {
		return fmt.Errorf("config: port must be positive, got %d", o.Port)
	}
	if err := o.ExternalProtocol.Valid(); err != nil {
		return fmt.Errorf("config: external_protocol: %w", err)
	}
	if err := o.InternalProtocol.Valid(); err != nil {
		return fmt.Errorf("config: internal_protocol: %w", err)
	}
	if len(o.Shards) == 0 {
		return fmt.Errorf("config: at least one shard is required")
	}
	for i, s := range o.Shards {
		if s.Host == "" || s.Port <= 0 {
			return fmt.Errorf("config: shard %d has an invalid host/port", i)
		}
	}
	for i, p := range o.Proxies {
		if p.Host == "" || p.PublicPort <= 0 || p.PrivatePort <= 0 {
			return fmt.Errorf("config: proxy %d has an invalid host/port", i)
		}
	}
	for i, e := range o.BlockExporters {
		if e.Host == "" || e.Port <= 0 {
			return fmt.Errorf("config: block exporter %d has an invalid host/port", i)
		}
	}
	return nil
}

// ShardIndex returns the position of a shard in o.Shards matching
// host/port, or -1 if absent.
func (o *ValidatorOptions) ShardIndex(host string, port int) int {
	for i, s := range o.Shards {
		if s.Host == host && s.Port == port {
			return i
		}
	}
	return -1
}

// Load reads and parses a YAML validator options file, returning an
// error on either a malformed document or a failed Valid check.
func Load(path string) (*ValidatorOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var o ValidatorOptions
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := o.Valid(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Save writes o as YAML to path.
func Save(path string, o *ValidatorOptions) error {
	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("config: marshaling options: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
