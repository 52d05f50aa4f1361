// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package committee

import (
	"context"
	"fmt"
	"sync"
)

// Source resolves the committee active for a given epoch (spec §4.2
// epoch rotation: certificates name the epoch they were produced
// under, and verification always uses that epoch's committee, not the
// current one).
type Source interface {
	ForEpoch(ctx context.Context, epoch uint64) (*Committee, error)
	Current(ctx context.Context) (*Committee, error)
}

// Static is a Source backed by a fixed, in-process epoch table. It is
// the implementation used by the test harness and by single-shard
// deployments that rotate committees out of band.
type Static struct {
	mu      sync.RWMutex
	epochs  map[uint64]*Committee
	current uint64
}

// NewStatic returns a Source seeded with genesis as the committee for
// its own epoch, which becomes the current epoch.
func NewStatic(genesis *Committee) *Static {
	return &Static{
		epochs:  map[uint64]*Committee{genesis.Epoch: genesis},
		current: genesis.Epoch,
	}
}

// Advance installs a new committee and makes it the current epoch. The
// prior epoch's committee remains resolvable by ForEpoch so in-flight
// certificates from the old epoch still verify.
func (s *Static) Advance(c *Committee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[c.Epoch] = c
	if c.Epoch > s.current {
		s.current = c.Epoch
	}
}

func (s *Static) ForEpoch(_ context.Context, epoch uint64) (*Committee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.epochs[epoch]
	if !ok {
		return nil, fmt.Errorf("committee: no committee recorded for epoch %d", epoch)
	}
	return c, nil
}

func (s *Static) Current(ctx context.Context) (*Committee, error) {
	s.mu.RLock()
	epoch := s.current
	s.mu.RUnlock()
	return s.ForEpoch(ctx, epoch)
}
