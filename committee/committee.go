// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package committee models the validator committee that backs chain
// certificates (spec §3 Committee, §4.2 quorum rules), generalized from
// the teacher's validators.Manager/Set shape. Unlike the teacher's
// subnet staking model this package has no BLS aggregation and no
// subnet scoping: a committee is a flat, epoch-scoped weighted set of
// ed25519 validator keys shared by every chain.
package committee

import (
	"crypto/ed25519"
	"fmt"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/sidechain/utils/math"
)

// Member is one validator's committee entry.
type Member struct {
	NodeID    ids.NodeID
	PublicKey ed25519.PublicKey
	Weight    uint64
}

// Committee is the immutable weighted validator set active for one
// epoch (spec §3). A new epoch produces a new Committee; members never
// mutate weight in place.
type Committee struct {
	Epoch      uint64
	members    map[ids.NodeID]Member
	totalWeight uint64
}

// New builds a Committee from its member list. Duplicate node IDs are
// rejected since each validator must appear with exactly one weight.
func New(epoch uint64, members []Member) (*Committee, error) {
	c := &Committee{
		Epoch:   epoch,
		members: make(map[ids.NodeID]Member, len(members)),
	}
	for _, m := range members {
		if _, ok := c.members[m.NodeID]; ok {
			return nil, fmt.Errorf("committee: duplicate validator %s", m.NodeID)
		}
		if m.Weight == 0 {
			return nil, fmt.Errorf("committee: validator %s has zero weight", m.NodeID)
		}
		total, err := safemath.Add64(c.totalWeight, m.Weight)
		if err != nil {
			return nil, fmt.Errorf("committee: total weight overflow adding %s: %w", m.NodeID, err)
		}
		c.members[m.NodeID] = m
		c.totalWeight = total
	}
	if len(c.members) == 0 {
		return nil, fmt.Errorf("committee: empty committee")
	}
	return c, nil
}

// Member looks up a validator's committee entry.
func (c *Committee) Member(nodeID ids.NodeID) (Member, bool) {
	m, ok := c.members[nodeID]
	return m, ok
}

// Members returns every committee entry in unspecified order.
func (c *Committee) Members() []Member {
	out := make([]Member, 0, len(c.members))
	for _, m := range c.members {
		out = append(out, m)
	}
	return out
}

// Len returns the number of committee members.
func (c *Committee) Len() int { return len(c.members) }

// TotalWeight returns the sum of every member's weight.
func (c *Committee) TotalWeight() uint64 { return c.totalWeight }

// QuorumThreshold is the minimum weight ( > 2/3 of total ) a
// certificate's signature set must reach to be valid (spec §3, §4.2).
func (c *Committee) QuorumThreshold() uint64 {
	return 2*c.totalWeight/3 + 1
}

// ValidityThreshold is the minimum weight ( > 1/3 of total ) that is
// enough to prove at least one honest validator participated, used to
// accept a single validator's claim as worth investigating (spec §3).
func (c *Committee) ValidityThreshold() uint64 {
	return c.totalWeight/3 + 1
}

// WeightOf sums the weight of the given node IDs, ignoring any that
// are not committee members; a node ID listed more than once is
// counted once.
func (c *Committee) WeightOf(nodeIDs []ids.NodeID) uint64 {
	var total uint64
	seen := make(map[ids.NodeID]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if m, ok := c.members[id]; ok {
			if sum, err := safemath.Add64(total, m.Weight); err == nil {
				total = sum
			} else {
				total = ^uint64(0)
			}
		}
	}
	return total
}

// HasQuorum reports whether the given distinct signer set meets the
// quorum threshold.
func (c *Committee) HasQuorum(nodeIDs []ids.NodeID) bool {
	return c.WeightOf(nodeIDs) >= c.QuorumThreshold()
}
