// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package harness builds an in-process multi-validator cluster for
// exercising the spec's testable properties (spec §8): sequential
// blocks under per-validator fault modes, blob repair, and a single
// confirmed block, grounded in the teacher's validatorstest/state.go
// in-memory test fixture idiom. Lock preservation under re-proposal
// and graceful shutdown are not exercised here.
package harness

import (
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/client"
	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
	"github.com/luxfi/sidechain/log"
	"github.com/luxfi/sidechain/storage"
	"github.com/luxfi/sidechain/validatornode"
	"github.com/luxfi/sidechain/worker"
)

// ValidatorNode is one cluster member's identity, keys, storage, and
// in-process RPC surface.
type ValidatorNode struct {
	NodeID ids.NodeID
	Keys   crypto.KeyPair
	Store  storage.Contract
	Worker *worker.Worker
	Handle validatornode.ValidatorNode
}

// Cluster is a fixed-size committee of in-process validators plus a
// client.Driver configured to reach them, with per-node fault
// injection (spec §8 concrete scenarios).
type Cluster struct {
	Nodes     []ValidatorNode
	Committee *committee.Committee
	Source    committee.Source
	Driver    *client.Driver
}

// Config governs how a Cluster is built.
type Config struct {
	Size        int
	GracePeriod time.Duration
	ClockDrift  time.Duration
	RPCTimeout  time.Duration
	Faults      map[int]client.FaultMode
	Blobs       client.BlobSource
}

// New constructs a Cluster of cfg.Size honest-by-default validators,
// applying cfg.Faults by node index.
func New(cfg Config) (*Cluster, error) {
	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = time.Second
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Minute
	}
	if cfg.ClockDrift == 0 {
		cfg.ClockDrift = time.Minute
	}

	nodes := make([]ValidatorNode, cfg.Size)
	members := make([]committee.Member, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		nodeID := ids.GenerateTestNodeID()
		members[i] = committee.Member{NodeID: nodeID, PublicKey: kp.Public, Weight: 1}
		nodes[i] = ValidatorNode{NodeID: nodeID, Keys: kp, Store: storage.NewMemory()}
	}

	comm, err := committee.New(0, members)
	if err != nil {
		return nil, err
	}
	src := committee.NewStatic(comm)

	peers := make([]client.Peer, cfg.Size)
	for i := range nodes {
		w := worker.New(nodes[i].Store, src, nodes[i].NodeID, nodes[i].Keys, cfg.GracePeriod, cfg.ClockDrift, log.NewNoOpLogger())
		vn := validatornode.NewLocal(w, "harness", validatornode.NetworkDescription{Epoch: 0, Members: memberIDs(members)})
		nodes[i].Worker = w
		nodes[i].Handle = vn

		fault := client.FaultHonest
		if f, ok := cfg.Faults[i]; ok {
			fault = f
		}
		peers[i] = client.Peer{NodeID: nodes[i].NodeID, Node: vn, Fault: fault}
	}

	var driver *client.Driver
	if cfg.Blobs != nil {
		driver = client.NewWithBlobs(peers, src, cfg.RPCTimeout, cfg.Blobs)
	} else {
		driver = client.New(peers, src, cfg.RPCTimeout)
	}

	return &Cluster{
		Nodes:     nodes,
		Committee: comm,
		Source:    src,
		Driver:    driver,
	}, nil
}

func memberIDs(members []committee.Member) []ids.NodeID {
	out := make([]ids.NodeID, len(members))
	for i, m := range members {
		out[i] = m.NodeID
	}
	return out
}
