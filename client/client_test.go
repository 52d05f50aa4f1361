package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/client"
	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
	"github.com/luxfi/sidechain/log"
	"github.com/luxfi/sidechain/storage"
	"github.com/luxfi/sidechain/validatornode"
	"github.com/luxfi/sidechain/worker"
)

type node struct {
	nodeID ids.NodeID
	keys   crypto.KeyPair
}

func buildNodes(t *testing.T, n int) ([]node, *committee.Committee) {
	t.Helper()
	nodes := make([]node, n)
	members := make([]committee.Member, n)
	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		id := ids.GenerateTestNodeID()
		nodes[i] = node{nodeID: id, keys: kp}
		members[i] = committee.Member{NodeID: id, PublicKey: kp.Public, Weight: 1}
	}
	comm, err := committee.New(0, members)
	require.NoError(t, err)
	return nodes, comm
}

func buildPeers(nodes []node, comm *committee.Committee, faults map[int]client.FaultMode) []client.Peer {
	src := committee.NewStatic(comm)
	peers := make([]client.Peer, len(nodes))
	for i, n := range nodes {
		store := storage.NewMemory()
		w := worker.New(store, src, n.nodeID, n.keys, time.Minute, time.Minute, log.NewNoOpLogger())
		vn := validatornode.NewLocal(w, "test", validatornode.NetworkDescription{})
		fault := client.FaultHonest
		if f, ok := faults[i]; ok {
			fault = f
		}
		peers[i] = client.Peer{NodeID: n.nodeID, Node: vn, Fault: fault}
	}
	return peers
}

func TestExecuteOperationHonestQuorum(t *testing.T) {
	nodes, comm := buildNodes(t, 4)
	src := committee.NewStatic(comm)
	peers := buildPeers(nodes, comm, nil)
	d := client.New(peers, src, 2*time.Second)

	chainID := ids.GenerateTestID()
	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now()}

	cert, _, err := d.ExecuteOperation(context.Background(), block, 0)
	require.NoError(t, err)
	require.Equal(t, chain.KindConfirmed, cert.Kind)
}

func TestExecuteOperationTolerableOfflineMinority(t *testing.T) {
	nodes, comm := buildNodes(t, 4)
	src := committee.NewStatic(comm)
	peers := buildPeers(nodes, comm, map[int]client.FaultMode{0: client.FaultOffline})
	d := client.New(peers, src, 200*time.Millisecond)

	chainID := ids.GenerateTestID()
	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now()}

	cert, _, err := d.ExecuteOperation(context.Background(), block, 0)
	require.NoError(t, err)
	require.Equal(t, chain.KindConfirmed, cert.Kind)
}

func TestExecuteOperationFailsBelowQuorumWhenTooManyOffline(t *testing.T) {
	nodes, comm := buildNodes(t, 4)
	src := committee.NewStatic(comm)
	peers := buildPeers(nodes, comm, map[int]client.FaultMode{0: client.FaultOffline, 1: client.FaultOffline})
	d := client.New(peers, src, 100*time.Millisecond)

	chainID := ids.GenerateTestID()
	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now()}

	_, _, err := d.ExecuteOperation(context.Background(), block, 0)
	require.Error(t, err)
}

func TestExecuteOperationMaliciousVoteDoesNotPoisonCertificate(t *testing.T) {
	nodes, comm := buildNodes(t, 4)
	src := committee.NewStatic(comm)
	peers := buildPeers(nodes, comm, map[int]client.FaultMode{0: client.FaultMalicious})
	d := client.New(peers, src, time.Second)

	chainID := ids.GenerateTestID()
	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now()}

	cert, _, err := d.ExecuteOperation(context.Background(), block, 0)
	require.NoError(t, err)
	require.Equal(t, chain.KindConfirmed, cert.Kind)
}
