package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
)

type fixture struct {
	comm     *committee.Committee
	src      *committee.Static
	keys     map[ids.NodeID]crypto.KeyPair
	chainID  ids.ID
	proposer ids.NodeID
}

func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	members := make([]committee.Member, n)
	keys := make(map[ids.NodeID]crypto.KeyPair, n)
	for i := 0; i < n; i++ {
		kp, err := crypto.GenerateKeyPair()
		require.NoError(t, err)
		nodeID := ids.GenerateTestNodeID()
		members[i] = committee.Member{NodeID: nodeID, PublicKey: kp.Public, Weight: 1}
		keys[nodeID] = kp
	}
	comm, err := committee.New(0, members)
	require.NoError(t, err)
	return fixture{
		comm:     comm,
		src:      committee.NewStatic(comm),
		keys:     keys,
		chainID:  ids.GenerateTestID(),
		proposer: members[0].NodeID,
	}
}

func (f fixture) nodeIDs() []ids.NodeID {
	out := make([]ids.NodeID, 0, len(f.keys))
	for id := range f.keys {
		out = append(out, id)
	}
	return out
}

func buildCertificate(t *testing.T, f fixture, kind chain.CertificateKind, block chain.Block, round uint64, signerCount int) *chain.Certificate {
	t.Helper()
	cert := chain.NewCertificate(kind, block, round, 0)
	count := 0
	for nodeID, kp := range f.keys {
		if count >= signerCount {
			break
		}
		voteCert := chain.NewCertificate(kind, block, round, 0)
		preimage := voteCert.VotePreimage()
		sig := kp.Sign(preimage[:])
		cert.AddSignature(chain.Signature{Validator: nodeID, PublicKey: kp.Public, Sig: sig})
		count++
	}
	return cert
}

func TestManagerProposalProducesVote(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Second)
	now := time.Now()
	m.ActivateForRound(0, now)

	block := chain.Block{ChainID: f.chainID, Height: 0, Owner: f.proposer, Timestamp: now}
	proposal := chain.BlockProposal{Block: block, Round: 0}

	vote, err := m.ProcessProposal(context.Background(), proposal, now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, f.proposer, vote.Validator)
}

func TestManagerRejectsFutureTimestamp(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Second)
	now := time.Now()
	m.ActivateForRound(0, now)

	block := chain.Block{ChainID: f.chainID, Height: 0, Timestamp: now.Add(time.Hour)}
	proposal := chain.BlockProposal{Block: block, Round: 0}

	_, err := m.ProcessProposal(context.Background(), proposal, now, time.Minute)
	require.ErrorIs(t, err, chain.ErrFutureTimestamp)
}

func TestManagerLocksOnValidatedCertificate(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Second)
	now := time.Now()
	m.ActivateForRound(0, now)

	block := chain.Block{ChainID: f.chainID, Height: 0, Timestamp: now}
	cert := buildCertificate(t, f, chain.KindValidated, block, 0, 3)

	require.NoError(t, m.ProcessValidatedCertificate(context.Background(), cert))
	require.Equal(t, chain.StateLocked, m.Snapshot().State)
}

func TestManagerRejectsConflictingProposalWhenLocked(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Second)
	now := time.Now()
	m.ActivateForRound(0, now)

	lockedBlock := chain.Block{ChainID: f.chainID, Height: 0, Timestamp: now}
	cert := buildCertificate(t, f, chain.KindValidated, lockedBlock, 0, 3)
	require.NoError(t, m.ProcessValidatedCertificate(context.Background(), cert))

	otherBlock := chain.Block{ChainID: f.chainID, Height: 0, Timestamp: now, Owner: f.proposer}
	_, err := m.ProcessProposal(context.Background(), chain.BlockProposal{Block: otherBlock, Round: 0}, now, time.Minute)
	require.ErrorIs(t, err, chain.ErrChainLocked)
}

func TestManagerConfirmsOnConfirmedCertificate(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Second)
	now := time.Now()
	m.ActivateForRound(0, now)

	block := chain.Block{ChainID: f.chainID, Height: 0, Timestamp: now}
	validated := buildCertificate(t, f, chain.KindValidated, block, 0, 3)
	require.NoError(t, m.ProcessValidatedCertificate(context.Background(), validated))

	confirmed := buildCertificate(t, f, chain.KindConfirmed, block, 0, 3)
	require.NoError(t, m.ProcessConfirmedCertificate(context.Background(), confirmed))
	require.Equal(t, chain.StateConfirmed, m.Snapshot().State)
}

func TestManagerRejectsCertificateBelowQuorum(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Second)
	now := time.Now()
	m.ActivateForRound(0, now)

	block := chain.Block{ChainID: f.chainID, Height: 0, Timestamp: now}
	cert := buildCertificate(t, f, chain.KindValidated, block, 0, 2) // below 3-of-4 quorum

	err := m.ProcessValidatedCertificate(context.Background(), cert)
	require.ErrorIs(t, err, chain.ErrQuorumNotMet)
}

func TestManagerTimeoutBeforeDeadline(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Minute)
	now := time.Now()
	m.ActivateForRound(0, now)

	_, err := m.ProcessTimeout(now)
	require.ErrorIs(t, err, chain.ErrTimeoutNotElapsed)
}

func TestManagerTimeoutCertificateAdvancesRound(t *testing.T) {
	f := newFixture(t, 4)
	m := chain.NewManager(f.chainID, f.src, f.proposer, f.keys[f.proposer], time.Millisecond)
	now := time.Now()
	m.ActivateForRound(0, now)
	time.Sleep(2 * time.Millisecond)

	vote, err := m.ProcessTimeout(time.Now())
	require.NoError(t, err)
	require.Equal(t, f.proposer, vote.Validator)

	cert := buildCertificate(t, f, chain.KindTimeout, chain.Block{}, 0, 3)
	require.NoError(t, m.ProcessTimeoutCertificate(context.Background(), cert))
	require.Equal(t, uint64(1), m.Snapshot().Round)
}
