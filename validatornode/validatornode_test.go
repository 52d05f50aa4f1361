package validatornode_test

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
	"github.com/luxfi/sidechain/log"
	"github.com/luxfi/sidechain/storage"
	"github.com/luxfi/sidechain/validatornode"
	"github.com/luxfi/sidechain/worker"
)

func TestLocalNodeVersionAndNetworkDescription(t *testing.T) {
	ctx := context.Background()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	nodeID := ids.GenerateTestNodeID()
	comm, err := committee.New(0, []committee.Member{{NodeID: nodeID, PublicKey: kp.Public, Weight: 1}})
	require.NoError(t, err)
	src := committee.NewStatic(comm)
	store := storage.NewMemory()

	w := worker.New(store, src, nodeID, kp, time.Minute, time.Minute, log.NewNoOpLogger())
	node := validatornode.NewLocal(w, "0.1.0", validatornode.NetworkDescription{Epoch: 0, Members: []ids.NodeID{nodeID}})

	v, err := node.GetVersionInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, "0.1.0", v.Version)

	nd, err := node.GetNetworkDescription(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nd.Epoch)
}

func TestLocalNodeDownloadCertificateAfterConfirm(t *testing.T) {
	ctx := context.Background()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	nodeID := ids.GenerateTestNodeID()
	comm, err := committee.New(0, []committee.Member{{NodeID: nodeID, PublicKey: kp.Public, Weight: 1}})
	require.NoError(t, err)
	src := committee.NewStatic(comm)
	store := storage.NewMemory()
	chainID := ids.GenerateTestID()

	w := worker.New(store, src, nodeID, kp, time.Minute, time.Minute, log.NewNoOpLogger())
	node := validatornode.NewLocal(w, "0.1.0", validatornode.NetworkDescription{})

	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now()}
	validated := chain.NewCertificate(chain.KindValidated, block, 0, 0)
	preimage := validated.VotePreimage()
	validated.AddSignature(chain.Signature{Validator: nodeID, PublicKey: kp.Public, Sig: kp.Sign(preimage[:])})
	require.NoError(t, node.HandleValidatedCertificate(ctx, validated))

	confirmed := chain.NewCertificate(chain.KindConfirmed, block, 0, 0)
	cpreimage := confirmed.VotePreimage()
	confirmed.AddSignature(chain.Signature{Validator: nodeID, PublicKey: kp.Public, Sig: kp.Sign(cpreimage[:])})
	require.NoError(t, node.HandleConfirmedCertificate(ctx, confirmed))

	got, err := node.DownloadCertificate(ctx, confirmed.Hash())
	require.NoError(t, err)
	require.Equal(t, chain.KindConfirmed, got.Kind)
}
