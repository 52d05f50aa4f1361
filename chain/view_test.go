package chain_test

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/codec"
	"github.com/luxfi/sidechain/storage"
)

func TestApplyBlockRejectsWrongHeight(t *testing.T) {
	view := storage.ChainView{NextBlockHeight: 5}
	block := chain.Block{Height: 1}
	_, _, err := chain.ApplyBlock(view, block)
	require.ErrorIs(t, err, chain.ErrWrongHeight)
}

func TestApplyBlockRejectsWrongPreviousHash(t *testing.T) {
	view := storage.ChainView{NextBlockHeight: 0, TipHash: ids.GenerateTestID()}
	block := chain.Block{Height: 0}
	_, _, err := chain.ApplyBlock(view, block)
	require.ErrorIs(t, err, chain.ErrWrongPreviousHash)
}

func TestApplyBlockCrossChainTransferRoundTrip(t *testing.T) {
	chainA := ids.GenerateTestID()
	chainB := ids.GenerateTestID()

	viewA := storage.ChainView{ChainID: chainA, Balance: 100}
	outPayload, err := codec.CBOR.Marshal(codec.CurrentVersion, chain.TransferPayload{Target: chainB, Amount: 40})
	require.NoError(t, err)

	blockA := chain.Block{
		ChainID:   chainA,
		Height:    0,
		Timestamp: time.Unix(0, 0),
		Operations: []chain.Operation{
			{Kind: chain.OpTransfer, Data: outPayload},
		},
	}

	newViewA, produced, err := chain.ApplyBlock(viewA, blockA)
	require.NoError(t, err)
	require.Equal(t, uint64(60), newViewA.Balance)
	require.Len(t, produced, 1)
	require.Equal(t, chainB, produced[0].TargetChain)

	// Deliver the produced outbox entry into chain B's inbox and confirm.
	viewB := storage.ChainView{
		ChainID: chainB,
		Balance: 0,
		Inbox: map[ids.ID][]storage.InboxEntry{
			chainA: {{SourceChain: chainA, Height: 0, Payload: produced[0].Payload}},
		},
	}
	blockB := chain.Block{
		ChainID:   chainB,
		Height:    0,
		Timestamp: time.Unix(0, 0),
		IncomingBundles: []chain.IncomingBundle{
			{SourceChain: chainA, Height: 0},
		},
	}

	newViewB, _, err := chain.ApplyBlock(viewB, blockB)
	require.NoError(t, err)
	require.Equal(t, uint64(40), newViewB.Balance)
	require.Empty(t, newViewB.Inbox[chainA])
}

func TestApplyBlockRejectsOverdraft(t *testing.T) {
	chainA := ids.GenerateTestID()
	view := storage.ChainView{ChainID: chainA, Balance: 10}
	payload, err := codec.CBOR.Marshal(codec.CurrentVersion, chain.TransferPayload{Target: ids.GenerateTestID(), Amount: 50})
	require.NoError(t, err)

	block := chain.Block{ChainID: chainA, Height: 0, Operations: []chain.Operation{{Kind: chain.OpTransfer, Data: payload}}}
	_, _, err = chain.ApplyBlock(view, block)
	require.Error(t, err)
}
