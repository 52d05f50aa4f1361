package storage_test

import (
	"context"
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/sidechain/storage"
)

func TestMemoryWriteBlobIdempotent(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	id := ids.GenerateTestID()

	require.NoError(t, m.WriteBlob(ctx, id, []byte("first")))
	require.NoError(t, m.WriteBlob(ctx, id, []byte("second")))

	got, err := m.ReadBlob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)
}

func TestMemoryMissingBlobs(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	have := ids.GenerateTestID()
	missing := ids.GenerateTestID()

	require.NoError(t, m.WriteBlob(ctx, have, []byte("x")))

	got, err := m.MissingBlobs(ctx, []ids.ID{have, missing})
	require.NoError(t, err)
	require.Equal(t, []ids.ID{missing}, got)
}

func TestMemoryBatchAtomicCommit(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	chainID := ids.GenerateTestID()
	certHash := ids.GenerateTestID()

	batch := m.NewBatch()
	batch.WriteChainState(storage.ChainView{ChainID: chainID, NextBlockHeight: 1})
	batch.WriteCertificate(certHash, []byte("cert-bytes"))
	require.NoError(t, batch.Commit(ctx))

	view, err := m.ReadChainState(ctx, chainID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), view.NextBlockHeight)

	cert, err := m.ReadCertificate(ctx, certHash)
	require.NoError(t, err)
	require.Equal(t, []byte("cert-bytes"), cert)
}

func TestMemoryReadMissingChainState(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	_, err := m.ReadChainState(ctx, ids.GenerateTestID())
	require.ErrorIs(t, err, storage.ErrNotFound)
}
