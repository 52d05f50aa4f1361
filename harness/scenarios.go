// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/codec"
	"github.com/luxfi/sidechain/worker"
)

// RunSequentialBlocks submits n fast-path blocks back to back on one
// chain and returns the confirmed certificates, failing fast on the
// first error (spec §8 scenario 1: N validators, M malicious, submit
// 10 blocks on one chain, expect all confirmed).
func RunSequentialBlocks(ctx context.Context, c *Cluster, chainID ids.ID, n int) ([]*chain.Certificate, error) {
	certs := make([]*chain.Certificate, 0, n)
	prevHash := ids.ID{}
	for height := uint64(0); height < uint64(n); height++ {
		block := chain.Block{
			ChainID:      chainID,
			Height:       height,
			PreviousHash: prevHash,
			Timestamp:    time.Now(),
		}
		cert, _, err := c.Driver.ExecuteOperation(ctx, block, 0)
		if err != nil {
			return certs, fmt.Errorf("harness: block %d: %w", height, err)
		}
		certs = append(certs, cert)
		prevHash = block.Hash()
	}
	return certs, nil
}

// BlobRefOperation builds an operation that references a blob the
// proposer believes the committee already holds (spec §4.3
// referenced_blobs / §8 scenario 2 blob repair).
func BlobRefOperation(blobID ids.ID) (chain.Operation, error) {
	data, err := codec.CBOR.Marshal(codec.CurrentVersion, blobID)
	if err != nil {
		return chain.Operation{}, err
	}
	return chain.Operation{Kind: worker.OpBlobRef, Data: data}, nil
}

// RunBlobRepair submits a proposal referencing blobID, which no
// validator holds yet: the client's driver must discover the
// BlobsNotFound response, upload the content from its own BlobSource
// to each validator that needs it, and confirm on retry (spec §8
// scenario 2; requires the cluster to have been built with
// Config.Blobs set).
func RunBlobRepair(ctx context.Context, c *Cluster, chainID ids.ID, blobID, blobData []byte) (*chain.Certificate, error) {
	id := ids.ID{}
	copy(id[:], blobID)

	op, err := BlobRefOperation(id)
	if err != nil {
		return nil, err
	}
	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now(), Operations: []chain.Operation{op}}

	cert, _, err := c.Driver.ExecuteOperation(ctx, block, 0)
	if err != nil {
		return nil, fmt.Errorf("harness: proposal did not repair and confirm: %w", err)
	}
	return cert, nil
}

// RunLockRespected submits block B in round 0 through the driver's
// normal two-round quorum path and returns its confirmed certificate.
// It proposes no conflicting block and carries no certificate forward,
// so neither the rejection of a re-proposal nor the carry-forward
// acceptance (spec §8 scenario 3, spec §4.2 edge policy 2) is driven
// here. The strict-lock rejection of a conflicting proposal in the
// locked round is exercised by chain.Manager's unit tests
// (TestManagerRejectsConflictingProposalWhenLocked).
func RunLockRespected(ctx context.Context, c *Cluster, chainID ids.ID) (*chain.Certificate, error) {
	block := chain.Block{ChainID: chainID, Height: 0, Timestamp: time.Now()}
	cert, _, err := c.Driver.ExecuteOperation(ctx, block, 0)
	return cert, err
}
