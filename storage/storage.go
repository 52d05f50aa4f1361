// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage defines the abstract key/value, blob and certificate
// storage contract that every other core component is built against
// (spec §4.1, §6 persistent state layout). Concrete backends implement
// Contract; Memory is the only one in this module, and the core never
// imports a specific backend.
package storage

import (
	"context"
	"errors"

	"github.com/luxfi/ids"
)

// ErrNotFound is returned by any read operation that misses.
var ErrNotFound = errors.New("storage: not found")

// ChainView is the persisted projection of a single chain's state
// (spec §3 Chain). It is the unit written atomically alongside the
// certificate that produced it.
type ChainView struct {
	ChainID         ids.ID
	Epoch           uint64
	NextBlockHeight uint64
	TipHash         ids.ID // zero value means no confirmed block yet
	Balance         uint64
	Inbox           map[ids.ID][]InboxEntry  // keyed by source chain
	Outboxes        map[ids.ID][]OutboxEntry // keyed by target chain
	ManagerState    []byte                   // opaque-encoded chain.ManagerState snapshot

	// DeliveredCertificates records every confirmed-block certificate
	// hash whose outbox entries have already been appended to this
	// chain's inbox (spec §4.3 cross-chain delivery dedup). It persists
	// past the point an entry is drained from Inbox, so a re-delivered
	// outbox (e.g. after a broadcast retry) cannot double-credit a
	// transfer that was already applied.
	DeliveredCertificates map[ids.ID]bool
}

// InboxEntry is a received, not-yet-applied cross-chain message bundle.
type InboxEntry struct {
	SourceChain     ids.ID
	CertificateHash ids.ID
	Height          uint64
	Payload         []byte
}

// OutboxEntry is a pending outgoing cross-chain message awaiting drain
// to its target chain's owning shard.
type OutboxEntry struct {
	TargetChain     ids.ID
	CertificateHash ids.ID
	Height          uint64
	Payload         []byte
}

// BlobState tracks the last block that referenced a blob, so storage
// can answer blob_last_used_by (spec §4.3).
type BlobState struct {
	LastUsedBy ids.ID // zero value means unreferenced
}

// Batch accumulates a set of writes that must become visible atomically.
// A certificate and the chain-state mutation it produced are always
// written through the same Batch (spec §4.1 guarantee).
type Batch interface {
	WriteChainState(view ChainView)
	WriteCertificate(hash ids.ID, cert []byte)
	WriteBlob(id ids.ID, data []byte)
	WriteBlobState(id ids.ID, state BlobState)
	// Commit makes every accumulated write visible atomically.
	Commit(ctx context.Context) error
}

// Contract is the abstract storage interface the core consumes (spec
// §4.1). Implementations must guarantee read-your-writes within a
// shard and idempotent WriteBlob.
type Contract interface {
	ReadChainState(ctx context.Context, chainID ids.ID) (ChainView, error)
	WriteChainState(ctx context.Context, view ChainView) error

	ReadCertificate(ctx context.Context, hash ids.ID) ([]byte, error)
	ReadCertificates(ctx context.Context, hashes []ids.ID) ([][]byte, error)
	WriteCertificate(ctx context.Context, hash ids.ID, cert []byte) error

	ReadBlob(ctx context.Context, id ids.ID) ([]byte, error)
	WriteBlob(ctx context.Context, id ids.ID, data []byte) error
	MissingBlobs(ctx context.Context, ids_ []ids.ID) ([]ids.ID, error)
	ReadBlobState(ctx context.Context, id ids.ID) (BlobState, error)

	ReadNetworkDescription(ctx context.Context) ([]byte, error)
	WriteNetworkDescription(ctx context.Context, desc []byte) error

	// NewBatch starts an atomic write batch (spec §4.1 atomic
	// certificate+chain-state commit guarantee).
	NewBatch() Batch
}
