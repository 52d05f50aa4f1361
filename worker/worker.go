// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package worker implements the validator's per-chain request
// handler: block proposals, certificates, chain info queries, blob
// storage and the chain-update notification stream (spec §4.3),
// generalized from the teacher's engine handler dispatch shape onto
// one chain.Manager per chain rather than one Engine per subnet.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"
	luxlog "github.com/luxfi/log"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/codec"
	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
	"github.com/luxfi/sidechain/storage"
)

// Notification is pushed to subscribers whenever a chain's tip
// advances (spec §4.3 subscribe).
type Notification struct {
	ChainID ids.ID
	Height  uint64
	Hash    ids.ID
}

// ChainInfo answers a chain info query (spec §4.2/§4.4).
type ChainInfo struct {
	ChainID         ids.ID
	Epoch           uint64
	NextBlockHeight uint64
	TipHash         ids.ID
	State           chain.State
	Round           uint64
}

const notificationBuffer = 16

// Worker owns every chain hosted on one shard: its storage contract,
// one chain.Manager per chain, and the subscription fan-out for tip
// updates.
type Worker struct {
	store       storage.Contract
	committees  committee.Source
	self        ids.NodeID
	keys        crypto.KeyPair
	gracePeriod time.Duration
	clockDrift  time.Duration
	log         luxlog.Logger

	mu        sync.Mutex
	managers  map[ids.ID]*chain.Manager
	listeners map[ids.ID][]chan Notification
}

// New builds a Worker over a storage contract and committee source.
func New(store storage.Contract, committees committee.Source, self ids.NodeID, keys crypto.KeyPair, gracePeriod, clockDrift time.Duration, log luxlog.Logger) *Worker {
	return &Worker{
		store:       store,
		committees:  committees,
		self:        self,
		keys:        keys,
		gracePeriod: gracePeriod,
		clockDrift:  clockDrift,
		log:         log,
		managers:    make(map[ids.ID]*chain.Manager),
		listeners:   make(map[ids.ID][]chan Notification),
	}
}

// managerFor returns the manager for chainID, creating and restoring
// it from its persisted ChainView.ManagerState on first access.
func (w *Worker) managerFor(ctx context.Context, chainID ids.ID) (*chain.Manager, error) {
	w.mu.Lock()
	m, ok := w.managers[chainID]
	w.mu.Unlock()
	if ok {
		return m, nil
	}

	m = chain.NewManager(chainID, w.committees, w.self, w.keys, w.gracePeriod)
	view, err := w.store.ReadChainState(ctx, chainID)
	if err == nil && len(view.ManagerState) > 0 {
		snap, derr := chain.DecodeManagerState(view.ManagerState)
		if derr != nil {
			return nil, fmt.Errorf("worker: decode manager state: %w", derr)
		}
		m.Restore(snap)
	} else {
		m.ActivateForRound(0, time.Now())
	}

	w.mu.Lock()
	w.managers[chainID] = m
	w.mu.Unlock()
	return m, nil
}

// HandleBlockProposal validates a proposal against the chain's voting
// state machine and returns this validator's vote signature (spec
// §4.3 handle_block_proposal).
func (w *Worker) HandleBlockProposal(ctx context.Context, p chain.BlockProposal) (chain.Signature, error) {
	m, err := w.managerFor(ctx, p.Block.ChainID)
	if err != nil {
		return chain.Signature{}, err
	}
	blobIDs := referencedBlobs(p.Block)
	if len(blobIDs) > 0 {
		missing, err := w.store.MissingBlobs(ctx, blobIDs)
		if err != nil {
			return chain.Signature{}, err
		}
		if len(missing) > 0 {
			return chain.Signature{}, chain.ErrBlobsNotFound
		}
	}
	return m.ProcessProposal(ctx, p, time.Now(), w.clockDrift)
}

// NetworkActions is the cross-chain delivery envelope produced by
// confirming a block that populated one or more outboxes (spec §4.3:
// "the worker hands these to a cross-chain subsystem"). The caller is
// responsible for routing each Delivery to the Worker hosting
// TargetChain — which may be this same Worker (a shard that happens to
// host both chains) or a different shard's Worker reached over its own
// transport.
type NetworkActions struct {
	Deliveries []Delivery
}

// Delivery is one confirmed block's outbox entries bound for a single
// target chain.
type Delivery struct {
	TargetChain ids.ID
	Entries     []storage.InboxEntry
}

// HandleCertificate dispatches a certificate by kind (spec §9 Design
// Note: one capability set per tagged kind, not one handler type per
// kind). Confirmed certificates additionally apply the block to the
// chain's persisted view, writing the new view and the certificate in
// a single atomic storage batch (spec §4.1), then notify subscribers
// and return any produced cross-chain deliveries. The manager's state
// is written afterwards, in a separate write.
func (w *Worker) HandleCertificate(ctx context.Context, cert *chain.Certificate) (NetworkActions, error) {
	chainID := cert.Block.ChainID
	m, err := w.managerFor(ctx, chainID)
	if err != nil {
		return NetworkActions{}, err
	}

	var actions NetworkActions
	switch cert.Kind {
	case chain.KindValidated:
		if err := m.ProcessValidatedCertificate(ctx, cert); err != nil {
			return NetworkActions{}, err
		}
	case chain.KindConfirmed:
		if err := m.ProcessConfirmedCertificate(ctx, cert); err != nil {
			return NetworkActions{}, err
		}
		actions, err = w.commitConfirmedBlock(ctx, cert)
		if err != nil {
			return NetworkActions{}, err
		}
	case chain.KindTimeout:
		if err := m.ProcessTimeoutCertificate(ctx, cert); err != nil {
			return NetworkActions{}, err
		}
	default:
		return NetworkActions{}, fmt.Errorf("worker: unknown certificate kind %d", cert.Kind)
	}

	if err := w.persistManager(ctx, chainID, m); err != nil {
		return NetworkActions{}, err
	}
	return actions, nil
}

func (w *Worker) commitConfirmedBlock(ctx context.Context, cert *chain.Certificate) (NetworkActions, error) {
	chainID := cert.Block.ChainID
	view, err := w.store.ReadChainState(ctx, chainID)
	if err != nil {
		view = storage.ChainView{ChainID: chainID}
	}
	newView, produced, err := chain.ApplyBlock(view, cert.Block)
	if err != nil {
		return NetworkActions{}, err
	}

	encodedCert, err := chain.EncodeCertificate(cert)
	if err != nil {
		return NetworkActions{}, fmt.Errorf("worker: encode confirmed certificate: %w", err)
	}

	batch := w.store.NewBatch()
	batch.WriteChainState(newView)
	batch.WriteCertificate(cert.Hash(), encodedCert)
	if err := batch.Commit(ctx); err != nil {
		return NetworkActions{}, err
	}

	w.notify(Notification{ChainID: chainID, Height: newView.NextBlockHeight - 1, Hash: newView.TipHash})
	return outboxToNetworkActions(chainID, cert.Hash(), produced), nil
}

// outboxToNetworkActions groups a confirmed block's produced outbox
// entries by target chain and tags each with the source chain and
// certificate hash the receiving chain's inbox dedups on (SPEC_FULL
// §4.3 inbox dedup supplement).
func outboxToNetworkActions(sourceChain, certHash ids.ID, produced []storage.OutboxEntry) NetworkActions {
	if len(produced) == 0 {
		return NetworkActions{}
	}
	order := make([]ids.ID, 0, len(produced))
	byTarget := make(map[ids.ID][]storage.InboxEntry, len(produced))
	for _, e := range produced {
		if _, ok := byTarget[e.TargetChain]; !ok {
			order = append(order, e.TargetChain)
		}
		byTarget[e.TargetChain] = append(byTarget[e.TargetChain], storage.InboxEntry{
			SourceChain:     sourceChain,
			CertificateHash: certHash,
			Height:          e.Height,
			Payload:         e.Payload,
		})
	}
	actions := NetworkActions{Deliveries: make([]Delivery, 0, len(order))}
	for _, target := range order {
		actions.Deliveries = append(actions.Deliveries, Delivery{TargetChain: target, Entries: byTarget[target]})
	}
	return actions
}

// DeliverInbox appends another chain's confirmed-block outbox entries
// into targetChain's inbox (spec §4.3: "the receiving worker appends
// them to the inbox of the target chain"). A certificate hash already
// recorded in DeliveredCertificates is skipped even if its inbox entry
// has since been drained by a confirmed block, so re-delivering after a
// broadcast retry can never double-credit a transfer (SPEC_FULL §4.3
// inbox dedup supplement).
func (w *Worker) DeliverInbox(ctx context.Context, targetChain ids.ID, entries []storage.InboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	view, err := w.store.ReadChainState(ctx, targetChain)
	if err != nil {
		view = storage.ChainView{ChainID: targetChain}
	}
	if view.Inbox == nil {
		view.Inbox = make(map[ids.ID][]storage.InboxEntry, len(entries))
	}
	if view.DeliveredCertificates == nil {
		view.DeliveredCertificates = make(map[ids.ID]bool, len(entries))
	}
	for _, e := range entries {
		if view.DeliveredCertificates[e.CertificateHash] {
			continue
		}
		view.Inbox[e.SourceChain] = append(view.Inbox[e.SourceChain], e)
		view.DeliveredCertificates[e.CertificateHash] = true
	}
	return w.store.WriteChainState(ctx, view)
}

func (w *Worker) persistManager(ctx context.Context, chainID ids.ID, m *chain.Manager) error {
	snap := m.Snapshot()
	encoded, err := chain.EncodeManagerState(snap)
	if err != nil {
		return fmt.Errorf("worker: encode manager state: %w", err)
	}
	view, err := w.store.ReadChainState(ctx, chainID)
	if err != nil {
		view = storage.ChainView{ChainID: chainID}
	}
	view.ManagerState = encoded
	return w.store.WriteChainState(ctx, view)
}

// ChainInfo answers a chain info query (spec §4.4 read path).
func (w *Worker) ChainInfo(ctx context.Context, chainID ids.ID) (ChainInfo, error) {
	m, err := w.managerFor(ctx, chainID)
	if err != nil {
		return ChainInfo{}, err
	}
	view, err := w.store.ReadChainState(ctx, chainID)
	if err != nil && err != storage.ErrNotFound {
		return ChainInfo{}, err
	}
	snap := m.Snapshot()
	return ChainInfo{
		ChainID:         chainID,
		Epoch:           view.Epoch,
		NextBlockHeight: view.NextBlockHeight,
		TipHash:         view.TipHash,
		State:           snap.State,
		Round:           snap.Round,
	}, nil
}

// VoteConfirm produces this validator's confirm vote for the chain's
// currently locked block (spec §4.4 quorum assembly second round).
func (w *Worker) VoteConfirm(ctx context.Context, chainID ids.ID) (chain.Signature, error) {
	m, err := w.managerFor(ctx, chainID)
	if err != nil {
		return chain.Signature{}, err
	}
	return m.VoteConfirm()
}

// Certificate retrieves and decodes a previously confirmed certificate
// by hash (spec §4.4 download_certificate, read_confirmed_blocks_downward).
func (w *Worker) Certificate(ctx context.Context, hash ids.ID) (*chain.Certificate, error) {
	raw, err := w.store.ReadCertificate(ctx, hash)
	if err != nil {
		return nil, err
	}
	return chain.DecodeCertificate(raw)
}

// UploadBlob stores a content-addressed blob (idempotent, spec §4.1).
func (w *Worker) UploadBlob(ctx context.Context, id ids.ID, data []byte) error {
	return w.store.WriteBlob(ctx, id, data)
}

// DownloadBlob returns a blob previously uploaded or referenced by a
// confirmed block.
func (w *Worker) DownloadBlob(ctx context.Context, id ids.ID) ([]byte, error) {
	return w.store.ReadBlob(ctx, id)
}

// MissingBlobIDs reports which of the given blob IDs this shard does
// not yet hold (spec §4.3/§4.4 blob repair loop).
func (w *Worker) MissingBlobIDs(ctx context.Context, want []ids.ID) ([]ids.ID, error) {
	return w.store.MissingBlobs(ctx, want)
}

// BlobLastUsedBy reports the last block that referenced a blob.
func (w *Worker) BlobLastUsedBy(ctx context.Context, id ids.ID) (ids.ID, error) {
	state, err := w.store.ReadBlobState(ctx, id)
	if err != nil {
		return ids.ID{}, err
	}
	return state.LastUsedBy, nil
}

// Subscribe registers a channel that receives a Notification every
// time chainID's tip advances. The returned function unsubscribes.
func (w *Worker) Subscribe(chainID ids.ID) (<-chan Notification, func()) {
	ch := make(chan Notification, notificationBuffer)
	w.mu.Lock()
	w.listeners[chainID] = append(w.listeners[chainID], ch)
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		subs := w.listeners[chainID]
		for i, c := range subs {
			if c == ch {
				w.listeners[chainID] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

func (w *Worker) notify(n Notification) {
	w.mu.Lock()
	subs := append([]chan Notification(nil), w.listeners[n.ChainID]...)
	w.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
			// A slow subscriber misses a notification rather than
			// blocking the shard's single write path (spec §5: no
			// suspension point while holding chain state).
		}
	}
}

const OpBlobRef = "blob_ref"

func referencedBlobs(b chain.Block) []ids.ID {
	var out []ids.ID
	for _, op := range b.Operations {
		if op.Kind != OpBlobRef {
			continue
		}
		var id ids.ID
		if _, err := codec.CBOR.Unmarshal(op.Data, &id); err == nil {
			out = append(out, id)
		}
	}
	return out
}
