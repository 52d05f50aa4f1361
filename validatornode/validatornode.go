// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validatornode defines the capability set a validator
// exposes to chain clients (spec §6): proposal submission, certificate
// handlers, info queries, subscription, and blob transfer. The
// in-process implementation here backs the test harness; a real
// deployment exposes the same interface over gRPC/HTTP.
package validatornode

import (
	"context"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/storage"
	"github.com/luxfi/sidechain/worker"
)

// NetworkDescription is the static descriptor clients fetch once to
// learn the committee/epoch layout (spec §6 get_network_description).
type NetworkDescription struct {
	Epoch   uint64
	Members []ids.NodeID
}

// VersionInfo answers get_version_info (spec §6).
type VersionInfo struct {
	Version string
}

// ValidatorNode is the full RPC surface a validator shard exposes.
type ValidatorNode interface {
	HandleBlockProposal(ctx context.Context, p chain.BlockProposal) (chain.Signature, error)
	VoteConfirm(ctx context.Context, chainID ids.ID) (chain.Signature, error)
	HandleLiteCertificate(ctx context.Context, hash ids.ID, kind chain.CertificateKind) error
	HandleValidatedCertificate(ctx context.Context, cert *chain.Certificate) error
	HandleConfirmedCertificate(ctx context.Context, cert *chain.Certificate) error
	HandleTimeoutCertificate(ctx context.Context, cert *chain.Certificate) error

	ChainInfoQuery(ctx context.Context, chainID ids.ID) (worker.ChainInfo, error)
	Subscribe(chainID ids.ID) (<-chan worker.Notification, func())

	// DeliverInbox routes another shard's confirmed-block outbox
	// entries into targetChain's inbox (spec §4.3 cross-chain
	// subsystem). Local handles this itself for chains it already
	// hosts; a remote shard calls it explicitly when it doesn't.
	DeliverInbox(ctx context.Context, targetChain ids.ID, entries []storage.InboxEntry) error

	UploadBlob(ctx context.Context, id ids.ID, data []byte) error
	DownloadBlob(ctx context.Context, id ids.ID) ([]byte, error)
	PendingBlob(ctx context.Context, id ids.ID) (bool, error)
	MissingBlobIDs(ctx context.Context, want []ids.ID) ([]ids.ID, error)
	BlobLastUsedBy(ctx context.Context, id ids.ID) (ids.ID, error)

	DownloadCertificate(ctx context.Context, hash ids.ID) (*chain.Certificate, error)
	GetVersionInfo(ctx context.Context) (VersionInfo, error)
	GetNetworkDescription(ctx context.Context) (NetworkDescription, error)
}

// Local wraps a single shard's Worker with the ValidatorNode surface.
// Lite certificates (a hash plus a claimed kind, used when the caller
// already holds the full certificate body locally) are accepted only
// when this node can recover the full body from its own certificate
// log; otherwise the caller must resubmit the full certificate.
type Local struct {
	w       *worker.Worker
	version string
	network NetworkDescription
}

// NewLocal builds a ValidatorNode over an already-constructed Worker.
func NewLocal(w *worker.Worker, version string, network NetworkDescription) *Local {
	return &Local{w: w, version: version, network: network}
}

func (l *Local) HandleBlockProposal(ctx context.Context, p chain.BlockProposal) (chain.Signature, error) {
	return l.w.HandleBlockProposal(ctx, p)
}

func (l *Local) VoteConfirm(ctx context.Context, chainID ids.ID) (chain.Signature, error) {
	return l.w.VoteConfirm(ctx, chainID)
}

func (l *Local) HandleLiteCertificate(ctx context.Context, hash ids.ID, kind chain.CertificateKind) error {
	cert, err := l.DownloadCertificate(ctx, hash)
	if err != nil {
		return fmt.Errorf("validatornode: lite certificate %s not found locally: %w", hash, err)
	}
	if cert.Kind != kind {
		return fmt.Errorf("validatornode: lite certificate %s kind mismatch", hash)
	}
	return l.deliverLocally(ctx, cert)
}

func (l *Local) HandleValidatedCertificate(ctx context.Context, cert *chain.Certificate) error {
	return l.deliverLocally(ctx, cert)
}

// HandleConfirmedCertificate applies a confirmed block and, since this
// node's Worker serves the same flat committee for every chain (spec
// §3), routes any produced cross-chain deliveries straight back into
// its own store rather than requiring a separate network hop (spec
// §4.3 cross-chain subsystem).
func (l *Local) HandleConfirmedCertificate(ctx context.Context, cert *chain.Certificate) error {
	return l.deliverLocally(ctx, cert)
}

func (l *Local) HandleTimeoutCertificate(ctx context.Context, cert *chain.Certificate) error {
	return l.deliverLocally(ctx, cert)
}

func (l *Local) deliverLocally(ctx context.Context, cert *chain.Certificate) error {
	actions, err := l.w.HandleCertificate(ctx, cert)
	if err != nil {
		return err
	}
	for _, d := range actions.Deliveries {
		if err := l.w.DeliverInbox(ctx, d.TargetChain, d.Entries); err != nil {
			return fmt.Errorf("validatornode: deliver inbox for chain %s: %w", d.TargetChain, err)
		}
	}
	return nil
}

func (l *Local) ChainInfoQuery(ctx context.Context, chainID ids.ID) (worker.ChainInfo, error) {
	return l.w.ChainInfo(ctx, chainID)
}

func (l *Local) Subscribe(chainID ids.ID) (<-chan worker.Notification, func()) {
	return l.w.Subscribe(chainID)
}

func (l *Local) DeliverInbox(ctx context.Context, targetChain ids.ID, entries []storage.InboxEntry) error {
	return l.w.DeliverInbox(ctx, targetChain, entries)
}

func (l *Local) UploadBlob(ctx context.Context, id ids.ID, data []byte) error {
	return l.w.UploadBlob(ctx, id, data)
}

func (l *Local) DownloadBlob(ctx context.Context, id ids.ID) ([]byte, error) {
	return l.w.DownloadBlob(ctx, id)
}

func (l *Local) PendingBlob(ctx context.Context, id ids.ID) (bool, error) {
	missing, err := l.w.MissingBlobIDs(ctx, []ids.ID{id})
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

func (l *Local) MissingBlobIDs(ctx context.Context, want []ids.ID) ([]ids.ID, error) {
	return l.w.MissingBlobIDs(ctx, want)
}

func (l *Local) BlobLastUsedBy(ctx context.Context, id ids.ID) (ids.ID, error) {
	return l.w.BlobLastUsedBy(ctx, id)
}

func (l *Local) DownloadCertificate(ctx context.Context, hash ids.ID) (*chain.Certificate, error) {
	return l.w.Certificate(ctx, hash)
}

func (l *Local) GetVersionInfo(context.Context) (VersionInfo, error) {
	return VersionInfo{Version: l.version}, nil
}

func (l *Local) GetNetworkDescription(context.Context) (NetworkDescription, error) {
	return l.network, nil
}
