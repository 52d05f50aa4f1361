// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client implements the chain client / quorum driver (spec
// §4.4): parallel RPC fan-out to every validator in a committee, vote
// weight quorum assembly for Validated and Confirmed certificates, a
// fault-mode table for harness-driven adversarial testing, and a
// bounded-retry blob repair loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/chain"
	"github.com/luxfi/sidechain/codec"
	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
	"github.com/luxfi/sidechain/validatornode"
	"github.com/luxfi/sidechain/worker"
)

// BlobSource answers a blob repair upload: the client must already
// hold the content of any blob it references in a proposal, since the
// core treats blob bodies as opaque to the consensus layer (spec §1
// Non-goals). Ok is false when the client itself doesn't have id,
// which is unrecoverable (spec §7: BlobsNotFound is only locally
// recoverable when the driver can supply the missing content).
type BlobSource func(id ids.ID) (data []byte, ok bool)

// FaultMode selects how a peer responds to the driver's requests,
// closed over the honest mode and six fault modes (spec §4.4, §8;
// spec §9 Design Note: a tagged variant, not dynamic dispatch).
type FaultMode uint8

const (
	// FaultHonest answers every request correctly and promptly.
	FaultHonest FaultMode = iota
	// FaultOffline never responds; every call to this peer times out.
	FaultOffline
	// FaultOfflineWithInfo never votes but still answers read-only
	// queries (chain info, blob presence) correctly.
	FaultOfflineWithInfo
	// FaultMalicious returns a structurally valid but wrong signature.
	FaultMalicious
	// FaultDontSendValidateVote accepts proposals but never returns a
	// validate vote.
	FaultDontSendValidateVote
	// FaultDontSendConfirmVote locks on Validated certificates but
	// never returns a confirm vote.
	FaultDontSendConfirmVote
	// FaultDontProcessValidated drops incoming Validated certificates
	// outright, so the peer never locks and never confirms.
	FaultDontProcessValidated
)

// Peer is one committee member as seen by the driver.
type Peer struct {
	NodeID ids.NodeID
	Node   validatornode.ValidatorNode
	Fault  FaultMode
}

// Timestamps records the six named latency checkpoints of a fast block
// proposal round-trip (spec §4.4, §4.5), grounded in the original
// benchmark's BlockTimeTimingsHistograms /
// SubmitFastBlockProposalTimingsHistograms stage split: pending bundle
// lookup, proposal construction, proposal submission (the validate-vote
// round trip), each validator staging/executing the locked block,
// confirmed block construction, and cross-chain inbox delivery.
type Timestamps struct {
	Submitted                    time.Time
	PendingBundlesAt             time.Time
	ProposalConstructionAt       time.Time
	ProposalSubmissionAt         time.Time
	StagingExecutionAt           time.Time
	ConfirmedBlockConstructionAt time.Time
	CrossChainUpdatesAt          time.Time
}

// Driver fans a chain's proposal out to its committee and assembles
// Validated/Confirmed certificates from the returned votes.
type Driver struct {
	peers      []Peer
	committees committee.Source
	rpcTimeout time.Duration
	blobs      BlobSource
}

// New builds a Driver over a fixed peer list with no blob repair
// capability; use NewWithBlobs to enable the repair loop.
func New(peers []Peer, committees committee.Source, rpcTimeout time.Duration) *Driver {
	return &Driver{peers: peers, committees: committees, rpcTimeout: rpcTimeout}
}

// NewWithBlobs builds a Driver that repairs BlobsNotFound responses by
// uploading the missing content from blobs and retrying once (spec
// §7: BlobsNotFound is locally recoverable via upload+retry; spec §8
// scenario 2).
func NewWithBlobs(peers []Peer, committees committee.Source, rpcTimeout time.Duration, blobs BlobSource) *Driver {
	return &Driver{peers: peers, committees: committees, rpcTimeout: rpcTimeout, blobs: blobs}
}

// ExecuteOperation submits block as a fast-path single-owner proposal
// and drives it to confirmation, returning the confirmed certificate
// and the round's latency checkpoints (spec §4.4 execute_operation,
// submit_fast_block_proposal).
func (d *Driver) ExecuteOperation(ctx context.Context, block chain.Block, round uint64) (*chain.Certificate, Timestamps, error) {
	var ts Timestamps
	ts.Submitted = time.Now()

	comm, err := d.committees.ForEpoch(ctx, block.Epoch)
	if err != nil {
		return nil, ts, err
	}
	ts.PendingBundlesAt = time.Now()

	proposal := chain.BlockProposal{Block: block, Round: round}
	ts.ProposalConstructionAt = time.Now()

	validateVotes := d.fanOut(ctx, comm, func(ctx context.Context, p Peer) (chain.Signature, error) {
		if p.Fault == FaultDontSendValidateVote {
			return chain.Signature{}, fmt.Errorf("client: peer %s withheld validate vote", p.NodeID)
		}
		return d.callProposal(ctx, p, proposal)
	})
	validated := assembleCertificate(chain.KindValidated, block, round, block.Epoch, validateVotes, comm)
	if validated == nil {
		return nil, ts, fmt.Errorf("client: validate quorum not reached")
	}
	ts.ProposalSubmissionAt = time.Now()

	d.broadcastCertificate(ctx, comm, validated)
	ts.StagingExecutionAt = time.Now()

	confirmVotes := d.fanOut(ctx, comm, func(ctx context.Context, p Peer) (chain.Signature, error) {
		if p.Fault == FaultDontSendConfirmVote || p.Fault == FaultDontProcessValidated {
			return chain.Signature{}, fmt.Errorf("client: peer %s withheld confirm vote", p.NodeID)
		}
		return d.callVoteConfirm(ctx, p, block.ChainID)
	})
	confirmed := assembleCertificate(chain.KindConfirmed, block, round, block.Epoch, confirmVotes, comm)
	if confirmed == nil {
		return nil, ts, fmt.Errorf("client: confirm quorum not reached")
	}
	ts.ConfirmedBlockConstructionAt = time.Now()

	d.broadcastCertificate(ctx, comm, confirmed)
	ts.CrossChainUpdatesAt = time.Now()

	return confirmed, ts, nil
}

// fanOut issues fn against every peer concurrently and collects the
// successful (non-error) results. Offline peers time out via ctx.
func (d *Driver) fanOut(ctx context.Context, comm *committee.Committee, fn func(context.Context, Peer) (chain.Signature, error)) []chain.Signature {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sigs []chain.Signature
	)
	for _, p := range d.peers {
		if _, ok := comm.Member(p.NodeID); !ok {
			continue
		}
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, d.rpcTimeout)
			defer cancel()
			sig, err := fn(callCtx, p)
			if err != nil {
				return
			}
			mu.Lock()
			sigs = append(sigs, sig)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return sigs
}

func (d *Driver) callProposal(ctx context.Context, p Peer, proposal chain.BlockProposal) (chain.Signature, error) {
	if p.Fault == FaultOffline || p.Fault == FaultOfflineWithInfo {
		<-ctx.Done()
		return chain.Signature{}, ctx.Err()
	}
	sig, err := p.Node.HandleBlockProposal(ctx, proposal)
	if errors.Is(err, chain.ErrBlobsNotFound) && d.blobs != nil {
		if repairErr := d.repairBlobs(ctx, p, proposal.Block); repairErr != nil {
			return chain.Signature{}, fmt.Errorf("client: blob repair for peer %s: %w", p.NodeID, repairErr)
		}
		sig, err = p.Node.HandleBlockProposal(ctx, proposal)
	}
	if err != nil {
		return chain.Signature{}, err
	}
	if p.Fault == FaultMalicious {
		sig.Sig = tamper(sig.Sig)
	}
	return sig, nil
}

// repairBlobs uploads every blob the peer is missing from the
// client's own BlobSource, failing if the client can't supply one.
func (d *Driver) repairBlobs(ctx context.Context, p Peer, block chain.Block) error {
	for _, op := range block.Operations {
		if op.Kind != worker.OpBlobRef {
			continue
		}
		var id ids.ID
		if _, err := codec.CBOR.Unmarshal(op.Data, &id); err != nil {
			continue
		}
		data, ok := d.blobs(id)
		if !ok {
			return fmt.Errorf("client: no local content for blob %s", id)
		}
		if err := p.Node.UploadBlob(ctx, id, data); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) callVoteConfirm(ctx context.Context, p Peer, chainID ids.ID) (chain.Signature, error) {
	if p.Fault == FaultOffline || p.Fault == FaultOfflineWithInfo {
		<-ctx.Done()
		return chain.Signature{}, ctx.Err()
	}
	sig, err := p.Node.VoteConfirm(ctx, chainID)
	if err != nil {
		return chain.Signature{}, err
	}
	if p.Fault == FaultMalicious {
		sig.Sig = tamper(sig.Sig)
	}
	return sig, nil
}

// broadcastCertificate sends a quorum-backed certificate to every
// committee member so they can lock/confirm, ignoring faulty peers'
// errors (best-effort dissemination).
func (d *Driver) broadcastCertificate(ctx context.Context, comm *committee.Committee, cert *chain.Certificate) {
	var wg sync.WaitGroup
	for _, p := range d.peers {
		if _, ok := comm.Member(p.NodeID); !ok {
			continue
		}
		if p.Fault == FaultOffline {
			continue
		}
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, d.rpcTimeout)
			defer cancel()
			if p.Fault == FaultDontProcessValidated && cert.Kind == chain.KindValidated {
				return
			}
			switch cert.Kind {
			case chain.KindValidated:
				_ = p.Node.HandleValidatedCertificate(callCtx, cert)
			case chain.KindConfirmed:
				_ = p.Node.HandleConfirmedCertificate(callCtx, cert)
			case chain.KindTimeout:
				_ = p.Node.HandleTimeoutCertificate(callCtx, cert)
			}
		}(p)
	}
	wg.Wait()
}

// assembleCertificate verifies each returned vote against its claimed
// signer's committee key, drops forged votes (spec §4.4: a malicious
// peer's vote must not be able to poison the certificate), and returns
// a certificate once the verified signer weight meets the committee's
// quorum threshold.
func assembleCertificate(kind chain.CertificateKind, block chain.Block, round, epoch uint64, sigs []chain.Signature, comm *committee.Committee) *chain.Certificate {
	preimage := chain.NewCertificate(kind, block, round, epoch).VotePreimage()

	cert := chain.NewCertificate(kind, block, round, epoch)
	signerIDs := make([]ids.NodeID, 0, len(sigs))
	for _, s := range sigs {
		member, ok := comm.Member(s.Validator)
		if !ok || !crypto.Verify(member.PublicKey, preimage[:], s.Sig) {
			continue
		}
		cert.AddSignature(s)
		signerIDs = append(signerIDs, s.Validator)
	}
	if !comm.HasQuorum(signerIDs) {
		return nil
	}
	return cert
}

func tamper(sig []byte) []byte {
	out := make([]byte, len(sig))
	copy(out, sig)
	if len(out) > 0 {
		out[0] ^= 0xFF
	}
	return out
}
