// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain implements the chain data model (spec §3) and the
// per-chain voting state machine (spec §4.2), generalized from the
// teacher's engine/chain.Engine stage-transition shape.
package chain

import (
	"time"

	"github.com/luxfi/ids"
)

// Ownership selects whether a chain accepts proposals from a single
// fixed owner (enabling the fast path, spec §4.4) or from a weighted
// set of multiple owners.
type Ownership struct {
	Single  ids.NodeID            // valid when len(Weights) == 0
	Weights map[ids.NodeID]uint64 // multi-owner weights, nil for single-owner chains
}

// SingleOwner reports whether the chain has exactly one owner, which is
// the precondition for the fast round rule (spec §4.2, §4.4).
func (o Ownership) SingleOwner() bool {
	return len(o.Weights) == 0
}

// Operation is an opaque, execution-engine-interpreted user operation
// (spec §1 Non-goals: execution semantics are external). The core only
// needs to serialize, hash and count operations.
type Operation struct {
	Kind string
	Data []byte
}

// IncomingBundle is a batch of inbox messages a proposer chooses to
// drain into a block (spec §4.4 pending_message_bundles).
type IncomingBundle struct {
	SourceChain ids.ID
	Height      uint64
	Messages    [][]byte
}

// Block is the immutable payload described in spec §3.
type Block struct {
	ChainID          ids.ID
	Height           uint64
	PreviousHash     ids.ID // zero value at height 0
	Epoch            uint64
	Timestamp        time.Time
	Owner            ids.NodeID
	Operations       []Operation
	IncomingBundles  []IncomingBundle
}

// Hash returns the content hash identifying this block. Equal blocks
// hash equally; callers never compare blocks structurally.
func (b Block) Hash() ids.ID {
	return ids.ID(hashAny(b))
}

// BlockProposal is a proposed block plus the round it was proposed in
// and, when carrying a lock forward, the validated certificate that
// justifies re-proposing it (spec §3, §4.2 edge policy 2).
type BlockProposal struct {
	Block               Block
	Round               uint64
	OwnerSignature      []byte
	ValidatedCertificate *Certificate // nil unless carrying a lock forward
}

// CertificateKind distinguishes the three certificate shapes sharing
// the signature-collection and verification machinery (spec §9 Design
// Note: model as a tagged variant, not one type per kind).
type CertificateKind uint8

const (
	KindTimeout CertificateKind = iota
	KindValidated
	KindConfirmed
)

func (k CertificateKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindValidated:
		return "validated"
	case KindConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Signature is one validator's contribution to a certificate. Per spec
// §3, certificates carry an explicit set of (validator_pk, sig) pairs,
// not an aggregated signature.
type Signature struct {
	Validator ids.NodeID
	PublicKey []byte
	Sig       []byte
}

// Certificate is the spec §3 Certificate: inner value, round, and the
// set of signatures whose aggregate weight met the committee's
// threshold for Kind.
type Certificate struct {
	Kind  CertificateKind
	Block Block // zero value for KindTimeout, which carries no block
	Round uint64
	Epoch uint64

	signers map[ids.NodeID]Signature
}

// NewCertificate starts an empty certificate for the given kind/round.
func NewCertificate(kind CertificateKind, block Block, round, epoch uint64) *Certificate {
	return &Certificate{
		Kind:    kind,
		Block:   block,
		Round:   round,
		Epoch:   epoch,
		signers: make(map[ids.NodeID]Signature),
	}
}

// AddSignature records a validator's signature, overwriting any prior
// signature from the same validator (re-signing is idempotent).
func (c *Certificate) AddSignature(s Signature) {
	if c.signers == nil {
		c.signers = make(map[ids.NodeID]Signature)
	}
	c.signers[s.Validator] = s
}

// Signatures returns the recorded signature set.
func (c *Certificate) Signatures() []Signature {
	out := make([]Signature, 0, len(c.signers))
	for _, s := range c.signers {
		out = append(out, s)
	}
	return out
}

// Hash returns the certificate's content hash, used as the storage key
// and for at-least-once delivery deduplication (spec §4.3).
func (c *Certificate) Hash() ids.ID {
	return ids.ID(certificatePreimage(c.Kind, c.Block.Hash(), c.Round, c.Epoch))
}

// VotePreimage returns the digest a validator signs to cast a vote for
// this certificate's (kind, block, round, epoch) tuple. It is the same
// digest Hash returns; kept as a distinct accessor since callers sign
// the digest bytes, not the ids.ID wrapper.
func (c *Certificate) VotePreimage() [32]byte {
	return certificatePreimage(c.Kind, c.Block.Hash(), c.Round, c.Epoch)
}
