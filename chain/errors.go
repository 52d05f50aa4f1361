// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import "errors"

// Sentinel errors returned by the chain manager and view (spec §7).
var (
	// ErrUnknownChain names a chain with no recorded state. Nothing in
	// this module returns it: the worker creates a chain's manager and
	// view on first use.
	ErrUnknownChain = errors.New("chain: unknown chain")

	// ErrWrongEpoch names a proposal or certificate for an epoch other
	// than the chain's current epoch. Nothing in this module returns it:
	// ProcessProposal does not compare epochs, and certificates are
	// verified against the committee of their own epoch.
	ErrWrongEpoch = errors.New("chain: wrong epoch")

	// ErrWrongHeight is returned by ApplyBlock when the block's height
	// does not immediately follow the chain's tip.
	ErrWrongHeight = errors.New("chain: wrong height")

	// ErrWrongPreviousHash is returned by ApplyBlock when the block's
	// previous-hash does not match the chain's tip hash.
	ErrWrongPreviousHash = errors.New("chain: previous hash does not match tip")

	// ErrRoundTooOld is returned when a proposal or vote names a round
	// below the chain's current round (spec §4.2 Locked state).
	ErrRoundTooOld = errors.New("chain: round too old")

	// ErrChainLocked is returned when a new proposal in the locked
	// round conflicts with the locked block (spec §4.2 edge policy 1:
	// strict lock).
	ErrChainLocked = errors.New("chain: chain is locked on a different block")

	// ErrNotOwner names a proposal whose owner is not authorized to
	// propose for the chain. Nothing in this module returns it:
	// ProcessProposal does not check the proposer's ownership.
	ErrNotOwner = errors.New("chain: proposer is not an authorized owner")

	// ErrInvalidSignature is returned when a certificate's signature
	// does not verify against the claimed signer's key. A proposal's
	// owner signature is not verified.
	ErrInvalidSignature = errors.New("chain: invalid signature")

	// ErrDuplicateSigner names a signer already present in a
	// certificate. Certificate.AddSignature does not return it: a second
	// signature from the same signer replaces the first.
	ErrDuplicateSigner = errors.New("chain: signer already present")

	// ErrQuorumNotMet is returned when a certificate's accumulated
	// signature weight is below the committee's quorum threshold.
	ErrQuorumNotMet = errors.New("chain: signature weight below quorum threshold")

	// ErrUnknownSigner is returned when a signature is attributed to a
	// node ID absent from the chain's active committee.
	ErrUnknownSigner = errors.New("chain: signer is not a committee member")

	// ErrTimeoutNotElapsed is returned when a timeout certificate is
	// requested before the round's grace period has elapsed (spec
	// §4.2 edge policy 3).
	ErrTimeoutNotElapsed = errors.New("chain: round timeout has not elapsed")

	// ErrFutureTimestamp is returned when a proposed block's timestamp
	// is far enough ahead of the validator's clock that the vote must
	// be withheld (spec §4.2 edge policy 4).
	ErrFutureTimestamp = errors.New("chain: block timestamp too far in the future")

	// ErrBlobsNotFound is returned when a block references blobs the
	// storage contract does not (yet) hold (spec §4.1, §4.3).
	ErrBlobsNotFound = errors.New("chain: referenced blobs not found")

	// ErrAlreadyConfirmed is returned when a confirmed certificate is for
	// a height below the chain's locked block, or when a timeout vote is
	// requested for a chain that has already confirmed.
	ErrAlreadyConfirmed = errors.New("chain: height already confirmed")
)
