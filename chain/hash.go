// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"crypto/sha256"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/codec"
)

// hashAny deterministically encodes v and returns its SHA-256 digest.
// Content identity (block hashes, certificate hashes) is always derived
// this way so two structurally-equal values always hash equally.
func hashAny(v interface{}) [32]byte {
	b, err := codec.CBOR.Marshal(codec.CurrentVersion, v)
	if err != nil {
		// Marshaling a plain data struct cannot fail; a failure here
		// indicates a programming error in the caller's type.
		panic("chain: cbor marshal of hashable value failed: " + err.Error())
	}
	return sha256.Sum256(b)
}

// certificatePreimage is the digest every validator signs to vote for
// a certificate of the given kind/round/epoch over blockHash. Sharing
// this with Certificate.Hash ties a certificate's identity to exactly
// what its signers attested to.
func certificatePreimage(kind CertificateKind, blockHash ids.ID, round, epoch uint64) [32]byte {
	return hashAny(struct {
		Kind  CertificateKind
		Block ids.ID
		Round uint64
		Epoch uint64
	}{kind, blockHash, round, epoch})
}
