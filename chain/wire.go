// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"time"

	"github.com/luxfi/sidechain/codec"
)

// wireCertificate is Certificate's on-the-wire shape. Certificate
// keeps its signer set unexported so every mutation goes through
// AddSignature; encoding/decoding goes through this shadow struct
// instead of relying on CBOR's default (exported-fields-only) struct
// handling.
type wireCertificate struct {
	Kind       CertificateKind
	Block      Block
	Round      uint64
	Epoch      uint64
	Signatures []Signature
}

// EncodeCertificate serializes a certificate for storage or transport.
func EncodeCertificate(c *Certificate) ([]byte, error) {
	w := wireCertificate{
		Kind:       c.Kind,
		Block:      c.Block,
		Round:      c.Round,
		Epoch:      c.Epoch,
		Signatures: c.Signatures(),
	}
	return codec.CBOR.Marshal(codec.CurrentVersion, w)
}

// DecodeCertificate deserializes a certificate previously produced by
// EncodeCertificate.
func DecodeCertificate(data []byte) (*Certificate, error) {
	var w wireCertificate
	if _, err := codec.CBOR.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	c := NewCertificate(w.Kind, w.Block, w.Round, w.Epoch)
	for _, s := range w.Signatures {
		c.AddSignature(s)
	}
	return c, nil
}

// wireManagerState is ManagerState's on-the-wire shape; LockedCert's
// unexported signer set must go through wireCertificate, so
// ManagerState cannot be handed to the codec directly.
type wireManagerState struct {
	State            State
	Round            uint64
	ProposedBlock    *Block
	LockedBlock      *Block
	LockedCert       *wireCertificate
	RoundDeadline    time.Time
	SubmittedTimeout bool
}

// EncodeManagerState serializes a manager snapshot for persistence
// alongside its chain's storage.ChainView (spec §4.1).
func EncodeManagerState(s ManagerState) ([]byte, error) {
	w := wireManagerState{
		State:            s.State,
		Round:            s.Round,
		ProposedBlock:    s.ProposedBlock,
		LockedBlock:      s.LockedBlock,
		RoundDeadline:    s.RoundDeadline,
		SubmittedTimeout: s.SubmittedTimeout,
	}
	if s.LockedCert != nil {
		w.LockedCert = &wireCertificate{
			Kind:       s.LockedCert.Kind,
			Block:      s.LockedCert.Block,
			Round:      s.LockedCert.Round,
			Epoch:      s.LockedCert.Epoch,
			Signatures: s.LockedCert.Signatures(),
		}
	}
	return codec.CBOR.Marshal(codec.CurrentVersion, w)
}

// DecodeManagerState deserializes a manager snapshot previously
// produced by EncodeManagerState.
func DecodeManagerState(data []byte) (ManagerState, error) {
	var w wireManagerState
	if _, err := codec.CBOR.Unmarshal(data, &w); err != nil {
		return ManagerState{}, err
	}
	s := ManagerState{
		State:            w.State,
		Round:            w.Round,
		ProposedBlock:    w.ProposedBlock,
		LockedBlock:      w.LockedBlock,
		RoundDeadline:    w.RoundDeadline,
		SubmittedTimeout: w.SubmittedTimeout,
	}
	if w.LockedCert != nil {
		cert := NewCertificate(w.LockedCert.Kind, w.LockedCert.Block, w.LockedCert.Round, w.LockedCert.Epoch)
		for _, sig := range w.LockedCert.Signatures {
			cert.AddSignature(sig)
		}
		s.LockedCert = cert
	}
	return s, nil
}
