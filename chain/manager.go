// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/committee"
	"github.com/luxfi/sidechain/crypto"
)

// State is a chain's position in the per-round voting state machine
// (spec §4.2). Transitions are driven by the four event kinds handled
// below, plus ActivateForRound (Inactive or TimedOut to
// AwaitingProposal) and Restore (reloading a persisted snapshot).
type State uint8

const (
	StateInactive State = iota
	StateAwaitingProposal
	StateProposed
	StateLocked
	StateConfirmed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateAwaitingProposal:
		return "awaiting_proposal"
	case StateProposed:
		return "proposed"
	case StateLocked:
		return "locked"
	case StateConfirmed:
		return "confirmed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ManagerState is the serializable snapshot persisted in a chain's
// storage.ChainView.ManagerState. The worker writes it after handling
// each certificate, in a write of its own, not in the batch that
// commits a confirmed block and its certificate.
type ManagerState struct {
	State          State
	Round          uint64
	ProposedBlock  *Block
	LockedBlock    *Block
	LockedCert     *Certificate
	RoundDeadline  time.Time
	SubmittedTimeout bool
}

// Manager drives one chain's voting state machine. It holds no
// reference to storage or to the network: callers (the worker) persist
// the snapshot and deliver messages. The mutex is only ever held
// inside a single synchronous method body, never across a channel
// send or other suspension point (spec §5 Design Note).
type Manager struct {
	chainID     ids.ID
	committees  committee.Source
	self        ids.NodeID
	keys        crypto.KeyPair
	gracePeriod time.Duration

	mu    sync.Mutex
	state ManagerState
}

// NewManager starts a chain in the Inactive state.
func NewManager(chainID ids.ID, committees committee.Source, self ids.NodeID, keys crypto.KeyPair, gracePeriod time.Duration) *Manager {
	return &Manager{
		chainID:     chainID,
		committees:  committees,
		self:        self,
		keys:        keys,
		gracePeriod: gracePeriod,
		state:       ManagerState{State: StateInactive},
	}
}

// Snapshot returns a copy of the manager's current state for
// persistence.
func (m *Manager) Snapshot() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restore replaces the manager's state with a previously persisted
// snapshot, used when a shard reloads a chain from storage.
func (m *Manager) Restore(s ManagerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// ActivateForRound moves an Inactive or TimedOut chain into
// AwaitingProposal, arming the round's timeout deadline.
func (m *Manager) ActivateForRound(round uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.State = StateAwaitingProposal
	m.state.Round = round
	m.state.RoundDeadline = now.Add(m.gracePeriod)
	m.state.SubmittedTimeout = false
}

// ProcessProposal validates and records an incoming block proposal,
// returning the validator's own vote signature (a contribution to the
// corresponding Validated certificate) on acceptance.
//
// Edge policy 1 (strict lock): once locked on a block for a round, any
// other block proposed for that same round is rejected outright.
// Edge policy 2 (carry-forward): a proposal whose ValidatedCertificate
// is for a round at or after the chain's lock unlocks the chain,
// superseding the prior lock.
// Edge policy 4 (future timestamp): a block timestamped too far ahead
// of the validator's clock has its vote withheld rather than granted.
func (m *Manager) ProcessProposal(ctx context.Context, p BlockProposal, now time.Time, maxClockDrift time.Duration) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Block.Timestamp.After(now.Add(maxClockDrift)) {
		return Signature{}, ErrFutureTimestamp
	}
	if p.Round < m.state.Round {
		return Signature{}, ErrRoundTooOld
	}

	if m.state.State == StateLocked && p.Round == m.state.Round {
		unlocked := p.ValidatedCertificate != nil && p.ValidatedCertificate.Round >= m.state.LockedCert.Round
		sameBlock := m.state.LockedBlock != nil && m.state.LockedBlock.Hash() == p.Block.Hash()
		if !unlocked && !sameBlock {
			return Signature{}, ErrChainLocked
		}
		if unlocked {
			comm, err := m.committees.ForEpoch(ctx, p.ValidatedCertificate.Epoch)
			if err != nil {
				return Signature{}, err
			}
			if err := verifyCertificate(p.ValidatedCertificate, comm); err != nil {
				return Signature{}, fmt.Errorf("chain: carried-forward certificate invalid: %w", err)
			}
		}
	}

	block := p.Block
	m.state.State = StateProposed
	m.state.Round = p.Round
	m.state.ProposedBlock = &block

	preimage := certificatePreimage(KindValidated, block.Hash(), p.Round, block.Epoch)
	sig := m.keys.Sign(preimage[:])
	return Signature{Validator: m.self, PublicKey: m.keys.Public, Sig: sig}, nil
}

// ProcessValidatedCertificate accepts a quorum-backed Validated
// certificate, locking the chain on its block for the certificate's
// round.
func (m *Manager) ProcessValidatedCertificate(ctx context.Context, cert *Certificate) error {
	if cert.Kind != KindValidated {
		return fmt.Errorf("chain: expected validated certificate, got %s", cert.Kind)
	}
	comm, err := m.committees.ForEpoch(ctx, cert.Epoch)
	if err != nil {
		return err
	}
	if err := verifyCertificate(cert, comm); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cert.Round < m.state.Round {
		return ErrRoundTooOld
	}
	block := cert.Block
	m.state.State = StateLocked
	m.state.Round = cert.Round
	m.state.LockedBlock = &block
	m.state.LockedCert = cert
	return nil
}

// ProcessConfirmedCertificate accepts a quorum-backed Confirmed
// certificate, finalizing the chain's round. The caller is responsible
// for applying the certified block to the chain's storage.ChainView
// (ApplyBlock) within the same atomic batch as this transition.
func (m *Manager) ProcessConfirmedCertificate(ctx context.Context, cert *Certificate) error {
	if cert.Kind != KindConfirmed {
		return fmt.Errorf("chain: expected confirmed certificate, got %s", cert.Kind)
	}
	comm, err := m.committees.ForEpoch(ctx, cert.Epoch)
	if err != nil {
		return err
	}
	if err := verifyCertificate(cert, comm); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cert.Block.Height < m.confirmedHeightLocked() {
		return ErrAlreadyConfirmed
	}
	m.state.State = StateConfirmed
	m.state.Round = cert.Round
	return nil
}

func (m *Manager) confirmedHeightLocked() uint64 {
	if m.state.LockedBlock == nil {
		return 0
	}
	return m.state.LockedBlock.Height
}

// ProcessTimeout produces this validator's own timeout vote once the
// round's grace period has elapsed (spec §4.2 edge policy 3), at most
// once per round.
func (m *Manager) ProcessTimeout(now time.Time) (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.State == StateConfirmed {
		return Signature{}, ErrAlreadyConfirmed
	}
	if now.Before(m.state.RoundDeadline) {
		return Signature{}, ErrTimeoutNotElapsed
	}
	if m.state.SubmittedTimeout {
		return Signature{}, fmt.Errorf("chain: timeout already submitted for round %d", m.state.Round)
	}

	preimage := certificatePreimage(KindTimeout, Block{}.Hash(), m.state.Round, 0)
	sig := m.keys.Sign(preimage[:])
	m.state.SubmittedTimeout = true
	return Signature{Validator: m.self, PublicKey: m.keys.Public, Sig: sig}, nil
}

// ProcessTimeoutCertificate accepts a quorum-backed Timeout
// certificate, advancing the chain to the next round.
func (m *Manager) ProcessTimeoutCertificate(ctx context.Context, cert *Certificate) error {
	if cert.Kind != KindTimeout {
		return fmt.Errorf("chain: expected timeout certificate, got %s", cert.Kind)
	}
	comm, err := m.committees.ForEpoch(ctx, cert.Epoch)
	if err != nil {
		return err
	}
	if err := verifyCertificate(cert, comm); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cert.Round < m.state.Round {
		return ErrRoundTooOld
	}
	m.state.State = StateTimedOut
	m.state.Round = cert.Round + 1
	m.state.RoundDeadline = time.Time{}
	m.state.SubmittedTimeout = false
	m.state.ProposedBlock = nil
	return nil
}

// VoteConfirm produces this validator's confirm vote for the block
// currently locked for the chain's round. Only a validator whose
// manager has locked on the block (via a quorum-backed Validated
// certificate) can contribute a confirm vote (spec §4.2 Locked state).
func (m *Manager) VoteConfirm() (Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.State != StateLocked || m.state.LockedBlock == nil {
		return Signature{}, fmt.Errorf("chain: cannot vote confirm outside the locked state")
	}
	preimage := certificatePreimage(KindConfirmed, m.state.LockedBlock.Hash(), m.state.Round, m.state.LockedBlock.Epoch)
	sig := m.keys.Sign(preimage[:])
	return Signature{Validator: m.self, PublicKey: m.keys.Public, Sig: sig}, nil
}

// verifyCertificate checks that every signature in cert belongs to a
// committee member, verifies under that member's key, and that the
// distinct signer set meets the committee's quorum threshold (spec §3,
// §4.2; tagged-variant capability set per spec §9 Design Note — the
// same verification logic serves all three certificate kinds).
func verifyCertificate(cert *Certificate, comm *committee.Committee) error {
	preimage := certificatePreimage(cert.Kind, cert.Block.Hash(), cert.Round, cert.Epoch)

	signers := make([]ids.NodeID, 0, len(cert.Signatures()))
	for _, sig := range cert.Signatures() {
		member, ok := comm.Member(sig.Validator)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSigner, sig.Validator)
		}
		if !crypto.Verify(member.PublicKey, preimage[:], sig.Sig) {
			return fmt.Errorf("%w: validator %s", ErrInvalidSignature, sig.Validator)
		}
		signers = append(signers, sig.Validator)
	}
	if !comm.HasQuorum(signers) {
		return ErrQuorumNotMet
	}
	return nil
}
