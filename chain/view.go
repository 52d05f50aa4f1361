// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/sidechain/codec"
	"github.com/luxfi/sidechain/storage"
)

// TransferPayload is the one built-in operation kind the core
// interprets directly: a fungible balance transfer, either within a
// chain's own balance (operation) or across chains (incoming bundle
// message). Every other Operation.Kind is opaque to the core (spec §1
// Non-goals: execution semantics are external), but a minimal transfer
// is needed to exercise the cross-chain delivery and balance-update
// testable properties (spec §8).
type TransferPayload struct {
	Target ids.ID // zero for a same-chain balance adjustment
	Amount uint64
}

const OpTransfer = "transfer"

// ApplyBlock projects a confirmed block onto a chain's persisted view,
// returning the updated view and the outbox entries the block produced
// (spec §4.2/§4.3: confirming a block drains matching inbox entries,
// executes operations, and appends outbox entries for any cross-chain
// sends).
func ApplyBlock(view storage.ChainView, block Block) (storage.ChainView, []storage.OutboxEntry, error) {
	if block.Height != view.NextBlockHeight {
		return view, nil, fmt.Errorf("%w: block height %d, expected %d", ErrWrongHeight, block.Height, view.NextBlockHeight)
	}
	if block.PreviousHash != view.TipHash {
		return view, nil, ErrWrongPreviousHash
	}

	out := cloneChainView(view)

	for _, bundle := range block.IncomingBundles {
		entries := out.Inbox[bundle.SourceChain]
		remaining := entries[:0]
		for _, e := range entries {
			if e.Height == bundle.Height {
				var payload TransferPayload
				if _, err := codec.CBOR.Unmarshal(e.Payload, &payload); err != nil {
					return view, nil, fmt.Errorf("chain: decode incoming transfer: %w", err)
				}
				out.Balance += payload.Amount
				continue
			}
			remaining = append(remaining, e)
		}
		out.Inbox[bundle.SourceChain] = remaining
	}

	var produced []storage.OutboxEntry
	for _, op := range block.Operations {
		if op.Kind != OpTransfer {
			continue
		}
		var payload TransferPayload
		if _, err := codec.CBOR.Unmarshal(op.Data, &payload); err != nil {
			return view, nil, fmt.Errorf("chain: decode transfer operation: %w", err)
		}
		if payload.Amount > out.Balance {
			return view, nil, fmt.Errorf("chain: transfer amount %d exceeds balance %d", payload.Amount, out.Balance)
		}
		out.Balance -= payload.Amount
		if payload.Target == (ids.ID{}) {
			out.Balance += payload.Amount // same-chain no-op transfer
			continue
		}
		encoded, err := codec.CBOR.Marshal(codec.CurrentVersion, TransferPayload{Amount: payload.Amount})
		if err != nil {
			return view, nil, fmt.Errorf("chain: encode outbox payload: %w", err)
		}
		entry := storage.OutboxEntry{
			TargetChain: payload.Target,
			Height:      block.Height,
			Payload:     encoded,
		}
		out.Outboxes[payload.Target] = append(out.Outboxes[payload.Target], entry)
		produced = append(produced, entry)
	}

	out.NextBlockHeight = block.Height + 1
	out.TipHash = block.Hash()
	out.Epoch = block.Epoch
	return out, produced, nil
}

func cloneChainView(v storage.ChainView) storage.ChainView {
	out := v
	out.Inbox = make(map[ids.ID][]storage.InboxEntry, len(v.Inbox))
	for k, entries := range v.Inbox {
		cp := make([]storage.InboxEntry, len(entries))
		copy(cp, entries)
		out.Inbox[k] = cp
	}
	out.Outboxes = make(map[ids.ID][]storage.OutboxEntry, len(v.Outboxes))
	for k, entries := range v.Outboxes {
		cp := make([]storage.OutboxEntry, len(entries))
		copy(cp, entries)
		out.Outboxes[k] = cp
	}
	return out
}
