// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"context"
	"sync"

	"github.com/luxfi/ids"
)

// Memory is an in-process, map-backed Contract. It is the reference
// implementation used by the test harness and by `validator run`
// without a configured backend; production deployments plug in a real
// KV/blob store behind the same Contract.
type Memory struct {
	mu sync.RWMutex

	chains       map[ids.ID]ChainView
	certificates map[ids.ID][]byte
	blobs        map[ids.ID][]byte
	blobStates   map[ids.ID]BlobState
	networkDesc  []byte
}

// NewMemory returns an empty in-memory storage contract.
func NewMemory() *Memory {
	return &Memory{
		chains:       make(map[ids.ID]ChainView),
		certificates: make(map[ids.ID][]byte),
		blobs:        make(map[ids.ID][]byte),
		blobStates:   make(map[ids.ID]BlobState),
	}
}

func (m *Memory) ReadChainState(_ context.Context, chainID ids.ID) (ChainView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.chains[chainID]
	if !ok {
		return ChainView{}, ErrNotFound
	}
	return cloneView(v), nil
}

func (m *Memory) WriteChainState(_ context.Context, view ChainView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains[view.ChainID] = cloneView(view)
	return nil
}

func (m *Memory) ReadCertificate(_ context.Context, hash ids.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certificates[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ReadCertificates(ctx context.Context, hashes []ids.ID) ([][]byte, error) {
	out := make([][]byte, 0, len(hashes))
	for _, h := range hashes {
		c, err := m.ReadCertificate(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) WriteCertificate(_ context.Context, hash ids.ID, cert []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certificates[hash] = cert
	return nil
}

func (m *Memory) ReadBlob(_ context.Context, id ids.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// WriteBlob is idempotent: writing the same content-addressed id twice
// is a no-op on the second call (spec §4.1 guarantee).
func (m *Memory) WriteBlob(_ context.Context, id ids.ID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[id]; ok {
		return nil
	}
	m.blobs[id] = data
	return nil
}

func (m *Memory) MissingBlobs(_ context.Context, want []ids.ID) ([]ids.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var missing []ids.ID
	for _, id := range want {
		if _, ok := m.blobs[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (m *Memory) ReadBlobState(_ context.Context, id ids.ID) (BlobState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blobStates[id], nil
}

func (m *Memory) ReadNetworkDescription(_ context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.networkDesc == nil {
		return nil, ErrNotFound
	}
	return m.networkDesc, nil
}

func (m *Memory) WriteNetworkDescription(_ context.Context, desc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.networkDesc = desc
	return nil
}

// NewBatch starts an atomic write batch. All accumulated writes become
// visible together on Commit, holding the store's single lock for the
// duration of the commit only (spec §5: no suspension point may be
// reached while the lock is held).
func (m *Memory) NewBatch() Batch {
	return &memoryBatch{store: m}
}

type memoryBatch struct {
	store       *Memory
	views       []ChainView
	certs       map[ids.ID][]byte
	blobs       map[ids.ID][]byte
	blobStates  map[ids.ID]BlobState
}

func (b *memoryBatch) WriteChainState(view ChainView) {
	b.views = append(b.views, cloneView(view))
}

func (b *memoryBatch) WriteCertificate(hash ids.ID, cert []byte) {
	if b.certs == nil {
		b.certs = make(map[ids.ID][]byte)
	}
	b.certs[hash] = cert
}

func (b *memoryBatch) WriteBlob(id ids.ID, data []byte) {
	if b.blobs == nil {
		b.blobs = make(map[ids.ID][]byte)
	}
	b.blobs[id] = data
}

func (b *memoryBatch) WriteBlobState(id ids.ID, state BlobState) {
	if b.blobStates == nil {
		b.blobStates = make(map[ids.ID]BlobState)
	}
	b.blobStates[id] = state
}

func (b *memoryBatch) Commit(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, v := range b.views {
		b.store.chains[v.ChainID] = v
	}
	for h, c := range b.certs {
		b.store.certificates[h] = c
	}
	for id, data := range b.blobs {
		if _, ok := b.store.blobs[id]; !ok {
			b.store.blobs[id] = data
		}
	}
	for id, s := range b.blobStates {
		b.store.blobStates[id] = s
	}
	return nil
}

func cloneView(v ChainView) ChainView {
	out := v
	out.Inbox = make(map[ids.ID][]InboxEntry, len(v.Inbox))
	for k, entries := range v.Inbox {
		cp := make([]InboxEntry, len(entries))
		copy(cp, entries)
		out.Inbox[k] = cp
	}
	out.Outboxes = make(map[ids.ID][]OutboxEntry, len(v.Outboxes))
	for k, entries := range v.Outboxes {
		cp := make([]OutboxEntry, len(entries))
		copy(cp, entries)
		out.Outboxes[k] = cp
	}
	return out
}
