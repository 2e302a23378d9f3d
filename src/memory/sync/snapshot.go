package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/devsynth-io/crossmem/src/memory/model"
	"github.com/devsynth-io/crossmem/src/memory/store"
)

// participant is one store enrolled in a transaction, together with the
// rollback mechanism chosen for it at capture time.
type participant struct {
	name string
	st   store.Store
	kind participantKind

	txID  string             // native
	state store.State        // snapshot
	items []model.MemoryItem // generic full copy
}

type participantKind int

const (
	kindNative participantKind = iota
	kindSnapshot
	kindGeneric
)

// classify picks the strongest rollback mechanism the store offers.
// A CapabilityReporter omitting CapFullScan opts out of the generic
// fallback, so a store with no mechanism at all is rejected here,
// before any capture or mutation.
func classify(st store.Store) (participantKind, bool) {
	if _, ok := st.(store.Transactional); ok {
		return kindNative, true
	}
	if _, ok := st.(store.Snapshotter); ok {
		return kindSnapshot, true
	}
	if rep, ok := st.(store.CapabilityReporter); ok {
		if rep.Capabilities()&store.CapFullScan == 0 {
			return 0, false
		}
	}
	return kindGeneric, true
}

// capture records the pre-transaction state of one store.
func capture(ctx context.Context, name string, st store.Store, kind participantKind) (*participant, error) {
	p := &participant{name: name, st: st, kind: kind}
	switch kind {
	case kindNative:
		txID, err := st.(store.Transactional).BeginTransaction(ctx, uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("begin transaction on %q: %w", name, err)
		}
		p.txID = txID
	case kindSnapshot:
		state, err := st.(store.Snapshotter).Snapshot(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", name, err)
		}
		p.state = state
	case kindGeneric:
		items, err := st.Search(ctx, store.All)
		if err != nil {
			return nil, fmt.Errorf("capture full copy of %q: %w", name, err)
		}
		copies := make([]model.MemoryItem, len(items))
		for i, item := range items {
			copies[i] = item.Clone()
		}
		p.items = copies
	}
	return p, nil
}

// commit finalizes a successful transaction for this participant.
// Snapshot and generic captures are simply discarded; the writes
// already applied are the commit.
func (p *participant) commit(ctx context.Context) error {
	if p.kind != kindNative {
		return nil
	}
	if err := p.st.(store.Transactional).CommitTransaction(ctx, p.txID); err != nil {
		return fmt.Errorf("commit transaction on %q: %w", p.name, err)
	}
	return nil
}

// release discards a capture on a store that was never mutated. Native
// participants roll back their open transaction; snapshot and generic
// captures are plain copies, so dropping them is enough and the store
// is not written to.
func (p *participant) release(ctx context.Context) error {
	if p.kind != kindNative {
		return nil
	}
	return p.st.(store.Transactional).RollbackTransaction(ctx, p.txID)
}

// restore returns the participant to its captured state.
func (p *participant) restore(ctx context.Context) error {
	switch p.kind {
	case kindNative:
		return p.st.(store.Transactional).RollbackTransaction(ctx, p.txID)
	case kindSnapshot:
		return p.st.(store.Snapshotter).Restore(ctx, p.state)
	default:
		return p.restoreFullCopy(ctx)
	}
}

// restoreFullCopy implements the generic fallback once for every
// backend: delete everything currently present, then write back the
// captured copies.
func (p *participant) restoreFullCopy(ctx context.Context) error {
	current, err := p.st.Search(ctx, store.All)
	if err != nil {
		return fmt.Errorf("enumerate %q for restore: %w", p.name, err)
	}
	for _, item := range current {
		if _, err := p.st.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("clear %q during restore: %w", p.name, err)
		}
	}
	for _, item := range p.items {
		if _, err := p.st.Store(ctx, item); err != nil {
			return fmt.Errorf("rewrite %q during restore: %w", p.name, err)
		}
	}
	return nil
}
