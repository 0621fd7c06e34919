package vectorstore

import (
	"context"

	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/graphmodel"
)

// Persistent is a Store variant that mirrors every write through to a
// graphmodel.Store instead of (or in addition to) an in-process snapshot
// file, so vectors survive process restarts without a separate save/load
// step driven by the caller (spec §4.5). It keeps a full in-memory copy
// for search — the backing Store is a write-through log and cold-start
// source, never queried on the read path.
type Persistent struct {
	*Memory
	backing graphmodel.Store
	model   string
}

var _ Store = (*Persistent)(nil)

// NewPersistent constructs a Persistent store over backing and loads
// every previously stored vector into memory immediately, per spec
// §4.5's "must load all vectors into memory at initialize()".
func NewPersistent(ctx context.Context, backing graphmodel.Store, model string, dim int) (*Persistent, error) {
	if backing == nil {
		return nil, errs.New(errs.KindStorageUnavailable, "persistent vector store requires a backing GraphStore")
	}
	p := &Persistent{Memory: NewMemory(dim), backing: backing, model: model}
	if err := p.initialize(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// initialize loads every embedding the backing store already has into
// the in-memory search structure.
func (p *Persistent) initialize(ctx context.Context) error {
	vectors, err := p.backing.LoadAllEmbeddings(ctx)
	if err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "load embeddings for persistent vector store", err)
	}
	for name, vec := range vectors {
		if err := p.Memory.Add(name, vec); err != nil {
			return err
		}
	}
	return nil
}

// AddContext writes vec to both the in-memory index and the backing
// store. Store's plain Add (required to satisfy the Store interface)
// only updates memory; callers that care about durability should use
// AddContext, which pkg/retrieval always does.
func (p *Persistent) AddContext(ctx context.Context, name string, vec []float32) error {
	if err := p.Memory.Add(name, vec); err != nil {
		return err
	}
	if err := p.backing.StoreEmbedding(ctx, name, vec, p.model); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "persist embedding", err)
	}
	return nil
}

// RemoveContext deletes name from both the in-memory index and the
// backing store.
func (p *Persistent) RemoveContext(ctx context.Context, name string) error {
	p.Memory.Remove(name)
	if err := p.backing.RemoveEmbedding(ctx, name); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "remove persisted embedding", err)
	}
	return nil
}

// ClearContext drops every vector from both layers.
func (p *Persistent) ClearContext(ctx context.Context) error {
	p.Memory = NewMemory(p.Memory.dim)
	if err := p.backing.ClearAllEmbeddings(ctx); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "clear persisted embeddings", err)
	}
	return nil
}

// Kind selects which vector store variant a Factory builds (spec §4.5).
type Kind string

const (
	// KindMemory keeps vectors only in process memory; nothing survives a
	// restart. The cheapest variant, suitable for short-lived or
	// test processes.
	KindMemory Kind = "memory"
	// KindQuantized is KindMemory with int8 scalar quantization, trading a
	// small cosine-similarity error for roughly a quarter of the memory.
	KindQuantized Kind = "quantized"
	// KindPersistent mirrors every write to a graphmodel.Store so vectors
	// survive a restart, loading the full set back into memory at startup.
	KindPersistent Kind = "persistent"
)

// Factory builds the configured Store variant. backing and model are
// only consulted for KindPersistent; dim seeds an empty store (0 defers
// to the first inserted vector's length).
func Factory(ctx context.Context, kind Kind, dim int, backing graphmodel.Store, model string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemory(dim), nil
	case KindQuantized:
		return NewQuantized(dim), nil
	case KindPersistent:
		return NewPersistent(ctx, backing, model, dim)
	default:
		return nil, errs.Validation("unknown vector store kind").WithDetail(string(kind))
	}
}
