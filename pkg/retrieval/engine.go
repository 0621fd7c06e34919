package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/graphmem/graphmem/internal/config"
	"github.com/graphmem/graphmem/internal/embedcache"
	"github.com/graphmem/graphmem/internal/embedder"
	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/graphmodel"
	"github.com/graphmem/graphmem/internal/graphmutex"
	"github.com/graphmem/graphmem/internal/incremental"
	"github.com/graphmem/graphmem/internal/invindex"
	"github.com/graphmem/graphmem/internal/queryplan"
	"github.com/graphmem/graphmem/internal/tokenize"
	"github.com/graphmem/graphmem/internal/vectorstore"
	"sync"
)

// Engine is the hybrid retrieval core: it owns a live in-memory view of
// the graph plus every search-layer index built over it, and exposes
// the spec §6 search entry points as methods. Construct one with
// NewEngine and share it across goroutines — every method is safe for
// concurrent use.
type Engine struct {
	store    graphmodel.Store
	embedder *embedcache.Cached
	cfg      *config.Config
	logger   *slog.Logger

	mu    sync.RWMutex
	graph *graphmodel.KnowledgeGraph

	tfidf   *invindex.TFIDFIndex
	bm25    *invindex.BM25Index
	vectors vectorstore.Store

	planCache   *queryplan.Cache
	writeMutex  *graphmutex.Mutex
	incremental *incremental.Queue

	warnMu   sync.Mutex
	warnings []string
}

// NewEngine loads the graph from store, builds every index over it, and
// seeds the vector store from the embedder for any entity the backing
// store doesn't already have an embedding for (spec §4.5/§4.6).
func NewEngine(ctx context.Context, store graphmodel.Store, emb embedder.Embedder, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, errs.New(errs.KindValidation, "retrieval engine requires a GraphStore")
	}
	if emb == nil {
		return nil, errs.New(errs.KindValidation, "retrieval engine requires an Embedder")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	graph, err := store.LoadGraph(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "load graph", err)
	}

	tfidf := invindex.NewTFIDFIndex(nil, tokenize.DefaultStopWords)
	tfidf.BuildIndex(graph)
	bm25 := invindex.NewBM25Index(tfidf.Inverted(), invindex.BM25Params{K1: cfg.BM25.K1, B: cfg.BM25.B})

	cached, err := embedcache.New(emb, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	if err != nil {
		return nil, errs.Wrap(errs.KindEmbedderUnavailable, "construct embedding cache", err)
	}

	vectors, err := vectorstore.Factory(ctx, vectorstore.Kind(cfg.Embedding.VectorStoreKind), emb.Dimensions(), store, emb.ModelID())
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "construct vector store", err)
	}

	planCache, err := queryplan.NewCache(cfg.QueryPlan.CacheSize)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "construct plan cache", err)
	}

	e := &Engine{
		store:      store,
		embedder:   cached,
		cfg:        cfg,
		logger:     logger,
		graph:      graph,
		tfidf:      tfidf,
		bm25:       bm25,
		vectors:    vectors,
		planCache:  planCache,
		writeMutex: graphmutex.New(cfg.GraphMutex.MaxQueueLength),
	}
	e.incremental = incremental.New(e.applyIncremental, planCache, e.entityCount, cfg.Incremental.BatchSize)

	if err := e.seedVectors(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// seedVectors embeds every entity the vector store doesn't already hold
// a vector for.
func (e *Engine) seedVectors(ctx context.Context) error {
	e.mu.RLock()
	names := make([]string, 0, len(e.graph.Entities))
	for name := range e.graph.Entities {
		if !e.vectors.Has(name) {
			names = append(names, name)
		}
	}
	e.mu.RUnlock()

	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.embedAndStore(ctx, name); err != nil {
			e.addWarning("embedding unavailable for " + name + ": " + err.Error())
		}
	}
	return nil
}

func (e *Engine) embedAndStore(ctx context.Context, name string) error {
	e.mu.RLock()
	ent, ok := e.graph.Entities[name]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	vecs, err := e.embedder.Embed(ctx, []string{embedder.DocumentPrefix + ent.SearchableText()})
	if err != nil {
		return err
	}
	vec := embedder.Normalize(vecs[0])
	return e.addVector(ctx, name, vec)
}

// addVector writes vec through whichever vector store variant is
// configured, preferring the durable path when available.
func (e *Engine) addVector(ctx context.Context, name string, vec []float32) error {
	if p, ok := e.vectors.(*vectorstore.Persistent); ok {
		return p.AddContext(ctx, name, vec)
	}
	return e.vectors.Add(name, vec)
}

func (e *Engine) removeVector(ctx context.Context, name string) error {
	if p, ok := e.vectors.(*vectorstore.Persistent); ok {
		return p.RemoveContext(ctx, name)
	}
	e.vectors.Remove(name)
	return nil
}

func (e *Engine) entityCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.graph.Entities)
}

func (e *Engine) addWarning(msg string) {
	e.warnMu.Lock()
	defer e.warnMu.Unlock()
	e.warnings = append(e.warnings, msg)
}

// drainWarnings returns and clears accumulated warnings, surfaced on
// the next SearchHybrid call (spec §7 "warning field").
func (e *Engine) drainWarnings() []string {
	e.warnMu.Lock()
	defer e.warnMu.Unlock()
	if len(e.warnings) == 0 {
		return nil
	}
	out := e.warnings
	e.warnings = nil
	return out
}

// snapshot returns the current graph under the read lock. Callers must
// not mutate the returned graph.
func (e *Engine) snapshot() *graphmodel.KnowledgeGraph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph
}

// Stats summarizes the engine's current index sizes, for diagnostics
// and the demo binary's "stats" subcommand.
type Stats struct {
	EntityCount           int
	RelationCount         int
	IndexedTerms          int
	VectorCount           int
	PlanCacheSize         int
	IncrementalPending    int
	IncrementalDegraded   bool
	EmbeddingCacheHitRate float64
}

// Stats returns a point-in-time snapshot of every index the engine maintains.
func (e *Engine) Stats() Stats {
	g := e.snapshot()
	return Stats{
		EntityCount:           len(g.Entities),
		RelationCount:         len(g.Relations),
		IndexedTerms:          e.tfidf.Inverted().Stats().TermCount,
		VectorCount:           e.vectors.Size(),
		PlanCacheSize:         e.planCache.Len(),
		IncrementalPending:    e.incremental.Pending(),
		IncrementalDegraded:   e.incremental.IsDegraded(),
		EmbeddingCacheHitRate: e.embedder.Stats().HitRate(),
	}
}

// MutateFunc edits a mutable working copy of the graph and reports which
// entities changed and how, for incremental index maintenance.
type MutateFunc func(g *graphmodel.KnowledgeGraph) (touched []incremental.Op, err error)

// Mutate serializes a graph edit through the single-writer mutex,
// persists it via the backing store, and incrementally updates every
// index for just the touched entities (spec §4.15/§4.16). A failed
// SaveGraph leaves the engine's in-memory snapshot untouched (spec §7
// "no partial write observable").
func (e *Engine) Mutate(ctx context.Context, fn MutateFunc) error {
	handle, err := e.writeMutex.Acquire(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	working, err := e.store.GetGraphForMutation(ctx)
	if err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "get graph for mutation", err)
	}

	touched, err := fn(working)
	if err != nil {
		return err
	}

	if err := e.store.SaveGraph(ctx, working); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "save graph", err)
	}

	e.mu.Lock()
	e.graph = working
	e.mu.Unlock()

	if len(touched) == 0 {
		return nil
	}
	for _, op := range touched {
		if _, err := e.incremental.Enqueue(op); err != nil {
			e.addWarning("incremental enqueue failed: " + err.Error())
		}
	}
	if _, err := e.incremental.Flush(); err != nil {
		e.addWarning("incremental flush failed: " + err.Error())
	}
	if e.incremental.IsDegraded() {
		e.addWarning("incremental indexer is degraded; consider a full reindex")
	}
	return nil
}

// applyIncremental updates the lexical and vector indexes for a batch of
// ops against the current graph snapshot. It is the incremental.Queue's
// ApplyFunc.
func (e *Engine) applyIncremental(ops []incremental.Op) ([]string, error) {
	g := e.snapshot()
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	e.tfidf.UpdateIndex(g, names)

	ctx := context.Background()
	applied := make([]string, 0, len(ops))
	for _, op := range ops {
		var err error
		if op.Kind == incremental.OpDelete {
			err = e.removeVector(ctx, op.Name)
		} else if _, ok := g.Entities[op.Name]; !ok {
			err = e.removeVector(ctx, op.Name)
		} else {
			err = e.embedAndStore(ctx, op.Name)
		}
		if err != nil {
			return applied, err
		}
		applied = append(applied, op.Name)
	}
	return applied, nil
}

// AddEntity inserts or replaces an entity and indexes it.
func (e *Engine) AddEntity(ctx context.Context, entity graphmodel.Entity) error {
	limits := graphmodel.Limits{MaxObservationsPerEntity: e.cfg.Limits.MaxObservationsPerEntity, MaxTagsPerEntity: e.cfg.Limits.MaxTagsPerEntity}
	if err := entity.Validate(limits); err != nil {
		return err
	}
	now := time.Now()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.LastModified = now
	entity.LastAccessedAt = now

	return e.Mutate(ctx, func(g *graphmodel.KnowledgeGraph) ([]incremental.Op, error) {
		ec := entity
		g.Entities[ec.Name] = &ec
		return []incremental.Op{{Kind: incremental.OpAdd, Name: ec.Name}}, nil
	})
}

// AppendObservation appends text to an existing entity's observations.
func (e *Engine) AppendObservation(ctx context.Context, name, text string) error {
	return e.Mutate(ctx, func(g *graphmodel.KnowledgeGraph) ([]incremental.Op, error) {
		ent, ok := g.Entities[name]
		if !ok {
			return nil, errs.NotFound("entity not found: " + name)
		}
		ent.Observations = append(ent.Observations, text)
		ent.LastModified = time.Now()
		return []incremental.Op{{Kind: incremental.OpUpdate, Name: name}}, nil
	})
}

// DeleteEntity removes an entity and every relation touching it.
func (e *Engine) DeleteEntity(ctx context.Context, name string) error {
	return e.Mutate(ctx, func(g *graphmodel.KnowledgeGraph) ([]incremental.Op, error) {
		if _, ok := g.Entities[name]; !ok {
			return nil, nil
		}
		delete(g.Entities, name)
		kept := g.Relations[:0]
		for _, r := range g.Relations {
			if r.From != name && r.To != name {
				kept = append(kept, r)
			}
		}
		g.Relations = kept
		return []incremental.Op{{Kind: incremental.OpDelete, Name: name}}, nil
	})
}
