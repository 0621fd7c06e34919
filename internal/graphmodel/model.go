// Package graphmodel defines the knowledge-graph data model and the
// GraphStore contract the retrieval core consumes. The store itself is an
// external collaborator (persistence, CLI, file-format adapters); this
// package fixes only the shapes and the contract, per spec §3 and §6.
package graphmodel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graphmem/graphmem/internal/errs"
)

// Limits bounds entity and relation shape. See spec §6 limits.*.
type Limits struct {
	MaxObservationsPerEntity int
	MaxTagsPerEntity         int
}

// DefaultLimits returns the spec §6 defaults.
func DefaultLimits() Limits {
	return Limits{MaxObservationsPerEntity: 1000, MaxTagsPerEntity: 100}
}

// Entity is a uniquely named node in the knowledge graph. Name is the
// primary key and is case-sensitive.
type Entity struct {
	Name           string
	EntityType     string
	Observations   []string
	Tags           []string
	Importance     *float64 // nil means "unset"; defaults to 5 where a predicate needs a value.
	ParentID       string
	CreatedAt      time.Time
	LastModified   time.Time
	LastAccessedAt time.Time
}

// Validate checks the invariants from spec §3: non-empty name, bounded
// observations/tags, importance clamped to [0,10].
func (e *Entity) Validate(limits Limits) error {
	if strings.TrimSpace(e.Name) == "" {
		return errs.Validation("entity name must not be empty")
	}
	if len(e.Observations) > limits.MaxObservationsPerEntity {
		return errs.LimitExceeded("too many observations",
			fmt.Sprintf("%d observations exceeds limit %d", len(e.Observations), limits.MaxObservationsPerEntity))
	}
	if len(e.Tags) > limits.MaxTagsPerEntity {
		return errs.LimitExceeded("too many tags",
			fmt.Sprintf("%d tags exceeds limit %d", len(e.Tags), limits.MaxTagsPerEntity))
	}
	if e.Importance != nil {
		v := *e.Importance
		if v < 0 {
			v = 0
		}
		if v > 10 {
			v = 10
		}
		e.Importance = &v
	}
	return nil
}

// HasTag reports whether the entity carries tag, compared case-insensitively.
func (e *Entity) HasTag(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range e.Tags {
		if strings.ToLower(t) == tag {
			return true
		}
	}
	return false
}

// SearchableText concatenates the fields the lexical and fuzzy layers
// tokenize over: name, entity type, and every observation.
func (e *Entity) SearchableText() string {
	parts := make([]string, 0, len(e.Observations)+2)
	parts = append(parts, e.Name, e.EntityType)
	parts = append(parts, e.Observations...)
	return strings.Join(parts, " ")
}

// Relation is a directed, typed edge between two entities.
type Relation struct {
	From         string
	To           string
	RelationType string
	Weight       *float64
	Confidence   *float64
	Properties   RelationProperties
	Metadata     map[string]string
}

// RelationProperties carries the optional temporal/provenance fields.
type RelationProperties struct {
	ValidFrom     string
	ValidUntil    string
	Bidirectional bool
	Source        string
	Method        string
}

// Key returns the dedup key for the uniqueness triple (from, to, type).
func (r *Relation) Key() string {
	return r.From + "\x00" + r.To + "\x00" + r.RelationType
}

// KnowledgeGraph is the authoritative in-memory snapshot of entities and
// relations. It is owned by the storage backend; the retrieval core only
// ever holds a read-only snapshot or a mutable working copy handed out
// under the graph mutex.
type KnowledgeGraph struct {
	Entities  map[string]*Entity
	Relations []*Relation
}

// NewKnowledgeGraph returns an empty graph.
func NewKnowledgeGraph() *KnowledgeGraph {
	return &KnowledgeGraph{Entities: make(map[string]*Entity)}
}

// AddRelation enforces the no-dangling-edge invariant and dedups on the
// uniqueness triple.
func (g *KnowledgeGraph) AddRelation(r *Relation) error {
	if _, ok := g.Entities[r.From]; !ok {
		return errs.Validation("relation endpoint does not exist").WithDetail("from=" + r.From)
	}
	if _, ok := g.Entities[r.To]; !ok {
		return errs.Validation("relation endpoint does not exist").WithDetail("to=" + r.To)
	}
	key := r.Key()
	for _, existing := range g.Relations {
		if existing.Key() == key {
			return nil // silent dedup
		}
	}
	g.Relations = append(g.Relations, r)
	return nil
}

// RemoveRelation deletes a matching relation; a missing relation is a no-op.
func (g *KnowledgeGraph) RemoveRelation(from, to, relationType string) {
	key := from + "\x00" + to + "\x00" + relationType
	out := g.Relations[:0]
	for _, r := range g.Relations {
		if r.Key() != key {
			out = append(out, r)
		}
	}
	g.Relations = out
}

// Clone returns a deep-enough copy suitable for a mutable working copy:
// entity and relation pointers are copied, not aliased.
func (g *KnowledgeGraph) Clone() *KnowledgeGraph {
	clone := NewKnowledgeGraph()
	for name, e := range g.Entities {
		ec := *e
		ec.Observations = append([]string(nil), e.Observations...)
		ec.Tags = append([]string(nil), e.Tags...)
		clone.Entities[name] = &ec
	}
	for _, r := range g.Relations {
		rc := *r
		clone.Relations = append(clone.Relations, &rc)
	}
	return clone
}

// Store is the GraphStore contract consumed by the retrieval core (spec §6).
// Implementations are external collaborators; the retrieval core depends
// only on this interface.
type Store interface {
	LoadGraph(ctx context.Context) (*KnowledgeGraph, error)
	GetGraphForMutation(ctx context.Context) (*KnowledgeGraph, error)
	SaveGraph(ctx context.Context, g *KnowledgeGraph) error

	StoreEmbedding(ctx context.Context, name string, vec []float32, model string) error
	RemoveEmbedding(ctx context.Context, name string) error
	LoadAllEmbeddings(ctx context.Context) (map[string][]float32, error)
	ClearAllEmbeddings(ctx context.Context) error

	Subscribe(listener Listener) (unsubscribe func())
}

// EventType enumerates the events a Store emits per spec §6.
type EventType string

const (
	EventEntityCreated      EventType = "entity.created"
	EventEntityUpdated      EventType = "entity.updated"
	EventEntityDeleted      EventType = "entity.deleted"
	EventRelationCreated    EventType = "relation.created"
	EventRelationDeleted    EventType = "relation.deleted"
	EventObservationAdded   EventType = "observation.added"
	EventObservationDeleted EventType = "observation.deleted"
	EventGraphSaved         EventType = "graph.saved"
	EventGraphLoaded        EventType = "graph.loaded"
)

// Event is delivered synchronously, best-effort, to every subscribed Listener.
type Event struct {
	Type   EventType
	Name   string // entity or relation-from name, when applicable
	Entity *Entity
}

// Listener receives Store events. A Listener must not block for long;
// delivery is synchronous on the mutating goroutine.
type Listener func(Event)
