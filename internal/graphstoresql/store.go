// Package graphstoresql provides a reference, pure-Go graphmodel.Store
// implementation backed by SQLite (spec §3/§6), used by integration
// tests and the cmd/graphmemd demo binary. Real deployments may swap in
// any other Store implementation — this package exists so the
// retrieval core has something concrete to run against end to end.
package graphstoresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/graphmodel"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS entities (
	name             TEXT PRIMARY KEY,
	entity_type      TEXT NOT NULL DEFAULT '',
	observations     TEXT NOT NULL DEFAULT '[]',
	tags             TEXT NOT NULL DEFAULT '[]',
	importance       REAL,
	parent_id        TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMP NOT NULL,
	last_modified    TIMESTAMP NOT NULL,
	last_accessed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS relations (
	from_name     TEXT NOT NULL,
	to_name       TEXT NOT NULL,
	relation_type TEXT NOT NULL,
	weight        REAL,
	confidence    REAL,
	valid_from    TEXT NOT NULL DEFAULT '',
	valid_until   TEXT NOT NULL DEFAULT '',
	bidirectional INTEGER NOT NULL DEFAULT 0,
	source        TEXT NOT NULL DEFAULT '',
	method        TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (from_name, to_name, relation_type)
);

CREATE TABLE IF NOT EXISTS embeddings (
	name  TEXT PRIMARY KEY,
	model TEXT NOT NULL,
	dim   INTEGER NOT NULL,
	vec   BLOB NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// Store is a SQLite-backed graphmodel.Store. A single connection is kept
// open (SQLite has no useful notion of concurrent writers) and every
// mutation runs inside a transaction so a failed SaveGraph never leaves
// a half-written graph on disk (spec §6 "no partial write observable").
type Store struct {
	db     *sql.DB
	bus    *graphmodel.EventBus
	logger *slog.Logger
}

var _ graphmodel.Store = (*Store)(nil)

// Open creates or opens a SQLite database at path (":memory:" for an
// ephemeral store, used by tests) and ensures the schema exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, bus: graphmodel.NewEventBus(logger), logger: logger}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Subscribe registers listener for every event this store emits.
func (s *Store) Subscribe(listener graphmodel.Listener) func() {
	return s.bus.Subscribe(listener)
}

type entityRow struct {
	Name           string
	EntityType     string
	Observations   string
	Tags           string
	Importance     sql.NullFloat64
	ParentID       string
	CreatedAt      time.Time
	LastModified   time.Time
	LastAccessedAt time.Time
}

func scanEntity(row entityRow) (*graphmodel.Entity, error) {
	var obs, tags []string
	if err := json.Unmarshal([]byte(row.Observations), &obs); err != nil {
		return nil, fmt.Errorf("decode observations for %q: %w", row.Name, err)
	}
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return nil, fmt.Errorf("decode tags for %q: %w", row.Name, err)
	}
	e := &graphmodel.Entity{
		Name:           row.Name,
		EntityType:     row.EntityType,
		Observations:   obs,
		Tags:           tags,
		ParentID:       row.ParentID,
		CreatedAt:      row.CreatedAt,
		LastModified:   row.LastModified,
		LastAccessedAt: row.LastAccessedAt,
	}
	if row.Importance.Valid {
		v := row.Importance.Float64
		e.Importance = &v
	}
	return e, nil
}

// LoadGraph returns a snapshot of the full graph. Callers must treat the
// result as read-only; use GetGraphForMutation for a copy intended for
// editing.
func (s *Store) LoadGraph(ctx context.Context) (*graphmodel.KnowledgeGraph, error) {
	g := graphmodel.NewKnowledgeGraph()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, entity_type, observations, tags, importance, parent_id,
		       created_at, last_modified, last_accessed_at
		FROM entities`)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "query entities", err)
	}
	for rows.Next() {
		var r entityRow
		if err := rows.Scan(&r.Name, &r.EntityType, &r.Observations, &r.Tags, &r.Importance,
			&r.ParentID, &r.CreatedAt, &r.LastModified, &r.LastAccessedAt); err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.KindStorageUnavailable, "scan entity row", err)
		}
		e, err := scanEntity(r)
		if err != nil {
			rows.Close()
			return nil, errs.Wrap(errs.KindStorageUnavailable, "decode entity row", err)
		}
		g.Entities[e.Name] = e
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errs.Wrap(errs.KindStorageUnavailable, "iterate entities", err)
	}
	rows.Close()

	relRows, err := s.db.QueryContext(ctx, `
		SELECT from_name, to_name, relation_type, weight, confidence,
		       valid_from, valid_until, bidirectional, source, method, metadata
		FROM relations`)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "query relations", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var r graphmodel.Relation
		var weight, confidence sql.NullFloat64
		var bidirectional int
		var metadataJSON string
		if err := relRows.Scan(&r.From, &r.To, &r.RelationType, &weight, &confidence,
			&r.Properties.ValidFrom, &r.Properties.ValidUntil, &bidirectional,
			&r.Properties.Source, &r.Properties.Method, &metadataJSON); err != nil {
			return nil, errs.Wrap(errs.KindStorageUnavailable, "scan relation row", err)
		}
		if weight.Valid {
			v := weight.Float64
			r.Weight = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			r.Confidence = &v
		}
		r.Properties.Bidirectional = bidirectional != 0
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			return nil, errs.Wrap(errs.KindStorageUnavailable, "decode relation metadata", err)
		}
		rc := r
		g.Relations = append(g.Relations, &rc)
	}
	if err := relRows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "iterate relations", err)
	}

	s.bus.Publish(graphmodel.Event{Type: graphmodel.EventGraphLoaded})
	return g, nil
}

// GetGraphForMutation returns a graph safe to edit and later pass to
// SaveGraph. It is simply another full load: this store has no
// separate read-only/mutable representation.
func (s *Store) GetGraphForMutation(ctx context.Context) (*graphmodel.KnowledgeGraph, error) {
	return s.LoadGraph(ctx)
}

// SaveGraph replaces the persisted graph with g inside a single
// transaction, so a mid-write failure leaves the previous graph intact
// rather than a half-written one (spec §6). Events are diffed against
// the prior persisted state and published after a successful commit.
func (s *Store) SaveGraph(ctx context.Context, g *graphmodel.KnowledgeGraph) error {
	prior, err := s.LoadGraph(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "begin save transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entities"); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "clear entities", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM relations"); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "clear relations", err)
	}

	entityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (name, entity_type, observations, tags, importance,
			parent_id, created_at, last_modified, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "prepare entity insert", err)
	}
	defer entityStmt.Close()

	for _, e := range g.Entities {
		obsJSON, err := json.Marshal(e.Observations)
		if err != nil {
			return errs.Wrap(errs.KindValidation, "encode observations", err)
		}
		tagsJSON, err := json.Marshal(e.Tags)
		if err != nil {
			return errs.Wrap(errs.KindValidation, "encode tags", err)
		}
		var importance sql.NullFloat64
		if e.Importance != nil {
			importance = sql.NullFloat64{Float64: *e.Importance, Valid: true}
		}
		if _, err := entityStmt.ExecContext(ctx, e.Name, e.EntityType, string(obsJSON), string(tagsJSON),
			importance, e.ParentID, e.CreatedAt, e.LastModified, e.LastAccessedAt); err != nil {
			return errs.Wrap(errs.KindStorageUnavailable, "insert entity", err)
		}
	}

	relStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relations (from_name, to_name, relation_type, weight, confidence,
			valid_from, valid_until, bidirectional, source, method, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "prepare relation insert", err)
	}
	defer relStmt.Close()

	for _, r := range g.Relations {
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return errs.Wrap(errs.KindValidation, "encode relation metadata", err)
		}
		var weight, confidence sql.NullFloat64
		if r.Weight != nil {
			weight = sql.NullFloat64{Float64: *r.Weight, Valid: true}
		}
		if r.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
		}
		bidirectional := 0
		if r.Properties.Bidirectional {
			bidirectional = 1
		}
		if _, err := relStmt.ExecContext(ctx, r.From, r.To, r.RelationType, weight, confidence,
			r.Properties.ValidFrom, r.Properties.ValidUntil, bidirectional,
			r.Properties.Source, r.Properties.Method, string(metadataJSON)); err != nil {
			return errs.Wrap(errs.KindStorageUnavailable, "insert relation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "commit save transaction", err)
	}

	s.publishDiff(prior, g)
	s.bus.Publish(graphmodel.Event{Type: graphmodel.EventGraphSaved})
	return nil
}

// publishDiff compares the prior and new graph and emits per-entity
// created/updated/deleted events. Best-effort: publication failures
// (a panicking listener) are already absorbed inside EventBus.
func (s *Store) publishDiff(prior, next *graphmodel.KnowledgeGraph) {
	for name, e := range next.Entities {
		if old, existed := prior.Entities[name]; !existed {
			s.bus.Publish(graphmodel.Event{Type: graphmodel.EventEntityCreated, Name: name, Entity: e})
		} else if !entitiesEqual(old, e) {
			s.bus.Publish(graphmodel.Event{Type: graphmodel.EventEntityUpdated, Name: name, Entity: e})
		}
	}
	for name := range prior.Entities {
		if _, ok := next.Entities[name]; !ok {
			s.bus.Publish(graphmodel.Event{Type: graphmodel.EventEntityDeleted, Name: name})
		}
	}
}

func entitiesEqual(a, b *graphmodel.Entity) bool {
	if a.EntityType != b.EntityType || a.ParentID != b.ParentID || len(a.Observations) != len(b.Observations) || len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Observations {
		if a.Observations[i] != b.Observations[i] {
			return false
		}
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	ai, bi := 0.0, 0.0
	if a.Importance != nil {
		ai = *a.Importance
	}
	if b.Importance != nil {
		bi = *b.Importance
	}
	return math.Abs(ai-bi) < 1e-9
}

// StoreEmbedding upserts name's dense vector, encoded as little-endian
// float32 components.
func (s *Store) StoreEmbedding(ctx context.Context, name string, vec []float32, model string) error {
	buf := encodeVector(vec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (name, model, dim, vec) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET model = excluded.model, dim = excluded.dim, vec = excluded.vec`,
		name, model, len(vec), buf)
	if err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "store embedding", err)
	}
	return nil
}

// RemoveEmbedding deletes name's embedding, if present.
func (s *Store) RemoveEmbedding(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings WHERE name = ?", name); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "remove embedding", err)
	}
	return nil
}

// LoadAllEmbeddings returns every persisted embedding keyed by entity name.
func (s *Store) LoadAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, dim, vec FROM embeddings")
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "query embeddings", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var name string
		var dim int
		var buf []byte
		if err := rows.Scan(&name, &dim, &buf); err != nil {
			return nil, errs.Wrap(errs.KindStorageUnavailable, "scan embedding row", err)
		}
		out[name] = decodeVector(buf, dim)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindStorageUnavailable, "iterate embeddings", err)
	}
	return out, nil
}

// ClearAllEmbeddings deletes every persisted embedding.
func (s *Store) ClearAllEmbeddings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM embeddings"); err != nil {
		return errs.Wrap(errs.KindStorageUnavailable, "clear embeddings", err)
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte, dim int) []float32 {
	vec := make([]float32, dim)
	for i := 0; i < dim && (i*4+4) <= len(buf); i++ {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
