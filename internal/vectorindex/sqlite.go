package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrCollectionNotFound is returned when a named collection has never been created.
var ErrCollectionNotFound = errors.New("vectorindex: collection not found")

// ErrDimensionMismatch is returned when query and stored embeddings differ in length.
var ErrDimensionMismatch = errors.New("vectorindex: embedding dimension mismatch")

// Document is a stored chunk with its embedding.
type Document struct {
	ID        int64
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Index is an embedding store on SQLite. Similarity is computed in process.
type Index struct {
	db *sql.DB
}

// Open connects to the SQLite database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Index, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("vectorindex: dsn must not be empty")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vectorindex: ping database: %w", err)
	}
	idx := &Index{db: db}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vectorindex: initialize schema: %w", err)
	}
	return idx, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS collections (
        name TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS documents (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        collection TEXT NOT NULL,
        content TEXT NOT NULL,
        metadata_json TEXT NOT NULL DEFAULT '{}',
        embedding_json TEXT NOT NULL,
        FOREIGN KEY (collection) REFERENCES collections (name)
    );

    CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection);
    `
	_, err := i.db.ExecContext(ctx, schema)
	return err
}

// Collection returns an existing collection, or ErrCollectionNotFound.
func (i *Index) Collection(ctx context.Context, name string) (*Collection, error) {
	var found string
	err := i.db.QueryRowContext(ctx, "SELECT name FROM collections WHERE name = ?", name).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("vectorindex: lookup collection: %w", err)
	}
	return &Collection{db: i.db, name: found}, nil
}

// EnsureCollection creates the collection if it does not exist.
func (i *Index) EnsureCollection(ctx context.Context, name string) (*Collection, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("vectorindex: collection name must not be empty")
	}
	_, err := i.db.ExecContext(ctx,
		"INSERT INTO collections (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("vectorindex: create collection: %w", err)
	}
	return &Collection{db: i.db, name: name}, nil
}

// Collection is a named set of embedded documents.
type Collection struct {
	db   *sql.DB
	name string
}

func (c *Collection) Name() string {
	return c.name
}

// Add stores docs in a single transaction.
func (c *Collection) Add(ctx context.Context, docs []Document) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorindex: begin add: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO documents (collection, content, metadata_json, embedding_json) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("vectorindex: prepare add: %w", err)
	}
	defer stmt.Close()

	for n, d := range docs {
		if len(d.Embedding) == 0 {
			return fmt.Errorf("vectorindex: document %d has no embedding", n)
		}
		embeddingJSON, err := json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("vectorindex: marshal embedding: %w", err)
		}
		metadata := d.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("vectorindex: marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.name, d.Content, string(metadataJSON), string(embeddingJSON)); err != nil {
			return fmt.Errorf("vectorindex: insert document: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vectorindex: commit add: %w", err)
	}
	return nil
}

// Clear removes every document in the collection.
func (c *Collection) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", c.name); err != nil {
		return fmt.Errorf("vectorindex: clear collection: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorindex: count documents: %w", err)
	}
	return n, nil
}

// Documents loads every document in insertion order. Rows whose embedding
// cannot be decoded are skipped.
func (c *Collection) Documents(ctx context.Context) ([]Document, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, content, metadata_json, embedding_json FROM documents WHERE collection = ? ORDER BY id", c.name)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d                           Document
			metadataJSON, embeddingJSON string
		)
		if err := rows.Scan(&d.ID, &d.Content, &metadataJSON, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("vectorindex: scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &d.Embedding); err != nil || len(d.Embedding) == 0 {
			slog.Warn("skipping document with unreadable embedding", "collection", c.name, "id", d.ID, "err", err)
			continue
		}
		if err := json.Unmarshal([]byte(metadataJSON), &d.Metadata); err != nil {
			d.Metadata = map[string]any{}
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorindex: iterate documents: %w", err)
	}
	return docs, nil
}

// Dimension returns the embedding length of the first stored document.
// ok is false when the collection is empty.
func (c *Collection) Dimension(ctx context.Context) (dim int, ok bool, err error) {
	docs, err := c.Documents(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(docs) == 0 {
		return 0, false, nil
	}
	return len(docs[0].Embedding), true, nil
}

// SimilaritySearch returns the k documents closest to query. A non-empty
// collection with no document matching the query dimension is an error.
func (c *Collection) SimilaritySearch(ctx context.Context, query []float32, k int) ([]Scored, error) {
	docs, err := c.Documents(ctx)
	if err != nil {
		return nil, err
	}
	ranked := rankBySimilarity(query, docs)
	if len(docs) > 0 && len(ranked) == 0 {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q has %d",
			ErrDimensionMismatch, len(query), c.name, len(docs[0].Embedding))
	}
	if k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// MaxMarginalRelevanceSearch takes the fetchK closest documents and re-ranks
// them down to k with MaximalMarginalRelevance.
func (c *Collection) MaxMarginalRelevanceSearch(ctx context.Context, query []float32, k, fetchK int, lambda float32) ([]Scored, error) {
	if fetchK < k {
		fetchK = k
	}
	candidates, err := c.SimilaritySearch(ctx, query, fetchK)
	if err != nil {
		return nil, err
	}
	return MaximalMarginalRelevance(candidates, k, lambda), nil
}
