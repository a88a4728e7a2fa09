package builtin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DocumentSchema is the SQL DDL for the documents table. The embedding
// column requires the pgvector extension.
const DocumentSchema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS documents (
    id         BIGSERIAL PRIMARY KEY,
    org_id     TEXT NOT NULL DEFAULT '',
    title      TEXT NOT NULL,
    content    TEXT NOT NULL,
    framework  TEXT NOT NULL DEFAULT '',
    embedding  vector(1536),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(org_id);
CREATE INDEX IF NOT EXISTS idx_documents_framework ON documents(framework);
`

// Embedder turns text into an embedding vector for semantic search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DB is the database surface needed by [DocumentStore]; satisfied by
// *pgxpool.Pool and *pgx.Conn.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Document is one stored compliance document.
type Document struct {
	ID        int64   `json:"id"`
	OrgID     string  `json:"orgId,omitempty"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	Framework string  `json:"framework,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// DocumentStore persists and searches compliance documents in Postgres.
type DocumentStore struct {
	db DB
}

// NewDocumentStore creates a store on the given connection or pool.
func NewDocumentStore(db DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Migrate applies [DocumentSchema].
func (s *DocumentStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, DocumentSchema); err != nil {
		return fmt.Errorf("builtin: migrate documents: %w", err)
	}
	return nil
}

// Insert stores a document, embedding included when non-nil.
func (s *DocumentStore) Insert(ctx context.Context, doc Document, embedding []float32) (int64, error) {
	var vec any
	if embedding != nil {
		v := pgvector.NewVector(embedding)
		vec = v
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO documents (org_id, title, content, framework, embedding)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id`,
		doc.OrgID, doc.Title, doc.Content, doc.Framework, vec,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("builtin: insert document: %w", err)
	}
	return id, nil
}

// SearchSemantic returns the documents closest to the query embedding by
// cosine distance, scoped to the organisation when orgID is non-empty.
func (s *DocumentStore) SearchSemantic(ctx context.Context, embedding []float32, orgID string, limit int) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, title, content, framework,
		       1 - (embedding <=> $1) AS score
		FROM documents
		WHERE embedding IS NOT NULL AND ($2 = '' OR org_id = $2)
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("builtin: semantic search: %w", err)
	}
	return scanDocuments(rows)
}

// SearchKeyword is the fallback when no embedder is configured: a simple
// case-insensitive substring match over title and content.
func (s *DocumentStore) SearchKeyword(ctx context.Context, query, orgID string, limit int) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, org_id, title, content, framework, 0 AS score
		FROM documents
		WHERE (title ILIKE '%' || $1 || '%' OR content ILIKE '%' || $1 || '%')
		  AND ($2 = '' OR org_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`,
		query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("builtin: keyword search: %w", err)
	}
	return scanDocuments(rows)
}

// Get returns one document by id, scoped to the organisation when orgID is
// non-empty.
func (s *DocumentStore) Get(ctx context.Context, id int64, orgID string) (Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx, `
		SELECT id, org_id, title, content, framework
		FROM documents
		WHERE id = $1 AND ($2 = '' OR org_id = $2)`,
		id, orgID,
	).Scan(&doc.ID, &doc.OrgID, &doc.Title, &doc.Content, &doc.Framework)
	if err != nil {
		return Document{}, fmt.Errorf("builtin: get document %d: %w", id, err)
	}
	return doc, nil
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.OrgID, &doc.Title, &doc.Content, &doc.Framework, &doc.Score); err != nil {
			return nil, fmt.Errorf("builtin: scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("builtin: iterate documents: %w", err)
	}
	return docs, nil
}
