package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DocumentStatus is the document ingestion lifecycle.
type DocumentStatus string

const (
	DocStatusPending    DocumentStatus = "pending"
	DocStatusProcessing DocumentStatus = "processing"
	DocStatusCompleted  DocumentStatus = "completed"
	DocStatusFailed     DocumentStatus = "failed"
)

// Document is one processed source artifact.
type Document struct {
	ID               string
	Name             string
	DocType          string
	PermissionLevel  string
	ProjectID        string
	SourcePath       string
	Status           DocumentStatus
	TotalChunks      int
	VectorCollection string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewChunk is one chunk to persist during (re-)indexing.
type NewChunk struct {
	ID               string
	ChunkIndex       int
	Text             string
	TokenCount       int
	PageNum          int
	VectorID         string
	VectorCollection string
}

// UpsertDocument inserts or refreshes a document row, resetting its status
// for a fresh ingestion run.
func (p *Pool) UpsertDocument(ctx context.Context, d Document) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO documents (id, name, doc_type, permission_level, project_id, source_path,
		                       status, total_chunks, vector_collection, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,now(),now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			doc_type = EXCLUDED.doc_type,
			permission_level = EXCLUDED.permission_level,
			project_id = EXCLUDED.project_id,
			source_path = EXCLUDED.source_path,
			status = EXCLUDED.status,
			vector_collection = EXCLUDED.vector_collection,
			updated_at = now()
	`, d.ID, d.Name, d.DocType, d.PermissionLevel, nullableText(d.ProjectID), d.SourcePath,
		string(d.Status), d.VectorCollection)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.ID, err)
	}
	return nil
}

// SetDocumentStatus transitions a document's status and chunk count.
func (p *Pool) SetDocumentStatus(ctx context.Context, docID string, status DocumentStatus, totalChunks int) error {
	_, err := p.db.Exec(ctx, `
		UPDATE documents SET status = $2, total_chunks = $3, updated_at = now() WHERE id = $1
	`, docID, string(status), totalChunks)
	if err != nil {
		return fmt.Errorf("set document %s status: %w", docID, err)
	}
	return nil
}

// ReplaceChunks atomically swaps a document's chunk set: the old rows are
// deleted and the new ones inserted inside one transaction, so a reader
// never observes a mix of the two generations.
func (p *Pool) ReplaceChunks(ctx context.Context, docID string, chunks []NewChunk) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin replace chunks for %s: %w", docID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("delete old chunks for %s: %w", docID, err)
	}
	for _, c := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, text, token_count, page_num,
			                    vector_id, vector_collection)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, c.ID, docID, c.ChunkIndex, c.Text, c.TokenCount, c.PageNum,
			nullableText(c.VectorID), nullableText(c.VectorCollection)); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace chunks for %s: %w", docID, err)
	}
	return nil
}

// DeleteDocument removes a document row and its chunks. Vector and graph
// cascades are the ingestion service's responsibility; this only covers
// the relational side.
func (p *Pool) DeleteDocument(ctx context.Context, docID string) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin delete document %s: %w", docID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", docID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID); err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete document %s: %w", docID, err)
	}
	return nil
}

// GetDocument reads one document row.
func (p *Pool) GetDocument(ctx context.Context, docID string) (Document, error) {
	row := p.db.QueryRow(ctx, `
		SELECT id, name, doc_type, permission_level, COALESCE(project_id, ''), source_path,
		       status, total_chunks, vector_collection, created_at, updated_at
		FROM documents WHERE id = $1
	`, docID)
	var d Document
	var status string
	if err := row.Scan(&d.ID, &d.Name, &d.DocType, &d.PermissionLevel, &d.ProjectID, &d.SourcePath,
		&status, &d.TotalChunks, &d.VectorCollection, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", docID, err)
	}
	d.Status = DocumentStatus(status)
	return d, nil
}

// ListChunksByDocument returns a document's chunks in index order, the
// corpus feed for a lexical rebuild.
func (p *Pool) ListChunksByDocument(ctx context.Context, docID string) ([]Chunk, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, document_id, chunk_index, text, token_count, page_num
		FROM chunks WHERE document_id = $1 ORDER BY chunk_index
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", docID, err)
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.TokenCount, &c.PageNum); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
