// Package postgres provides a PostgreSQL implementation of docstore.Store.
// Documents are rows of the documents table with their fields held as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dodocare/dodocare/internal/docstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements docstore.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL document repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// All returns every document of a collection.
func (r *Repository) All(ctx context.Context, collection string) ([]docstore.Document, error) {
	query := `
		SELECT id, fields, created_at, updated_at
		FROM documents
		WHERE collection = $1
	`
	rows, err := r.db.Query(ctx, query, collection)
	if err != nil {
		return nil, classify(fmt.Sprintf("list %s", collection), err)
	}
	return scanDocuments(collection, rows)
}

// Get returns a single document.
func (r *Repository) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	query := `
		SELECT id, fields, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var (
		doc docstore.Document
		raw []byte
	)
	err := r.db.QueryRow(ctx, query, collection, id).Scan(&doc.ID, &raw, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, classify(fmt.Sprintf("get %s/%s", collection, id), err)
	}

	if err := json.Unmarshal(raw, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

// Create stores a new document under a generated id.
func (r *Repository) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.New().String()
	raw, err := encode(fields)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.Exec(ctx, query, collection, id, raw); err != nil {
		return "", classify(fmt.Sprintf("create %s", collection), err)
	}
	return id, nil
}

// Put creates or replaces a document.
func (r *Repository) Put(ctx context.Context, collection, id string, fields docstore.Fields) error {
	raw, err := encode(fields)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (collection, id, fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET fields = EXCLUDED.fields, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, collection, id, raw); err != nil {
		return classify(fmt.Sprintf("put %s/%s", collection, id), err)
	}
	return nil
}

// Update merges fields into an existing document.
func (r *Repository) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	raw, err := encode(fields)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET fields = fields || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`
	result, err := r.db.Exec(ctx, query, collection, id, raw)
	if err != nil {
		return classify(fmt.Sprintf("update %s/%s", collection, id), err)
	}
	if result.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (r *Repository) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`
	result, err := r.db.Exec(ctx, query, collection, id)
	if err != nil {
		return classify(fmt.Sprintf("delete %s/%s", collection, id), err)
	}
	if result.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// OrderedBy returns the documents of a collection sorted by the text value of field.
func (r *Repository) OrderedBy(ctx context.Context, collection, field string, descending bool) ([]docstore.Document, error) {
	direction := "ASC"
	if descending {
		direction = "DESC"
	}

	query := `
		SELECT id, fields, created_at, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY COALESCE(fields->>$2, '') COLLATE "C" ` + direction + `, id COLLATE "C" ASC
	`
	rows, err := r.db.Query(ctx, query, collection, field)
	if err != nil {
		return nil, classify(fmt.Sprintf("list %s by %s", collection, field), err)
	}
	return scanDocuments(collection, rows)
}

func scanDocuments(collection string, rows pgx.Rows) ([]docstore.Document, error) {
	defer rows.Close()

	docs := make([]docstore.Document, 0)
	for rows.Next() {
		var (
			doc docstore.Document
			raw []byte
		)
		if err := rows.Scan(&doc.ID, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, classify(fmt.Sprintf("scan %s", collection), err)
		}
		if err := json.Unmarshal(raw, &doc.Fields); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, doc.ID, err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Sprintf("iterate %s", collection), err)
	}
	return docs, nil
}

func encode(fields docstore.Fields) ([]byte, error) {
	if fields == nil {
		fields = docstore.Fields{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return raw, nil
}

// classify marks everything that is not an error reported by the server itself
// as docstore.ErrUnavailable.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, docstore.ErrUnavailable, err)
}
