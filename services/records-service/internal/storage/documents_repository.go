package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/docslot/docslot/libs/db"
)

const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
)

// Document is a medical record file owned by one patient account. The blob
// itself lives in object storage under ObjectKey; this row tracks metadata
// and upload state. OwnerID is the account id from the gateway headers.
type Document struct {
	ID          string
	OwnerID     string
	FileName    string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
	Status      string
	CreatedAt   time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, d Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, owner_id, file_name, object_key, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.OwnerID, d.FileName, d.ObjectKey, d.ContentType, d.SizeBytes, d.Status)
	return err
}

// Get scopes by owner so one patient can never address another's document.
func (r *Repository) Get(ctx context.Context, id, ownerID string) (Document, error) {
	var d Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, file_name, object_key, content_type, size_bytes, status, created_at
		FROM documents
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID).Scan(&d.ID, &d.OwnerID, &d.FileName, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.Status, &d.CreatedAt)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, owner_id, file_name, object_key, content_type, size_bytes, status, created_at
		FROM documents
		WHERE owner_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, ownerID, StatusUploaded, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.FileName, &d.ObjectKey, &d.ContentType, &d.SizeBytes, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarkUploaded flips a pending document to uploaded and records the size the
// blob store reports.
func (r *Repository) MarkUploaded(ctx context.Context, id, ownerID string, sizeBytes int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents
		SET status = $3, size_bytes = $4, updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND status = $5
	`, id, ownerID, StatusUploaded, sizeBytes, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id, ownerID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func IsNotFound(err error) bool {
	return err == pgx.ErrNoRows
}
