package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/account-service/internal/domain"
)

// AttachmentRepository persists attachment blobs keyed by storage key.
type AttachmentRepository interface {
	Put(ctx context.Context, attachment *domain.Attachment) error
	Get(ctx context.Context, key string) (*domain.Attachment, error)
	Delete(ctx context.Context, keys ...string) error
}

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository stores blobs in the Postgres attachments table.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Put(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (storage_key, content_type, data)
        VALUES ($1,$2,$3)
        ON CONFLICT (storage_key) DO UPDATE SET content_type=EXCLUDED.content_type, data=EXCLUDED.data
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		attachment.Key,
		attachment.ContentType,
		attachment.Data,
	).Scan(&attachment.CreatedAt)
}

func (r *attachmentRepository) Get(ctx context.Context, key string) (*domain.Attachment, error) {
	const query = `
        SELECT storage_key, content_type, data, created_at
        FROM attachments WHERE storage_key=$1`
	var attachment domain.Attachment
	if err := r.pool.QueryRow(ctx, query, key).Scan(
		&attachment.Key,
		&attachment.ContentType,
		&attachment.Data,
		&attachment.CreatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &attachment, nil
}

func (r *attachmentRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM attachments WHERE storage_key = ANY($1)`, keys)
	return err
}

// MemoryAttachmentRepository keeps blobs in process memory.
type MemoryAttachmentRepository struct {
	mu    sync.RWMutex
	blobs map[string]domain.Attachment
}

// NewMemoryAttachmentRepository returns an empty in-memory blob store.
func NewMemoryAttachmentRepository() *MemoryAttachmentRepository {
	return &MemoryAttachmentRepository{blobs: make(map[string]domain.Attachment)}
}

func (r *MemoryAttachmentRepository) Put(ctx context.Context, attachment *domain.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	attachment.CreatedAt = time.Now().UTC()
	stored := *attachment
	stored.Data = append([]byte(nil), attachment.Data...)

	r.mu.Lock()
	r.blobs[attachment.Key] = stored
	r.mu.Unlock()
	return nil
}

func (r *MemoryAttachmentRepository) Get(ctx context.Context, key string) (*domain.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	stored, ok := r.blobs[key]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	stored.Data = append([]byte(nil), stored.Data...)
	return &stored, nil
}

func (r *MemoryAttachmentRepository) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	for _, key := range keys {
		delete(r.blobs, key)
	}
	r.mu.Unlock()
	return nil
}

// Len reports how many blobs are held.
func (r *MemoryAttachmentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
