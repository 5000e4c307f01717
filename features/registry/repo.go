package registry

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"
)

type Repository interface {
	// Upsert inserts doc, or bumps hit_count when the hash is known. A known
	// document is promoted to indexed when doc.Status is indexed.
	Upsert(ctx context.Context, doc *Document) error
	MarkIndexed(ctx context.Context, hash string, chunkCount int) error
	MarkFailed(ctx context.Context, hash, reason string) error
	Get(ctx context.Context, hash string) (*Document, error)
	List(ctx context.Context, limit int) ([]Document, error)
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const documentColumns = `hash, source, filename, file_type, chunk_count, status, error, hit_count, created_at, indexed_at`

func (r *PostgresRepo) Upsert(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (hash, source, filename, file_type, chunk_count, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (hash) DO UPDATE SET
			hit_count = documents.hit_count + 1,
			status = CASE WHEN EXCLUDED.status = 'indexed' THEN 'indexed' ELSE documents.status END
		RETURNING chunk_count, status, hit_count, created_at`
	return r.db.QueryRowContext(ctx, query, doc.Hash, doc.Source, doc.Filename, doc.FileType, doc.ChunkCount, doc.Status).
		Scan(&doc.ChunkCount, &doc.Status, &doc.HitCount, &doc.CreatedAt)
}

func (r *PostgresRepo) MarkIndexed(ctx context.Context, hash string, chunkCount int) error {
	query := `UPDATE documents SET status = 'indexed', chunk_count = $2, error = '', indexed_at = NOW() WHERE hash = $1`
	return r.exec(ctx, query, hash, chunkCount)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, hash, reason string) error {
	query := `UPDATE documents SET status = 'failed', error = $2 WHERE hash = $1`
	return r.exec(ctx, query, hash, reason)
}

func (r *PostgresRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*Document, error) {
	d := &Document{}
	var indexedAt sql.NullTime
	if err := s.Scan(&d.Hash, &d.Source, &d.Filename, &d.FileType, &d.ChunkCount, &d.Status, &d.Error, &d.HitCount, &d.CreatedAt, &indexedAt); err != nil {
		return nil, err
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		d.IndexedAt = &t
	}
	return d, nil
}

func (r *PostgresRepo) Get(ctx context.Context, hash string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE hash = $1`
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM documents`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}

// MemoryRepo is the registry used when no database is configured. Contents
// are lost on restart.
type MemoryRepo struct {
	mu   sync.RWMutex
	docs map[string]*Document
	now  func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{docs: make(map[string]*Document), now: time.Now}
}

func (r *MemoryRepo) Upsert(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.docs[doc.Hash]; ok {
		existing.HitCount++
		if doc.Status == StatusIndexed {
			existing.Status = StatusIndexed
		}
		doc.ChunkCount = existing.ChunkCount
		doc.Status = existing.Status
		doc.HitCount = existing.HitCount
		doc.CreatedAt = existing.CreatedAt
		return nil
	}

	stored := *doc
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	stored.HitCount = 0
	stored.CreatedAt = r.now()
	r.docs[doc.Hash] = &stored

	doc.Status = stored.Status
	doc.HitCount = 0
	doc.CreatedAt = stored.CreatedAt
	return nil
}

func (r *MemoryRepo) MarkIndexed(_ context.Context, hash string, chunkCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[hash]
	if !ok {
		return ErrNotFound
	}
	t := r.now()
	d.Status = StatusIndexed
	d.ChunkCount = chunkCount
	d.Error = ""
	d.IndexedAt = &t
	return nil
}

func (r *MemoryRepo) MarkFailed(_ context.Context, hash, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.docs[hash]
	if !ok {
		return ErrNotFound
	}
	d.Status = StatusFailed
	d.Error = reason
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, hash string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepo) List(_ context.Context, limit int) ([]Document, error) {
	r.mu.RLock()
	docs := make([]Document, 0, len(r.docs))
	for _, d := range r.docs {
		docs = append(docs, *d)
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].Hash < docs[j].Hash
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (r *MemoryRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs), nil
}
