package registry

import (
	"context"
)

const DefaultListLimit = 100

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record notes a submission of doc. It returns the stored state, including
// how many earlier submissions shared the hash.
func (s *Service) Record(ctx context.Context, doc Document) (*Document, error) {
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if err := s.repo.Upsert(ctx, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Service) MarkIndexed(ctx context.Context, hash string, chunkCount int) error {
	return s.repo.MarkIndexed(ctx, hash, chunkCount)
}

func (s *Service) MarkFailed(ctx context.Context, hash, reason string) error {
	return s.repo.MarkFailed(ctx, hash, reason)
}

func (s *Service) Get(ctx context.Context, hash string) (*Document, error) {
	return s.repo.Get(ctx, hash)
}

func (s *Service) List(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.repo.List(ctx, limit)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
