package worker_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"hackrx/backend/internal/index"
	"hackrx/backend/internal/worker"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockIndexStore struct{ mock.Mock }

func (m *MockIndexStore) Exists(ctx context.Context, docHash string) (bool, error) {
	args := m.Called(ctx, docHash)
	return args.Bool(0), args.Error(1)
}

func (m *MockIndexStore) Save(ctx context.Context, docHash string, entries []index.Entry) error {
	args := m.Called(ctx, docHash, entries)
	return args.Error(0)
}

type MockUpdater struct{ mock.Mock }

func (m *MockUpdater) MarkIndexed(ctx context.Context, hash string, chunkCount int) error {
	args := m.Called(ctx, hash, chunkCount)
	return args.Error(0)
}

func (m *MockUpdater) MarkFailed(ctx context.Context, hash, reason string) error {
	args := m.Called(ctx, hash, reason)
	return args.Error(0)
}

type MockBuilder struct{ mock.Mock }

func (m *MockBuilder) Build(ctx context.Context, task worker.IndexTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

// blockingBuilder holds every build until release is closed.
type blockingBuilder struct {
	release chan struct{}

	mu    sync.Mutex
	calls []worker.IndexTask
}

func (b *blockingBuilder) Build(ctx context.Context, task worker.IndexTask) error {
	b.mu.Lock()
	b.calls = append(b.calls, task)
	b.mu.Unlock()
	<-b.release
	return nil
}

func (b *blockingBuilder) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}
