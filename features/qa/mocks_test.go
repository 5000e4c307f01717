package qa_test

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/stretchr/testify/mock"

	"hackrx/backend/features/qa"
	"hackrx/backend/features/registry"
	"hackrx/backend/internal/index"
	"hackrx/backend/internal/worker"
)

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) Download(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *MockFetcher) SaveUpload(filename string, r io.Reader) (string, error) {
	args := m.Called(filename, r)
	return args.String(0), args.Error(1)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Exists(ctx context.Context, docHash string) (bool, error) {
	args := m.Called(ctx, docHash)
	return args.Bool(0), args.Error(1)
}

// MockCountingIndex also reports chunk counts, like the disk and weaviate stores.
type MockCountingIndex struct{ MockIndex }

func (m *MockCountingIndex) CountChunks(ctx context.Context, docHash string) (int, error) {
	args := m.Called(ctx, docHash)
	return args.Int(0), args.Error(1)
}

type MockSearcher struct{ mock.Mock }

func (m *MockSearcher) Search(ctx context.Context, docHash, question string, k int) ([]index.Result, error) {
	args := m.Called(ctx, docHash, question, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]index.Result), args.Error(1)
}

type MockAnswerer struct{ mock.Mock }

func (m *MockAnswerer) Answer(ctx context.Context, passages, question string) (string, error) {
	args := m.Called(ctx, passages, question)
	return args.String(0), args.Error(1)
}

type MockBuilder struct{ mock.Mock }

func (m *MockBuilder) Build(ctx context.Context, task worker.IndexTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type MockScheduler struct{ mock.Mock }

func (m *MockScheduler) Schedule(ctx context.Context, task worker.IndexTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type MockRecorder struct{ mock.Mock }

func (m *MockRecorder) Record(ctx context.Context, doc registry.Document) (*registry.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.Document), args.Error(1)
}

type MockRunner struct{ mock.Mock }

func (m *MockRunner) Run(ctx context.Context, req qa.Request) (*qa.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qa.Response), args.Error(1)
}

func fileExists(path string) bool {
	_, err := os.Stat(filepath.Clean(path))
	return err == nil
}
