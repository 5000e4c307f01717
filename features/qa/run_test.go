package qa_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hackrx/backend/features/qa"
	"hackrx/backend/features/registry"
	"hackrx/backend/internal/adapter/local"
	"hackrx/backend/internal/document"
	"hackrx/backend/internal/index"
	"hackrx/backend/internal/retrieval"
	"hackrx/backend/internal/testutils"
	"hackrx/backend/internal/text"
	"hackrx/backend/internal/worker"
)

type pipeline struct {
	service   *qa.Service
	store     *index.MemoryStore
	registry  *registry.Service
	scheduler *worker.InProcessScheduler
	answerer  *MockAnswerer
}

func newPipeline(t *testing.T, background bool) *pipeline {
	t.Helper()

	store := index.NewMemoryStore()
	embedder := local.NewEmbedder(256)
	reg := registry.NewService(registry.NewMemoryRepo())
	indexer := worker.NewIndexer(embedder, store, reg, 8)
	scheduler := worker.NewInProcessScheduler(indexer)
	answerer := new(MockAnswerer)

	svc := qa.NewService(qa.Deps{
		Fetcher:   document.NewFetcher(t.TempDir(), 5*time.Second, 1<<20),
		Index:     store,
		Searcher:  retrieval.NewService(embedder, store, nil, nil),
		Answerer:  answerer,
		Builder:   indexer,
		Scheduler: scheduler,
		Recorder:  reg,
	}, qa.Options{
		Splitter:     text.Splitter{Size: 80, Overlap: 0},
		TopK:         1,
		PrefixChunks: 1,
		HashLength:   16,
		Background:   background,
	})

	return &pipeline{service: svc, store: store, registry: reg, scheduler: scheduler, answerer: answerer}
}

func policyServer(t *testing.T) *httptest.Server {
	t.Helper()
	doc := testutils.DOCXBytes(t,
		"Section 1. Room rent is capped at one percent of the sum insured per day.",
		"Section 2. A grace period of thirty days is allowed for premium payment.",
		"Section 3. Cataract surgery has a waiting period of two years.",
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/policy.docx" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_SyncPipeline_SecondSubmissionHitsCache(t *testing.T) {
	p := newPipeline(t, false)
	srv := policyServer(t)
	ctx := context.Background()
	docURL := srv.URL + "/policy.docx?sv=2023&sig=abc"
	question := "What grace period is allowed for premium payment?"

	p.answerer.On("Answer", mock.Anything, mock.MatchedBy(func(passages string) bool {
		return strings.Contains(passages, "grace period of thirty days")
	}), question).Return("Thirty days.", nil)

	first, err := p.service.Run(ctx, qa.Request{DocumentURL: docURL, Questions: []string{question}})
	require.NoError(t, err)
	assert.False(t, first.Meta.CacheHit)
	assert.Equal(t, qa.IndexStatusBuilt, first.Meta.IndexStatus)
	assert.Equal(t, 3, first.Meta.ChunkCount)
	assert.Equal(t, []string{"Thirty days."}, first.Answers)

	second, err := p.service.Run(ctx, qa.Request{DocumentURL: docURL, Questions: []string{question}})
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, first.Meta.DocHash, second.Meta.DocHash)
	assert.Equal(t, first.Answers, second.Answers)

	doc, err := p.registry.Get(ctx, first.Meta.DocHash)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusIndexed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 1, doc.HitCount)
}

func TestRun_BackgroundPipeline(t *testing.T) {
	p := newPipeline(t, true)
	srv := policyServer(t)
	ctx := context.Background()
	docURL := srv.URL + "/policy.docx"

	p.answerer.On("Answer", mock.Anything, mock.Anything, mock.Anything).Return("answer", nil)

	first, err := p.service.Run(ctx, qa.Request{DocumentURL: docURL, Questions: []string{"q1", "q2"}})
	require.NoError(t, err)
	assert.False(t, first.Meta.CacheHit)
	assert.Equal(t, qa.IndexStatusBuilding, first.Meta.IndexStatus)
	assert.Equal(t, []string{"answer", "answer"}, first.Answers)

	// Prefix context is only the first chunk
	p.answerer.AssertCalled(t, "Answer", mock.Anything, "Section 1. Room rent is capped at one percent of the sum insured per day.", "q1")

	p.scheduler.Wait()

	exists, err := p.store.Exists(ctx, first.Meta.DocHash)
	require.NoError(t, err)
	assert.True(t, exists)

	second, err := p.service.Run(ctx, qa.Request{DocumentURL: docURL, Questions: []string{"q1"}})
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, qa.IndexStatusReady, second.Meta.IndexStatus)
}

func TestRun_DownloadNotFound(t *testing.T) {
	p := newPipeline(t, true)
	srv := policyServer(t)

	_, err := p.service.Run(context.Background(), qa.Request{DocumentURL: srv.URL + "/missing.pdf", Questions: []string{"q"}})

	assert.ErrorIs(t, err, document.ErrDownloadFailed)
	p.answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything, mock.Anything)
}
