package qa

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hackrx/backend/features/registry"
	"hackrx/backend/internal/document"
	"hackrx/backend/internal/index"
	"hackrx/backend/internal/retrieval"
	"hackrx/backend/internal/text"
	"hackrx/backend/internal/worker"
)

type Fetcher interface {
	Download(ctx context.Context, url string) (string, error)
	SaveUpload(filename string, r io.Reader) (string, error)
}

type IndexChecker interface {
	Exists(ctx context.Context, docHash string) (bool, error)
}

// ChunkCounter is implemented by stores that can report the size of a saved
// index.
type ChunkCounter interface {
	CountChunks(ctx context.Context, docHash string) (int, error)
}

type Searcher interface {
	Search(ctx context.Context, docHash, question string, k int) ([]index.Result, error)
}

type Answerer interface {
	Answer(ctx context.Context, passages, question string) (string, error)
}

type Recorder interface {
	Record(ctx context.Context, doc registry.Document) (*registry.Document, error)
}

// Options tunes the pipeline. Zero values fall back to the service defaults.
type Options struct {
	Splitter     text.Splitter
	TopK         int
	PrefixChunks int
	HashLength   int
	// Background answers index misses from the leading chunks and builds
	// the index off the request path.
	Background bool
}

type Deps struct {
	Fetcher   Fetcher
	Index     IndexChecker
	Searcher  Searcher
	Answerer  Answerer
	Builder   worker.Builder
	Scheduler worker.Scheduler
	Recorder  Recorder
}

type Service struct {
	deps Deps
	opts Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.Splitter.Size <= 0 {
		opts.Splitter = text.Splitter{Size: 500, Overlap: 50}
	}
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.PrefixChunks <= 0 {
		opts.PrefixChunks = 3
	}
	if opts.HashLength <= 0 {
		opts.HashLength = 16
	}
	return &Service{deps: deps, opts: opts}
}

// Run answers every question of req in order.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if len(req.Questions) == 0 {
		return nil, ErrInvalidQuestions
	}

	path, source, err := s.acquire(ctx, req)
	if err != nil {
		return nil, err
	}
	defer document.Remove(path)

	fileType, err := document.CheckSupported(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path was created by the fetcher
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	hash := document.Hash(data, s.opts.HashLength)

	log := slog.With("doc_hash", hash, "questions", len(req.Questions))

	hit, err := s.deps.Index.Exists(ctx, hash)
	if err != nil {
		log.WarnContext(ctx, "index lookup failed, treating as miss", "error", err)
		hit = false
	}

	rec := s.record(ctx, registry.Document{
		Hash:     hash,
		Source:   source,
		Filename: req.Filename,
		FileType: fileType,
	}, hit)

	var answers []string
	meta := Meta{DocHash: hash, CacheHit: hit}

	if hit {
		log.InfoContext(ctx, "index cache hit")
		meta.IndexStatus = IndexStatusReady
		meta.ChunkCount = s.chunkCount(ctx, hash, rec)
		answers, err = s.answerFromIndex(ctx, hash, req.Questions)
		if err != nil {
			return nil, err
		}
	} else {
		content, err := document.Extract(path)
		if err != nil {
			return nil, fmt.Errorf("extract text: %w", err)
		}
		chunks := s.opts.Splitter.Split(content)
		meta.ChunkCount = len(chunks)
		log.InfoContext(ctx, "index cache miss", "chunks", len(chunks), "background", s.opts.Background)

		task := worker.IndexTask{DocHash: hash, Source: source, Chunks: chunks}

		switch {
		case len(chunks) == 0:
			meta.IndexStatus = IndexStatusEmpty
			answers = s.answerFromPassages(ctx, nil, req.Questions)

		case s.opts.Background:
			if err := s.deps.Scheduler.Schedule(ctx, task); err != nil {
				log.WarnContext(ctx, "failed to schedule index build", "error", err)
			}
			meta.IndexStatus = IndexStatusBuilding
			answers = s.answerFromPassages(ctx, retrieval.Prefix(chunks, s.opts.PrefixChunks), req.Questions)

		default:
			if err := s.deps.Builder.Build(ctx, task); err != nil {
				return nil, err
			}
			meta.IndexStatus = IndexStatusBuilt
			answers, err = s.answerFromIndex(ctx, hash, req.Questions)
			if err != nil {
				return nil, err
			}
		}
	}

	meta.DurationMs = time.Since(start).Milliseconds()
	log.InfoContext(ctx, "questions answered", "cache_hit", hit, "index_status", meta.IndexStatus, "duration_ms", meta.DurationMs)

	return &Response{Answers: answers, Meta: meta}, nil
}

func (s *Service) acquire(ctx context.Context, req Request) (path, source string, err error) {
	if req.File != nil {
		name := req.Filename
		if name == "" {
			name = "upload"
		}
		path, err = s.deps.Fetcher.SaveUpload(name, req.File)
		return path, "upload:" + filepath.Base(name), err
	}

	url := strings.TrimSpace(req.DocumentURL)
	if url == "" {
		return "", "", ErrMissingDocument
	}
	path, err = s.deps.Fetcher.Download(ctx, url)
	return path, url, err
}

// record notes the submission in the registry. Registry failures never fail
// a request.
func (s *Service) record(ctx context.Context, doc registry.Document, hit bool) *registry.Document {
	if s.deps.Recorder == nil {
		return nil
	}
	if hit {
		doc.Status = registry.StatusIndexed
	}
	rec, err := s.deps.Recorder.Record(ctx, doc)
	if err != nil {
		slog.WarnContext(ctx, "failed to record document", "doc_hash", doc.Hash, "error", err)
		return nil
	}
	return rec
}

// chunkCount prefers the stored index over the registry row, which may be
// missing or stale when the registry does not outlive the process.
func (s *Service) chunkCount(ctx context.Context, hash string, rec *registry.Document) int {
	if counter, ok := s.deps.Index.(ChunkCounter); ok {
		n, err := counter.CountChunks(ctx, hash)
		if err == nil {
			return n
		}
		slog.WarnContext(ctx, "failed to count index chunks", "doc_hash", hash, "error", err)
	}
	if rec != nil {
		return rec.ChunkCount
	}
	return 0
}

func (s *Service) answerFromIndex(ctx context.Context, hash string, questions []string) ([]string, error) {
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		results, err := s.deps.Searcher.Search(ctx, hash, q, s.opts.TopK)
		if err != nil {
			return nil, fmt.Errorf("retrieve passages: %w", err)
		}
		answers = append(answers, s.answer(ctx, retrieval.Contents(results), q))
	}
	return answers, nil
}

func (s *Service) answerFromPassages(ctx context.Context, passages []string, questions []string) []string {
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		answers = append(answers, s.answer(ctx, passages, q))
	}
	return answers
}

func (s *Service) answer(ctx context.Context, passages []string, question string) string {
	out, err := s.deps.Answerer.Answer(ctx, retrieval.JoinContext(passages), question)
	if err != nil {
		slog.WarnContext(ctx, "model call failed", "error", err)
		return FallbackAnswer
	}
	return strings.TrimSpace(out)
}
