package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"hackrx/backend/internal/config"
	"hackrx/backend/internal/middleware"
)

// InProcessScheduler runs each build on its own goroutine. A hash already in
// flight is not started twice.
type InProcessScheduler struct {
	builder Builder

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewInProcessScheduler(b Builder) *InProcessScheduler {
	return &InProcessScheduler{builder: b, inFlight: make(map[string]struct{})}
}

func (s *InProcessScheduler) Schedule(ctx context.Context, task IndexTask) error {
	s.mu.Lock()
	if _, ok := s.inFlight[task.DocHash]; ok {
		s.mu.Unlock()
		slog.DebugContext(ctx, "index build already in flight", "doc_hash", task.DocHash)
		return nil
	}
	s.inFlight[task.DocHash] = struct{}{}
	s.mu.Unlock()

	// Detach from the request so the build outlives the response
	bctx := context.Background()
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		bctx = middleware.WithCorrelationID(bctx, id)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, task.DocHash)
			s.mu.Unlock()
		}()

		if err := s.builder.Build(bctx, task); err != nil {
			slog.ErrorContext(bctx, "background index build failed", "doc_hash", task.DocHash, "error", err)
		}
	}()
	return nil
}

// InFlight reports whether a build for hash is running.
func (s *InProcessScheduler) InFlight(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[hash]
	return ok
}

// Wait blocks until every scheduled build has finished.
func (s *InProcessScheduler) Wait() {
	s.wg.Wait()
}

// NSQScheduler publishes build tasks for an IndexConsumer to pick up. A task
// larger than one NSQ message, or one that fails to publish, is handed to the
// fallback scheduler instead of being lost.
type NSQScheduler struct {
	pub      Publisher
	fallback Scheduler
	maxBody  int
}

// NewNSQScheduler returns a scheduler publishing through pub. fallback may be
// nil, and maxBody <= 0 disables the size check.
func NewNSQScheduler(pub Publisher, fallback Scheduler, maxBody int) *NSQScheduler {
	return &NSQScheduler{pub: pub, fallback: fallback, maxBody: maxBody}
}

func (s *NSQScheduler) Schedule(ctx context.Context, task IndexTask) error {
	if task.CorrelationID == "" {
		task.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal index task: %w", err)
	}
	if s.maxBody > 0 && len(body) > s.maxBody {
		return s.scheduleFallback(ctx, task, fmt.Errorf("index task is %d bytes, message limit is %d", len(body), s.maxBody))
	}
	if err := s.pub.Publish(config.TopicIndexBuild, body); err != nil {
		return s.scheduleFallback(ctx, task, fmt.Errorf("publish index task: %w", err))
	}
	slog.InfoContext(ctx, "index task published", "doc_hash", task.DocHash, "topic", config.TopicIndexBuild)
	return nil
}

func (s *NSQScheduler) scheduleFallback(ctx context.Context, task IndexTask, cause error) error {
	if s.fallback == nil {
		return cause
	}
	slog.WarnContext(ctx, "index task not queued, building in process", "doc_hash", task.DocHash, "reason", cause)
	return s.fallback.Schedule(ctx, task)
}

// Wait blocks until builds handed to the fallback have finished.
func (s *NSQScheduler) Wait() {
	if w, ok := s.fallback.(interface{ Wait() }); ok {
		w.Wait()
	}
}
