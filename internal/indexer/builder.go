// Package indexer rebuilds the recipe vector index as a background job.
// Rebuilds are single-flight: a second request while one runs is refused
// without touching the running job or the active index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/intellicook/recipe-search/internal/encoder"
	"github.com/intellicook/recipe-search/internal/storage"
	"github.com/intellicook/recipe-search/internal/vectorindex"
	"github.com/intellicook/recipe-search/pkg/types"
)

// State is the lifecycle state of the rebuild job
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInProgress    State = "in_progress"
	StateFailed        State = "failed"
	StateCompleted     State = "completed"
)

// Params are the arguments of one rebuild
type Params struct {
	// Count caps how many recipes are indexed, in insertion order.
	// Zero or negative means all.
	Count int
	// Model is the embedding model name recorded in the index metadata
	Model string
	// Path is where the index file is written
	Path string
}

// Status is a point-in-time snapshot of the job. Args are zero while the
// state is Uninitialized.
type Status struct {
	State      State
	JobID      string
	Count      int
	Model      string
	Path       string
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Result is handed to the completion callback after a successful rebuild
type Result struct {
	Index *vectorindex.Index
	Meta  storage.IndexMeta
}

// Builder runs rebuild jobs over the recipe store
type Builder struct {
	store   storage.Storage
	enc     *encoder.Encoder
	logger  *zap.Logger
	workers int

	lock buildLock

	mu     sync.RWMutex
	status Status
}

// New creates a Builder. workers bounds concurrent embedding calls; zero
// picks the CPU count.
func New(store storage.Storage, enc *encoder.Encoder, logger *zap.Logger, workers int) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Builder{
		store:   store,
		enc:     enc,
		logger:  logger,
		workers: workers,
		status:  Status{State: StateUninitialized},
	}
}

// Status returns a snapshot of the current job state
func (b *Builder) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// StartRebuild launches a rebuild in the background and returns its job
// id. Returns false without any state change when a rebuild is already in
// progress. onComplete runs only after a fully successful rebuild, before
// the job is marked Completed; a failed job never invokes it.
func (b *Builder) StartRebuild(params Params, onComplete func(Result)) (string, bool) {
	if !b.lock.TryAcquire() {
		return "", false
	}

	job := b.beginJob(params)
	go func() {
		defer b.lock.Release()
		// The job outlives the request that started it
		b.runJob(context.Background(), job, params, onComplete)
	}()
	return job, true
}

// Rebuild runs a rebuild synchronously. Used by the offline CLI; shares
// the single-flight lock with background jobs.
func (b *Builder) Rebuild(ctx context.Context, params Params, onComplete func(Result)) error {
	if !b.lock.TryAcquire() {
		return types.ErrRebuildInProgress
	}
	defer b.lock.Release()

	job := b.beginJob(params)
	b.runJob(ctx, job, params, onComplete)

	status := b.Status()
	if status.State == StateFailed {
		return fmt.Errorf("rebuild failed: %s", status.Error)
	}
	return nil
}

func (b *Builder) beginJob(params Params) string {
	if params.Model == "" {
		params.Model = b.enc.Model()
	}
	jobID := uuid.NewString()
	b.mu.Lock()
	b.status = Status{
		State:     StateInProgress,
		JobID:     jobID,
		Count:     params.Count,
		Model:     params.Model,
		Path:      params.Path,
		StartedAt: time.Now(),
	}
	b.mu.Unlock()
	return jobID
}

func (b *Builder) finishJob(state State, err error) {
	b.mu.Lock()
	b.status.State = state
	b.status.FinishedAt = time.Now()
	if err != nil {
		b.status.Error = err.Error()
	}
	b.mu.Unlock()
}

// runJob is the rebuild body: drop the persisted index, re-encode recipes
// into a fresh one, save it, record exactly one metadata row, then hand the
// new index to onComplete.
func (b *Builder) runJob(ctx context.Context, jobID string, params Params, onComplete func(Result)) {
	logger := b.logger.With(zap.String("job_id", jobID))
	logger.Info("index rebuild started",
		zap.Int("count", params.Count),
		zap.String("model", params.Model),
		zap.String("path", params.Path))

	result, err := b.build(ctx, params)
	if err != nil {
		logger.Error("index rebuild failed", zap.Error(err))
		b.finishJob(StateFailed, err)
		return
	}

	if onComplete != nil {
		onComplete(result)
	}
	b.mu.Lock()
	b.status.Count = result.Index.Count()
	b.mu.Unlock()
	b.finishJob(StateCompleted, nil)
	logger.Info("index rebuild completed", zap.Int("vectors", result.Index.Count()))
}

func (b *Builder) build(ctx context.Context, params Params) (Result, error) {
	// Drop every previous persisted index before building: the file the
	// metadata records, which may live at a different path, and anything
	// already at the target path.
	prev, err := b.store.GetIndexMeta(ctx)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return Result{}, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if prev != nil && prev.Path != params.Path {
		if err := os.Remove(prev.Path); err != nil && !os.IsNotExist(err) {
			return Result{}, fmt.Errorf("failed to remove recorded index file: %w", err)
		}
	}
	if err := os.Remove(params.Path); err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("failed to remove old index file: %w", err)
	}
	if err := b.store.DeleteIndexMeta(ctx); err != nil {
		return Result{}, fmt.Errorf("failed to clear index metadata: %w", err)
	}

	recipes, err := b.store.ListRecipes(ctx, params.Count)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list recipes: %w", err)
	}

	idx, err := vectorindex.New(b.enc.Dimension())
	if err != nil {
		return Result{}, err
	}

	// Encode concurrently; a semaphore caps in-flight embedding calls
	semaphore := make(chan struct{}, b.workers)
	g, gctx := errgroup.WithContext(ctx)
	for _, recipe := range recipes {
		recipe := recipe
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			vec, err := b.enc.EncodeRecipe(gctx, recipe)
			if err != nil {
				return fmt.Errorf("failed to encode recipe %d: %w", recipe.ID, err)
			}
			return idx.Add(recipe.ID, vec)
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if err := idx.Save(params.Path); err != nil {
		return Result{}, fmt.Errorf("failed to save index: %w", err)
	}

	model := params.Model
	if model == "" {
		model = b.enc.Model()
	}
	meta := storage.IndexMeta{
		Path:        params.Path,
		RecipeCount: idx.Count(),
		Dimension:   b.enc.Dimension(),
		Model:       model,
		BuiltAt:     time.Now(),
	}
	// Written only after the index file is durably on disk
	if err := b.store.SetIndexMeta(ctx, &meta); err != nil {
		return Result{}, fmt.Errorf("failed to record index metadata: %w", err)
	}

	return Result{Index: idx, Meta: meta}, nil
}
