// Package batch analyzes many documents with a bounded pool of workers and
// tracks them as one job.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ecoopen-extract/internal/helper"
	"ecoopen-extract/internal/models"
)

// Analyzer is the single-document entry point, satisfied by
// *pipeline.Orchestrator.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, filename string) (*models.AnalysisResult, error)
}

// Store persists jobs and their results as they complete.
type Store interface {
	SaveJob(ctx context.Context, job *models.Job) error
	SaveResult(ctx context.Context, jobID string, position int, res *models.AnalysisResult) error
}

// Item is one document of a batch. Load is called by the worker that picks
// the item up, so large inputs are not held in memory while queued.
type Item struct {
	Filename string
	Load     func(ctx context.Context) ([]byte, error)
}

// FileItem reads path from disk when processed.
func FileItem(path string) Item {
	return Item{
		Filename: filepath.Base(path),
		Load: func(context.Context) ([]byte, error) {
			return os.ReadFile(path)
		},
	}
}

// BytesItem wraps data already in memory.
func BytesItem(filename string, data []byte) Item {
	return Item{
		Filename: filename,
		Load:     func(context.Context) ([]byte, error) { return data, nil },
	}
}

type Runner struct {
	analyzer  Analyzer
	workers   int
	timeout   time.Duration
	progress  func(models.Progress)
	store     Store
	createdBy string
}

type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithProgress registers a callback invoked after every finished document.
// Calls are serialized and Current only grows.
func WithProgress(fn func(models.Progress)) Option {
	return func(r *Runner) { r.progress = fn }
}

func WithStore(s Store) Option {
	return func(r *Runner) { r.store = s }
}

func WithCreatedBy(name string) Option {
	return func(r *Runner) { r.createdBy = name }
}

func NewRunner(analyzer Analyzer, opts ...Option) *Runner {
	r := &Runner{
		analyzer: analyzer,
		workers:  1,
		timeout:  10 * time.Minute,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run analyzes items and returns the job with one result per item, in input
// order. When ctx is cancelled the documents that never started are marked
// cancelled and Run returns the job together with models.ErrCancelled.
func (r *Runner) Run(ctx context.Context, items []Item) (*models.Job, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job := &models.Job{
		ID:        id,
		Status:    models.JobRunning,
		Progress:  models.Progress{Total: len(items)},
		CreatedBy: r.createdBy,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}
	logger := log.With().Str("job_id", id).Logger()
	logger.Info().Int("documents", len(items)).Int("workers", r.workers).Msg("Batch started")
	r.saveJob(ctx, job)

	results := make([]*models.AnalysisResult, len(items))
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan int)
	)

	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				res := r.process(ctx, items[i])
				if res.Error != nil {
					logger.Warn().Int("worker_id", workerID).Str("file", items[i].Filename).Str("error", *res.Error).Msg("Document failed")
				} else {
					logger.Debug().Int("worker_id", workerID).Str("file", items[i].Filename).Msg("Document analyzed")
				}

				mu.Lock()
				results[i] = res
				job.Progress.Current++
				job.UpdatedAt = time.Now().UTC()
				progress := job.Progress
				if r.progress != nil {
					r.progress(progress)
				}
				mu.Unlock()

				if r.store != nil {
					if err := r.store.SaveResult(context.WithoutCancel(ctx), id, i, res); err != nil {
						logger.Warn().Err(err).Str("file", items[i].Filename).Msg("Could not store result")
					}
				}
			}
		}(w + 1)
	}

feed:
	for i := range items {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	failed := 0
	job.Results = make([]models.AnalysisResult, len(items))
	for i, res := range results {
		if res == nil {
			res = models.NewAnalysisResult(items[i].Filename)
			res.SetError(models.MsgCancelled)
		}
		if res.Error != nil {
			failed++
		}
		job.Results[i] = *res
	}

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	job.UpdatedAt = finished
	switch {
	case ctx.Err() != nil:
		job.Status = models.JobCancelled
		job.Error = models.MsgCancelled
	case len(items) > 0 && failed == len(items):
		job.Status = models.JobError
		job.Error = "all documents failed"
	default:
		job.Status = models.JobDone
	}
	r.saveJob(ctx, job)

	logger.Info().
		Str("status", string(job.Status)).
		Int("failed", failed).
		Dur("duration", job.Duration()).
		Msg("Batch finished")

	if err := ctx.Err(); err != nil {
		return job, models.NewAnalysisError(models.ErrCancelled, models.MsgCancelled, err)
	}
	return job, nil
}

// process analyzes one item under the per-document timeout. It always
// returns a result; failures are recorded in its Error field.
func (r *Runner) process(ctx context.Context, item Item) *models.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := item.Load(ctx)
	if err != nil {
		res := models.NewAnalysisResult(item.Filename)
		res.SetError(fmt.Sprintf("read failed: %v", err))
		return res
	}

	res, err := r.analyzer.Analyze(ctx, data, item.Filename)
	if res == nil {
		res = models.NewAnalysisResult(item.Filename)
		if err != nil {
			res.SetError(err.Error())
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		res.SetError("timed out")
	}
	return res
}

func (r *Runner) saveJob(ctx context.Context, job *models.Job) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("Could not store job")
	}
}
