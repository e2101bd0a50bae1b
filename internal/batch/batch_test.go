package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecoopen-extract/internal/models"
)

type echoAnalyzer struct {
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (a *echoAnalyzer) Analyze(ctx context.Context, data []byte, filename string) (*models.AnalysisResult, error) {
	n := a.active.Add(1)
	defer a.active.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}

	res := models.NewAnalysisResult(filename)
	select {
	case <-ctx.Done():
		res.SetError(models.MsgCancelled)
		return res, models.NewAnalysisError(models.ErrCancelled, models.MsgCancelled, ctx.Err())
	case <-time.After(a.delay):
	}
	if string(data) == "broken" {
		res.SetError(models.MsgInvalidDocument)
		return res, models.NewAnalysisError(models.ErrInvalidDocument, models.MsgInvalidDocument, nil)
	}
	res.Set(models.FieldTitle, string(data), 0.6)
	return res, nil
}

type memStore struct {
	mu      sync.Mutex
	jobs    []models.JobStatus
	results map[int]string
}

func (s *memStore) SaveJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job.Status)
	return nil
}

func (s *memStore) SaveResult(_ context.Context, _ string, position int, res *models.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		s.results = map[int]string{}
	}
	s.results[position] = res.SourceFile
	return nil
}

func items(names ...string) []Item {
	out := make([]Item, len(names))
	for i, n := range names {
		out[i] = BytesItem(n+".pdf", []byte(n))
	}
	return out
}

func TestRun_KeepsInputOrder(t *testing.T) {
	an := &echoAnalyzer{delay: 5 * time.Millisecond}
	var seen []models.Progress
	store := &memStore{}
	r := NewRunner(an, WithWorkers(3), WithProgress(func(p models.Progress) { seen = append(seen, p) }), WithStore(store))

	job, err := r.Run(context.Background(), items("a", "b", "c", "broken", "e"))
	require.NoError(t, err)

	require.Len(t, job.Results, 5)
	for i, want := range []string{"a.pdf", "b.pdf", "c.pdf", "broken.pdf", "e.pdf"} {
		assert.Equal(t, want, job.Results[i].SourceFile)
	}
	assert.Equal(t, "a", *job.Results[0].Title)
	require.NotNil(t, job.Results[3].Error)
	assert.Equal(t, models.MsgInvalidDocument, *job.Results[3].Error)

	assert.Equal(t, models.JobDone, job.Status)
	assert.Equal(t, models.Progress{Current: 5, Total: 5}, job.Progress)
	assert.NotEmpty(t, job.ID)
	assert.NotNil(t, job.FinishedAt)
	assert.LessOrEqual(t, an.peak.Load(), int32(3))

	require.Len(t, seen, 5)
	for i, p := range seen {
		assert.Equal(t, i+1, p.Current)
	}

	assert.Equal(t, []models.JobStatus{models.JobRunning, models.JobDone}, store.jobs)
	assert.Len(t, store.results, 5)
}

func TestRun_DefaultsToOneWorker(t *testing.T) {
	an := &echoAnalyzer{delay: 2 * time.Millisecond}

	_, err := NewRunner(an).Run(context.Background(), items("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), an.peak.Load())
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	an := &echoAnalyzer{delay: time.Hour}
	r := NewRunner(an, WithProgress(func(models.Progress) {}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	job, err := r.Run(ctx, items("a", "b", "c"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrCancelled))

	assert.Equal(t, models.JobCancelled, job.Status)
	require.Len(t, job.Results, 3)
	for _, res := range job.Results {
		require.NotNil(t, res.Error)
		assert.Equal(t, models.MsgCancelled, *res.Error)
	}
}

func TestRun_PerDocumentTimeout(t *testing.T) {
	an := &echoAnalyzer{delay: time.Hour}

	job, err := NewRunner(an, WithProcessTimeout(10*time.Millisecond)).Run(context.Background(), items("slow"))
	require.NoError(t, err)
	require.NotNil(t, job.Results[0].Error)
	assert.Equal(t, "timed out", *job.Results[0].Error)
	assert.Equal(t, models.JobError, job.Status)
}

func TestFileItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paper.pdf")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	it := FileItem(path)
	assert.Equal(t, "paper.pdf", it.Filename)
	data, err := it.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	job, err := NewRunner(&echoAnalyzer{}).Run(context.Background(), []Item{FileItem(filepath.Join(dir, "missing.pdf"))})
	require.NoError(t, err)
	require.NotNil(t, job.Results[0].Error)
	assert.Contains(t, *job.Results[0].Error, "read failed")
}
