package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"ecoopen-extract/internal/config"
	"ecoopen-extract/internal/models"
)

type JobRecord struct {
	bun.BaseModel `bun:"table:extraction_jobs,alias:j"`
	ID            string     `bun:"id,pk"`
	Status        string     `bun:"status,notnull"`
	Current       int        `bun:"progress_current,notnull"`
	Total         int        `bun:"progress_total,notnull"`
	Error         string     `bun:"error"`
	CreatedBy     string     `bun:"created_by"`
	CreatedAt     time.Time  `bun:"created_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
	StartedAt     *time.Time `bun:"started_at"`
	FinishedAt    *time.Time `bun:"finished_at"`
}

type ResultRecord struct {
	bun.BaseModel             `bun:"table:extraction_results,alias:r"`
	ID                        int64              `bun:"id,pk,autoincrement"`
	JobID                     string             `bun:"job_id,notnull,unique:job_position"`
	Position                  int                `bun:"position,notnull,unique:job_position"`
	SourceFile                string             `bun:"source_file,notnull"`
	Title                     *string            `bun:"title"`
	DOI                       *string            `bun:"doi"`
	DataAvailabilityStatement *string            `bun:"data_availability_statement"`
	CodeAvailabilityStatement *string            `bun:"code_availability_statement"`
	DataSharingLicense        *string            `bun:"data_sharing_license"`
	CodeLicense               *string            `bun:"code_license"`
	DataLinks                 []string           `bun:"data_links,array"`
	CodeLinks                 []string           `bun:"code_links,array"`
	ConfidenceScores          map[string]float64 `bun:"confidence_scores,type:jsonb"`
	Error                     *string            `bun:"error"`
	CreatedAt                 time.Time          `bun:"created_at,notnull,default:current_timestamp"`
}

// NewDB wraps sqldb with the postgres dialect. debug logs every query.
func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// Connect opens the database described by cfg with the configured driver.
func Connect(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "", "pgdriver":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	case "pq":
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Store keeps batch jobs and their per-document results.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Init(ctx context.Context) error {
	for _, model := range []any{(*JobRecord)(nil), (*ResultRecord)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// SaveJob inserts the job or updates its status and progress.
func (s *Store) SaveJob(ctx context.Context, job *models.Job) error {
	rec := jobRecord(job)
	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("progress_current = EXCLUDED.progress_current").
		Set("error = EXCLUDED.error").
		Set("updated_at = EXCLUDED.updated_at").
		Set("finished_at = EXCLUDED.finished_at").
		Exec(ctx)
	return err
}

// SaveResult stores the result at position within job, replacing an earlier
// result for the same slot.
func (s *Store) SaveResult(ctx context.Context, jobID string, position int, res *models.AnalysisResult) error {
	rec := resultRecord(jobID, position, res)
	_, err := s.db.NewInsert().
		Model(rec).
		On("CONFLICT (job_id, position) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("doi = EXCLUDED.doi").
		Set("data_availability_statement = EXCLUDED.data_availability_statement").
		Set("code_availability_statement = EXCLUDED.code_availability_statement").
		Set("data_sharing_license = EXCLUDED.data_sharing_license").
		Set("code_license = EXCLUDED.code_license").
		Set("data_links = EXCLUDED.data_links").
		Set("code_links = EXCLUDED.code_links").
		Set("confidence_scores = EXCLUDED.confidence_scores").
		Set("error = EXCLUDED.error").
		Exec(ctx)
	return err
}

// GetJob loads a job with its results ordered by position.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var rec JobRecord
	if err := s.db.NewSelect().Model(&rec).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	var results []ResultRecord
	if err := s.db.NewSelect().
		Model(&results).
		Where("job_id = ?", id).
		Order("position ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:         rec.ID,
		Status:     models.JobStatus(rec.Status),
		Progress:   models.Progress{Current: rec.Current, Total: rec.Total},
		Error:      rec.Error,
		CreatedBy:  rec.CreatedBy,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	for _, r := range results {
		job.Results = append(job.Results, r.analysisResult())
	}
	return job, nil
}

func (s *Store) Drop(ctx context.Context) error {
	for _, model := range []any{(*ResultRecord)(nil), (*JobRecord)(nil)} {
		if _, err := s.db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func jobRecord(job *models.Job) *JobRecord {
	return &JobRecord{
		ID:         job.ID,
		Status:     string(job.Status),
		Current:    job.Progress.Current,
		Total:      job.Progress.Total,
		Error:      job.Error,
		CreatedBy:  job.CreatedBy,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

func resultRecord(jobID string, position int, res *models.AnalysisResult) *ResultRecord {
	return &ResultRecord{
		JobID:                     jobID,
		Position:                  position,
		SourceFile:                res.SourceFile,
		Title:                     res.Title,
		DOI:                       res.DOI,
		DataAvailabilityStatement: res.DataAvailabilityStatement,
		CodeAvailabilityStatement: res.CodeAvailabilityStatement,
		DataSharingLicense:        res.DataSharingLicense,
		CodeLicense:               res.CodeLicense,
		DataLinks:                 res.DataLinks,
		CodeLinks:                 res.CodeLinks,
		ConfidenceScores:          res.ConfidenceScores,
		Error:                     res.Error,
	}
}

func (r ResultRecord) analysisResult() models.AnalysisResult {
	res := models.NewAnalysisResult(r.SourceFile)
	res.Title = r.Title
	res.DOI = r.DOI
	res.DataAvailabilityStatement = r.DataAvailabilityStatement
	res.CodeAvailabilityStatement = r.CodeAvailabilityStatement
	res.DataSharingLicense = r.DataSharingLicense
	res.CodeLicense = r.CodeLicense
	if r.DataLinks != nil {
		res.DataLinks = r.DataLinks
	}
	if r.CodeLinks != nil {
		res.CodeLinks = r.CodeLinks
	}
	if r.ConfidenceScores != nil {
		res.ConfidenceScores = r.ConfidenceScores
	}
	res.Error = r.Error
	return *res
}
