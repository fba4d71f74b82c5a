package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// BunDB implements Repository on SQLite using Bun ORM
type BunDB struct {
	db   *bun.DB
	path string
}

// NewRepository opens (creating if needed) the job history at path.
// ":memory:" gives a private in-memory database.
func NewRepository(path string) (*BunDB, error) {
	var connectionString string
	if path == ":memory:" {
		connectionString = "file::memory:"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, fmt.Errorf("unable to create folder for history database: %w", err)
			}
		}
		// eg "file:history.db?cache=shared&mode=rwc"
		connectionString = fmt.Sprintf("file:%s?cache=shared&mode=rwc", filepath.ToSlash(path))
	}
	Logger.Debug("Opening history database", "connectionString", connectionString)

	sqlDB, err := sql.Open(sqliteshim.ShimName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// Every connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	// Option to turn on verbose logging just returns failures otherwise
	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(false),
		bundebug.FromEnv("BUNDEBUG"),
	))

	result := &BunDB{db: db, path: path}
	if err := result.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return result, nil
}

// Path returns the location the repository was opened with
func (b *BunDB) Path() string {
	return b.path
}

// Close closes the database connection
func (b *BunDB) Close() error {
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
	}
	return nil
}

// CreateJob creates a new pending job in the database
func (b *BunDB) CreateJob(jobType JobType, source, message string) (*Job, error) {
	ctx := context.Background()
	now := time.Now()
	jobID, err := CalculateUUID(now)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        jobID,
		Type:      jobType,
		Status:    JobStatusPending,
		Source:    source,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = b.db.NewInsert().
		Model(FromJob(job)).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return job, nil
}

// UpdateJobStatus updates the status of a job
func (b *BunDB) UpdateJobStatus(jobID ulid.ULID, status JobStatus, message string) error {
	ctx := context.Background()
	now := time.Now()

	query := b.db.NewUpdate().
		Model((*BunJob)(nil)).
		Set("status = ?", status).
		Set("message = ?", message).
		Set("updated_at = ?", now)

	if status == JobStatusRunning {
		query = query.Set("started_at = COALESCE(started_at, ?)", now)
	}
	if status.Finished() {
		query = query.Set("completed_at = ?", now)
	}

	return b.expectOne(query.Where("id = ?", jobID.String()).Exec(ctx))
}

// UpdateJobError marks a job as failed with an error
func (b *BunDB) UpdateJobError(jobID ulid.ULID, errorMsg string) error {
	ctx := context.Background()
	now := time.Now()

	return b.expectOne(b.db.NewUpdate().
		Model((*BunJob)(nil)).
		Set("status = ?", JobStatusFailed).
		Set("error = ?", errorMsg).
		Set("updated_at = ?", now).
		Set("completed_at = ?", now).
		Where("id = ?", jobID.String()).
		Exec(ctx))
}

// CompleteJob marks a job as completed with the files it wrote
func (b *BunDB) CompleteJob(jobID ulid.ULID, outputs int, result string) error {
	ctx := context.Background()
	now := time.Now()

	return b.expectOne(b.db.NewUpdate().
		Model((*BunJob)(nil)).
		Set("status = ?", JobStatusCompleted).
		Set("outputs = ?", outputs).
		Set("result = ?", result).
		Set("updated_at = ?", now).
		Set("completed_at = ?", now).
		Where("id = ?", jobID.String()).
		Exec(ctx))
}

// GetJob retrieves a job by ID
func (b *BunDB) GetJob(jobID ulid.ULID) (*Job, error) {
	ctx := context.Background()
	bunJob := new(BunJob)

	err := b.db.NewSelect().
		Model(bunJob).
		Where("id = ?", jobID.String()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}

	return bunJob.ToJob()
}

// GetRecentJobs retrieves the most recent jobs with pagination
func (b *BunDB) GetRecentJobs(limit, offset int) ([]Job, error) {
	ctx := context.Background()
	var bunJobs []BunJob

	err := b.db.NewSelect().
		Model(&bunJobs).
		Order("created_at DESC", "id DESC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return b.bunJobsToJobs(bunJobs)
}

// DeleteOldJobs deletes finished jobs older than the specified duration
func (b *BunDB) DeleteOldJobs(olderThan time.Duration) (int, error) {
	ctx := context.Background()
	cutoffTime := time.Now().Add(-olderThan)

	result, err := b.db.NewDelete().
		Model((*BunJob)(nil)).
		Where("status IN (?)", bun.In([]string{string(JobStatusCompleted), string(JobStatusFailed)})).
		Where("completed_at < ?", cutoffTime).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	if count > 0 {
		Logger.Info("Pruned job history", "deleted", count, "olderThan", olderThan)
	}
	return int(count), err
}

// expectOne turns an update that touched no row into ErrJobNotFound
func (b *BunDB) expectOne(result sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// bunJobsToJobs converts a slice of BunJob to Job
func (b *BunDB) bunJobsToJobs(bunJobs []BunJob) ([]Job, error) {
	jobs := make([]Job, 0, len(bunJobs))
	for _, bunJob := range bunJobs {
		job, err := bunJob.ToJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

var _ Repository = (*BunDB)(nil)
