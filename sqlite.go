package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

type Sqlite struct {
	pool *sql.DB
}

func NewSqlite(path string) (*Sqlite, error) {
	pool, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &Sqlite{
		pool: pool,
	}, nil
}

//go:embed migrations/*.sql
var embedMigrations embed.FS

func (s *Sqlite) RunMigrations() error {
	migrationFs, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create fs.FS: %w", err)
	}

	d, err := iofs.New(migrationFs, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Only the migration SQL goes through this driver, the pool stays glebarez
	driver, err := sqlite3.WithInstance(s.pool, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to get driver with instance: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error doing migrations: %w", err)
	}

	return nil
}

func (s *Sqlite) GetJobs() ([]Job, error) {
	querySQL := `SELECT id, source, reference, high_res_reference, output_path FROM jobs
				WHERE done = false AND failed = false ORDER BY id`
	rows, err := s.pool.Query(querySQL)
	if err != nil {
		return []Job{}, err
	}

	defer rows.Close()
	jobs := []Job{}
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Source, &j.Reference, &j.HighResReference, &j.OutputPath); err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}

	// Check for errors from iterating over rows
	if err := rows.Err(); err != nil {
		return []Job{}, err
	}

	return jobs, nil
}

func (s *Sqlite) InsertJob(job *Job) (int64, error) {
	insertSQL := `INSERT INTO jobs (source, reference, high_res_reference, output_path, done) VALUES (?, ?, ?, ?, ?)`
	statement, err := s.pool.Prepare(insertSQL)
	if err != nil {
		return 0, err
	}

	defer statement.Close()
	result, err := statement.Exec(job.Source, job.Reference, job.HighResReference, job.OutputPath, false)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	job.ID = id
	return id, nil
}

func (s *Sqlite) MarkJobAsDone(job *Job) error {
	updateSQL := `UPDATE jobs SET done = true WHERE id = ?`
	_, err := s.pool.Exec(updateSQL, job.ID)
	return err
}

func (s *Sqlite) GetJobRetries(job *Job) (int, error) {
	getRetrySQL := `SELECT retries FROM jobs WHERE id = ?`
	retries := 0
	err := s.pool.QueryRow(getRetrySQL, job.ID).Scan(&retries)
	if err != nil {
		return 0, err
	}

	return retries, nil
}

func (s *Sqlite) UpdateJobRetries(job *Job, retries int) error {
	updateSQL := `UPDATE jobs SET retries = ? WHERE id = ?`
	_, err := s.pool.Exec(updateSQL, retries, job.ID)
	return err
}

// FailJob records the failure and flags the job in one transaction.
func (s *Sqlite) FailJob(job *Job, output string, progErr string) (err error) {
	tx, err := s.pool.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	insertSQL := `INSERT INTO failed_jobs (job_id, ffmpeg_output, error) VALUES (?, ?, ?)`
	if _, err = tx.Exec(insertSQL, job.ID, output, progErr); err != nil {
		return err
	}

	markFailedSQL := `UPDATE jobs SET failed = ? WHERE id = ?`
	if _, err = tx.Exec(markFailedSQL, true, job.ID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Sqlite) DeleteJobByID(id int64) error {
	tx, err := s.pool.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM failed_jobs WHERE job_id = ?`, id); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Sqlite) GetFailedJobs() ([]FailedJob, error) {
	querySQL := `SELECT f.id, f.ffmpeg_output, f.error, j.id, j.source, j.reference, j.high_res_reference, j.output_path
				FROM failed_jobs f
				INNER JOIN jobs j ON j.id = f.job_id
				ORDER BY f.id`
	rows, err := s.pool.Query(querySQL)
	if err != nil {
		return []FailedJob{}, err
	}

	defer rows.Close()
	failed := []FailedJob{}
	for rows.Next() {
		var f FailedJob
		if err := rows.Scan(&f.ID, &f.FFmpegOutput, &f.Error,
			&f.Job.ID, &f.Job.Source, &f.Job.Reference, &f.Job.HighResReference, &f.Job.OutputPath); err != nil {
			return failed, err
		}
		failed = append(failed, f)
	}

	if err := rows.Err(); err != nil {
		return []FailedJob{}, err
	}

	return failed, nil
}

func (s *Sqlite) Close() error {
	return s.pool.Close()
}
