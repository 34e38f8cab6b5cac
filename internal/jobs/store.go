// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ManuGH/adreel/internal/persistence/sqlite"
	"github.com/ManuGH/adreel/internal/render"
)

var migrations = []string{
	`CREATE TABLE render_jobs (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		progress INTEGER NOT NULL DEFAULT 0,
		phase TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER
	);
	CREATE INDEX idx_render_jobs_created ON render_jobs(created_at_ms);
	CREATE TABLE render_artifacts (
		job_id TEXT PRIMARY KEY REFERENCES render_jobs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		filename TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		codec TEXT NOT NULL,
		frames INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);`,
}

// Store persists the job history in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the history database at path. An existing file is
// integrity-checked before use.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		issues, err := sqlite.VerifyIntegrity(ctx, path, "quick")
		if err != nil {
			return nil, fmt.Errorf("job store: verify: %w", err)
		}
		if issues != nil {
			return nil, fmt.Errorf("job store: %s is corrupt: %v", path, issues)
		}
	}
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("job store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Put inserts or replaces the job row and its artifact.
func (s *Store) Put(ctx context.Context, j Job) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var finished sql.NullInt64
	if j.FinishedAt != nil {
		finished = sql.NullInt64{Int64: toMillis(*j.FinishedAt), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO render_jobs (id, title, status, progress, phase, error, created_at_ms, updated_at_ms, finished_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		status = excluded.status,
		progress = excluded.progress,
		phase = excluded.phase,
		error = excluded.error,
		updated_at_ms = excluded.updated_at_ms,
		finished_at_ms = excluded.finished_at_ms`,
		j.ID, j.Title, string(j.Status), j.Progress, j.Phase, j.Error,
		toMillis(j.CreatedAt), toMillis(j.UpdatedAt), finished)
	if err != nil {
		return err
	}
	if a := j.Artifact; a != nil {
		_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO render_artifacts (job_id, path, filename, mime_type, codec, frames, size_bytes, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, a.Path, a.Filename, a.MIMEType, a.Codec, a.Frames, a.Size, a.Duration.Milliseconds())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const selectJob = `
	SELECT j.id, j.title, j.status, j.progress, j.phase, j.error, j.created_at_ms, j.updated_at_ms, j.finished_at_ms,
		a.path, a.filename, a.mime_type, a.codec, a.frames, a.size_bytes, a.duration_ms
	FROM render_jobs j LEFT JOIN render_artifacts a ON a.job_id = j.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j                     Job
		status                string
		created, updated      int64
		finished              sql.NullInt64
		path, name, mime, enc sql.NullString
		frames, size, dur     sql.NullInt64
	)
	if err := r.Scan(&j.ID, &j.Title, &status, &j.Progress, &j.Phase, &j.Error, &created, &updated, &finished,
		&path, &name, &mime, &enc, &frames, &size, &dur); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(updated)
	if finished.Valid {
		t := fromMillis(finished.Int64)
		j.FinishedAt = &t
	}
	if path.Valid {
		j.Artifact = &render.Artifact{
			JobID:    j.ID,
			Path:     path.String,
			Filename: name.String,
			MIMEType: mime.String,
			Codec:    enc.String,
			Frames:   int(frames.Int64),
			Size:     size.Int64,
			Duration: time.Duration(dur.Int64) * time.Millisecond,
		}
	}
	return j, nil
}

// Get returns one job or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, selectJob+` WHERE j.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// List returns the newest jobs first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY j.created_at_ms DESC, j.id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// MarkInterrupted ends every job a previous process left unfinished and returns
// how many were updated.
func (s *Store) MarkInterrupted(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
	UPDATE render_jobs SET status = ?, progress = 0, error = ?, updated_at_ms = ?, finished_at_ms = ?
	WHERE status NOT IN (?, ?, ?, ?)`,
		string(StatusInterrupted), "process stopped before the job finished", toMillis(now), toMillis(now),
		string(StatusDone), string(StatusFailed), string(StatusCanceled), string(StatusInterrupted))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Prune deletes finished jobs older than cutoff and returns their artifact paths.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT a.path FROM render_jobs j JOIN render_artifacts a ON a.job_id = j.id
	WHERE j.finished_at_ms IS NOT NULL AND j.finished_at_ms < ?`, toMillis(cutoff))
	if err != nil {
		return nil, err
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			_ = rows.Close()
			return nil, err
		}
		paths = append(paths, p)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM render_jobs WHERE finished_at_ms IS NOT NULL AND finished_at_ms < ?`, toMillis(cutoff)); err != nil {
		return nil, err
	}
	return paths, nil
}
