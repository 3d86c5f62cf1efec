package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/viant/cascade/internal/clock"
	"github.com/viant/cascade/model/job"
	"github.com/viant/cascade/service/dao"
	daojob "github.com/viant/cascade/service/dao/job"
)

const ddl = `CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	spec       TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status ON jobs(status);`

// Service is a sqlite backed job repository
type Service struct {
	db *sql.DB
}

var _ daojob.Repository = (*Service)(nil)

func (s *Service) Job(ctx context.Context, id string) (*job.Spec, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	row := s.db.QueryRowContext(ctx, `SELECT spec FROM jobs WHERE id = ?`, id)
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %v", dao.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read job %v: %w", id, err)
	}
	return decode(data)
}

func (s *Service) Add(ctx context.Context, spec *job.Spec) error {
	data, err := encode(spec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO jobs(id, status, spec, updated_at) VALUES(?, ?, ?, ?)`,
		spec.ID(), string(spec.Job.Status), data, clock.Now())
	if err != nil {
		return fmt.Errorf("failed to add job %v: %w", spec.ID(), err)
	}
	return nil
}

func (s *Service) Update(ctx context.Context, spec *job.Spec) error {
	data, err := encode(spec)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ?, spec = ?, updated_at = ? WHERE id = ?`,
		string(spec.Job.Status), data, clock.Now(), spec.ID())
	if err != nil {
		return fmt.Errorf("failed to update job %v: %w", spec.ID(), err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: job %v", dao.ErrNotFound, spec.ID())
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job %v: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: job %v", dao.ErrNotFound, id)
	}
	return nil
}

func (s *Service) List(ctx context.Context, statuses ...job.Status) ([]*job.Spec, error) {
	query := `SELECT spec FROM jobs`
	var args []interface{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()
	var ret []*job.Spec
	for rows.Next() {
		var data string
		if err = rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		spec, err := decode(data)
		if err != nil {
			return nil, err
		}
		ret = append(ret, spec)
	}
	return ret, rows.Err()
}

// Close closes the database
func (s *Service) Close() error {
	return s.db.Close()
}

func encode(spec *job.Spec) (string, error) {
	if spec == nil || spec.Job == nil {
		return "", dao.ErrNilEntity
	}
	if spec.ID() == "" {
		return "", dao.ErrInvalidID
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job %v: %w", spec.ID(), err)
	}
	return string(data), nil
}

func decode(data string) (*job.Spec, error) {
	ret := &job.Spec{}
	if err := json.Unmarshal([]byte(data), ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return ret, nil
}

// New opens (creating when needed) a sqlite job repository at dsn
func New(ctx context.Context, dsn string) (*Service, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open job database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialise job database: %w", err)
	}
	return &Service{db: db}, nil
}
