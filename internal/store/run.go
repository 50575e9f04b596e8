package store

import (
	"context"
	"errors"

	"basegraph.app/harmony/core/db"
	"basegraph.app/harmony/internal/model"
	"github.com/jackc/pgx/v5"
)

const runColumns = `id, goal, status, attempt, error, report, created_at, updated_at, finished_at`

type runStore struct {
	conn db.DBTX
}

func newRunStore(conn db.DBTX) RunStore {
	return &runStore{conn: conn}
}

func (s *runStore) Create(ctx context.Context, run *model.Run) (*model.Run, error) {
	row := s.conn.QueryRow(ctx, `
		INSERT INTO runs (id, goal, status, attempt)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET updated_at = runs.updated_at
		RETURNING `+runColumns,
		run.ID, run.Goal, string(run.Status), max(run.Attempt, 1))
	return scanRun(row)
}

func (s *runStore) GetByID(ctx context.Context, id int64) (*model.Run, error) {
	row := s.conn.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *runStore) SetStatus(ctx context.Context, id int64, status model.RunStatus, attempt int32) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE runs SET status = $2, attempt = $3, updated_at = now()
		WHERE id = $1`,
		id, string(status), attempt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *runStore) Finish(ctx context.Context, id int64, status model.RunStatus, errMsg *string, report []byte) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE runs SET status = $2, error = $3, report = $4, updated_at = now(), finished_at = now()
		WHERE id = $1`,
		id, string(status), errMsg, report)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (*model.Run, error) {
	var (
		run    model.Run
		status string
		report []byte
	)
	if err := row.Scan(&run.ID, &run.Goal, &status, &run.Attempt, &run.Error, &report, &run.CreatedAt, &run.UpdatedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	run.Report = report
	return &run, nil
}
