package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/synapse/core/db"
	"basegraph.app/synapse/internal/model"
)

type ingestRunStore struct {
	q db.Querier
}

func NewIngestRunStore(q db.Querier) IngestRunStore {
	return &ingestRunStore{q: q}
}

const ingestRunColumns = `id, channel_id, months_history, status, threads_processed, error, created_at, started_at, finished_at`

func (s *ingestRunStore) Create(ctx context.Context, run *model.IngestRun) (*model.IngestRun, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO ingest_runs (id, channel_id, months_history, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+ingestRunColumns,
		run.ID, run.ChannelID, run.MonthsHistory, string(run.Status))
	created, err := scanIngestRun(row)
	if err != nil {
		return nil, fmt.Errorf("creating ingest run: %w", err)
	}
	return created, nil
}

func (s *ingestRunStore) GetByID(ctx context.Context, id int64) (*model.IngestRun, error) {
	row := s.q.QueryRow(ctx, `SELECT `+ingestRunColumns+` FROM ingest_runs WHERE id = $1`, id)
	run, err := scanIngestRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *ingestRunStore) MarkRunning(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE ingest_runs
		SET status = $2, started_at = now()
		WHERE id = $1`,
		id, string(model.RunStatusRunning))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ingestRunStore) Finish(ctx context.Context, id int64, status model.RunStatus, threadsProcessed int, errMsg *string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE ingest_runs
		SET status = $2, threads_processed = $3, error = $4, finished_at = now()
		WHERE id = $1`,
		id, string(status), threadsProcessed, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIngestRun(row pgx.Row) (*model.IngestRun, error) {
	var (
		run    model.IngestRun
		status string
	)
	if err := row.Scan(
		&run.ID,
		&run.ChannelID,
		&run.MonthsHistory,
		&status,
		&run.ThreadsProcessed,
		&run.Error,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	return &run, nil
}
