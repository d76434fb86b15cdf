package store

import (
	"context"
	"errors"

	"basegraph.app/synapse/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// IngestRunStore tracks channel ingestion runs from enqueue to completion.
type IngestRunStore interface {
	Create(ctx context.Context, run *model.IngestRun) (*model.IngestRun, error)
	GetByID(ctx context.Context, id int64) (*model.IngestRun, error)
	MarkRunning(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, status model.RunStatus, threadsProcessed int, errMsg *string) error
}
