package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/synapse/common/id"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/queue"
	"basegraph.app/synapse/internal/store"
)

var (
	ErrMissingChannel = errors.New("channel_id is required")
	ErrRunNotFound    = errors.New("ingest run not found")
)

type ExtractParams struct {
	ChannelID     string
	MonthsHistory int
	TraceID       *string
}

// ExtractService records ingestion runs and hands them to the worker.
type ExtractService interface {
	Start(ctx context.Context, params ExtractParams) (*model.IngestRun, error)
	Get(ctx context.Context, runID int64) (*model.IngestRun, error)
}

type extractService struct {
	runs     store.IngestRunStore
	txRunner TxRunner
	queue    queue.Producer
}

func NewExtractService(runs store.IngestRunStore, txRunner TxRunner, producer queue.Producer) ExtractService {
	return &extractService{
		runs:     runs,
		txRunner: txRunner,
		queue:    producer,
	}
}

// Start creates a queued run and enqueues it in one transaction, so a run
// row never exists without a task behind it.
func (s *extractService) Start(ctx context.Context, params ExtractParams) (*model.IngestRun, error) {
	channelID := strings.TrimSpace(params.ChannelID)
	if channelID == "" {
		return nil, ErrMissingChannel
	}
	months := params.MonthsHistory
	if months == 0 {
		months = DefaultMonthsHistory
	}
	if months < 1 || months > MaxMonthsHistory {
		return nil, ErrInvalidMonths
	}

	var run *model.IngestRun
	err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		var err error
		run, err = sp.IngestRuns().Create(ctx, &model.IngestRun{
			ID:            id.New(),
			ChannelID:     channelID,
			MonthsHistory: months,
			Status:        model.RunStatusQueued,
		})
		if err != nil {
			return err
		}

		if err := s.queue.Enqueue(ctx, queue.IngestTask{
			RunID:         run.ID,
			ChannelID:     channelID,
			MonthsHistory: months,
			TraceID:       params.TraceID,
			Attempt:       1,
		}); err != nil {
			return fmt.Errorf("enqueueing ingest task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "ingest run queued",
		"run_id", run.ID,
		"channel_id", channelID,
		"months_history", months)

	return run, nil
}

func (s *extractService) Get(ctx context.Context, runID int64) (*model.IngestRun, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("fetching ingest run: %w", err)
	}
	return run, nil
}
