package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/queue"
	"basegraph.app/synapse/internal/store"
)

type Config struct {
	MaxAttempts int
	ErrorDelay  time.Duration // backoff after a failed read; defaults to one second
}

type Worker struct {
	consumer Consumer
	runs     store.IngestRunStore
	ingester ChannelIngester
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, runs store.IngestRunStore, ingester ChannelIngester, cfg Config) *Worker {
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = time.Second
	}
	return &Worker{
		consumer:  consumer,
		runs:      runs,
		ingester:  ingester,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "synapse.worker",
	})

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(w.cfg.ErrorDelay):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"run_id", msg.RunID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"run_id", msg.RunID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one ingestion task to completion. A failed ingestion
// is recorded on the run and acknowledged; only bookkeeping failures are
// returned, so the message is retried.
//
// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msgID,
		RunID:     &msg.RunID,
		ChannelID: &msg.ChannelID,
	})

	var span *logger.SpanContext
	if msg.TraceID != "" {
		span = logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.ingest_run")
	} else {
		span = logger.StartSpan(ctx, "worker.ingest_run")
	}
	defer span.End()
	ctx = span.Context()

	slog.InfoContext(ctx, "processing message",
		"months_history", msg.MonthsHistory,
		"attempt", msg.Attempt)

	run, err := w.runs.GetByID(ctx, msg.RunID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "ingest run not found, skipping")
			w.ack(ctx, msg)
			return nil
		}
		return fmt.Errorf("fetching ingest run: %w", err)
	}
	if run.Done() {
		slog.InfoContext(ctx, "ingest run already finished, skipping", "status", run.Status)
		w.ack(ctx, msg)
		return nil
	}

	if err := w.runs.MarkRunning(ctx, msg.RunID); err != nil {
		return fmt.Errorf("marking run running: %w", err)
	}

	start := time.Now()
	result, ingestErr := w.ingester.IngestChannel(ctx, msg.ChannelID, msg.MonthsHistory)

	processed := 0
	if result != nil {
		processed = result.ThreadsProcessed
	}
	status := model.RunStatusSucceeded
	var errMsg *string
	if ingestErr != nil {
		span.RecordError(ingestErr)
		status = model.RunStatusFailed
		errMsg = logger.Ptr(ingestErr.Error())
	}

	if err := w.runs.Finish(ctx, msg.RunID, status, processed, errMsg); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	w.ack(ctx, msg)

	if ingestErr != nil {
		slog.WarnContext(ctx, "ingest run failed",
			"error", ingestErr,
			"threads_processed", processed,
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	}

	slog.InfoContext(ctx, "ingest run succeeded",
		"threads_processed", processed,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) ack(ctx context.Context, msg queue.Message) {
	if err := w.consumer.Ack(ctx, msg); err != nil {
		// the reclaimer will redeliver; finished runs are skipped
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"run_id", msg.RunID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"run_id", msg.RunID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
