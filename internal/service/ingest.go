package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/thread"
)

const (
	DefaultMonthsHistory = 3
	MaxMonthsHistory     = 12
)

var ErrInvalidMonths = errors.New("months_history must be between 1 and 12")

type HistoryFetcher interface {
	History(ctx context.Context, channelID string, oldest time.Time) ([]slack.Message, error)
	Replies(ctx context.Context, channelID, threadTS string) ([]slack.Message, error)
}

type GroupLoader interface {
	LoadGroups(ctx context.Context)
}

type ThreadAssembler interface {
	Assemble(ctx context.Context, root slack.Message, replies []slack.Message) (model.Thread, bool, error)
}

type ThreadIndexer interface {
	Ingest(ctx context.Context, t model.Thread) error
}

type IngestResult struct {
	ThreadsProcessed int
}

// IngestService walks a channel's history and indexes every thread.
type IngestService interface {
	IngestChannel(ctx context.Context, channelID string, monthsHistory int) (*IngestResult, error)
}

type ingestService struct {
	fetcher   HistoryFetcher
	groups    GroupLoader
	assembler ThreadAssembler
	index     ThreadIndexer
	now       func() time.Time
}

func NewIngestService(fetcher HistoryFetcher, groups GroupLoader, assembler ThreadAssembler, index ThreadIndexer) IngestService {
	return &ingestService{
		fetcher:   fetcher,
		groups:    groups,
		assembler: assembler,
		index:     index,
		now:       time.Now,
	}
}

// IngestChannel processes threads one at a time in history order. An API
// error from Slack or a failed index write aborts the run; threads indexed
// before the failure stay indexed.
func (s *ingestService) IngestChannel(ctx context.Context, channelID string, monthsHistory int) (*IngestResult, error) {
	if monthsHistory < 1 || monthsHistory > MaxMonthsHistory {
		return nil, ErrInvalidMonths
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ChannelID: &channelID,
		Component: "synapse.service.ingest",
	})

	span := logger.StartSpan(ctx, "ingest.channel")
	defer span.End()
	ctx = span.Context()
	span.SetAttributes(
		attribute.String("slack.channel_id", channelID),
		attribute.Int("ingest.months_history", monthsHistory),
	)

	s.groups.LoadGroups(ctx)

	oldest := s.now().AddDate(0, 0, -30*monthsHistory)
	messages, err := s.fetcher.History(ctx, channelID, oldest)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetching channel history: %w", err)
	}

	slog.InfoContext(ctx, "channel history fetched",
		"messages", len(messages),
		"oldest", oldest.UTC().Format(time.RFC3339))

	result := &IngestResult{}
	for _, raw := range messages {
		if !thread.IsThreadRoot(raw) || !thread.Allowed(raw) {
			continue
		}

		var replies []slack.Message
		if raw.ReplyCount > 0 {
			replies, err = s.fetcher.Replies(ctx, channelID, raw.Timestamp)
			if err != nil {
				span.RecordError(err)
				return result, fmt.Errorf("fetching replies for %s: %w", raw.Timestamp, err)
			}
		}

		t, ok, err := s.assembler.Assemble(ctx, raw, replies)
		if err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("assembling thread %s: %w", raw.Timestamp, err)
		}
		if !ok {
			continue
		}

		if err := s.index.Ingest(ctx, t); err != nil {
			span.RecordError(err)
			return result, fmt.Errorf("indexing thread %s: %w", t.ID(), err)
		}
		result.ThreadsProcessed++
	}

	span.SetAttributes(attribute.Int("ingest.threads_processed", result.ThreadsProcessed))
	slog.InfoContext(ctx, "channel ingested", "threads_processed", result.ThreadsProcessed)

	return result, nil
}
