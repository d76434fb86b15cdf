package worker

import (
	"context"

	"basegraph.app/synapse/internal/queue"
	"basegraph.app/synapse/internal/service"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// ChannelIngester abstracts the ingestion service for testability.
type ChannelIngester interface {
	IngestChannel(ctx context.Context, channelID string, monthsHistory int) (*service.IngestResult, error)
}
