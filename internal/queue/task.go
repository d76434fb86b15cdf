package queue

type TaskType string

const (
	TaskTypeChannelIngest TaskType = "channel_ingest"
)

// IngestTask asks a worker to ingest one channel's recent history.
type IngestTask struct {
	RunID         int64
	ChannelID     string
	MonthsHistory int
	TraceID       *string
	Attempt       int
}
