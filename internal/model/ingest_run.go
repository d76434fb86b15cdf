package model

import "time"

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

type IngestRun struct {
	ID               int64      `json:"id"`
	ChannelID        string     `json:"channel_id"`
	MonthsHistory    int        `json:"months_history"`
	Status           RunStatus  `json:"status"`
	ThreadsProcessed int        `json:"threads_processed"`
	Error            *string    `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

func (r IngestRun) Done() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}
