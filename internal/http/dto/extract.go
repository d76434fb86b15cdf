package dto

import (
	"time"

	"basegraph.app/synapse/internal/model"
)

type ExtractRequest struct {
	ChannelID     string `json:"channel_id" binding:"required"`
	MonthsHistory *int   `json:"months_history,omitempty" binding:"omitempty,min=1,max=12"`
}

type ExtractResponse struct {
	RunID  int64           `json:"run_id,string"`
	Status model.RunStatus `json:"status"`
}

type IngestRunResponse struct {
	RunID            int64           `json:"run_id,string"`
	ChannelID        string          `json:"channel_id"`
	MonthsHistory    int             `json:"months_history"`
	Status           model.RunStatus `json:"status"`
	ThreadsProcessed int             `json:"threads_processed"`
	Error            *string         `json:"error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

func ToIngestRunResponse(run *model.IngestRun) IngestRunResponse {
	return IngestRunResponse{
		RunID:            run.ID,
		ChannelID:        run.ChannelID,
		MonthsHistory:    run.MonthsHistory,
		Status:           run.Status,
		ThreadsProcessed: run.ThreadsProcessed,
		Error:            run.Error,
		CreatedAt:        run.CreatedAt,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
	}
}
