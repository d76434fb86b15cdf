package issue_tracker

import (
	"context"
	"errors"

	"basegraph.app/synapse/internal/model"
)

// ErrNotConfigured is returned when tracker credentials are absent.
var ErrNotConfigured = errors.New("issue tracker not configured")

type IssueTrackerService interface {
	FetchTicket(ctx context.Context, ticketID string) (*model.TicketReference, error)
}
