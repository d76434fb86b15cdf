package issue_tracker

import (
	"context"
	"errors"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
)

// TicketCacheSize caps the number of distinct tickets remembered per process.
const TicketCacheSize = 128

// Enricher attaches ticket details to messages. Lookups are best-effort:
// every failure is cached as "unavailable" and never surfaced.
type Enricher struct {
	tracker IssueTrackerService
	cache   *lru.Cache[string, *model.TicketReference]
	group   singleflight.Group
}

func NewEnricher(tracker IssueTrackerService) *Enricher {
	cache, err := lru.New[string, *model.TicketReference](TicketCacheSize)
	if err != nil {
		// only reachable with a non-positive size
		panic(err)
	}
	return &Enricher{tracker: tracker, cache: cache}
}

// Enrich returns the ticket and true, or nil and false when the ticket is
// unavailable. A nil cache value records an unavailable ticket.
func (e *Enricher) Enrich(ctx context.Context, ticketID string) (*model.TicketReference, bool) {
	if ticket, ok := e.cache.Get(ticketID); ok {
		return ticket, ticket != nil
	}

	v, _, _ := e.group.Do(ticketID, func() (any, error) {
		if ticket, ok := e.cache.Get(ticketID); ok {
			return ticket, nil
		}

		ctx := logger.WithLogFields(ctx, logger.LogFields{
			TicketID:  &ticketID,
			Component: "synapse.issue_tracker.enricher",
		})

		ticket, err := e.tracker.FetchTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, ErrNotConfigured) {
				slog.DebugContext(ctx, "ticket enrichment skipped, tracker not configured")
			} else {
				slog.WarnContext(ctx, "ticket enrichment failed", "error", err)
			}
			ticket = nil
		}

		e.cache.Add(ticketID, ticket)
		return ticket, nil
	})

	ticket := v.(*model.TicketReference)
	return ticket, ticket != nil
}
