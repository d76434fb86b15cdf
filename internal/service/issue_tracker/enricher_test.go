package issue_tracker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/service/issue_tracker"
)

type mockTracker struct {
	mu      sync.Mutex
	calls   map[string]int
	fetchFn func(ctx context.Context, id string) (*model.TicketReference, error)
}

func (m *mockTracker) FetchTicket(ctx context.Context, id string) (*model.TicketReference, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[id]++
	m.mu.Unlock()
	return m.fetchFn(ctx, id)
}

func (m *mockTracker) count(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

var _ = Describe("Enricher", func() {
	var (
		ctx      context.Context
		tracker  *mockTracker
		enricher *issue_tracker.Enricher
	)

	BeforeEach(func() {
		ctx = context.Background()
		tracker = &mockTracker{
			fetchFn: func(_ context.Context, id string) (*model.TicketReference, error) {
				if id == "BAD-1" {
					return nil, errors.New("status 500")
				}
				return &model.TicketReference{ID: id, Summary: "summary of " + id}, nil
			},
		}
		enricher = issue_tracker.NewEnricher(tracker)
	})

	It("fetches each ticket once", func() {
		for range 3 {
			ticket, ok := enricher.Enrich(ctx, "PAY-102")
			Expect(ok).To(BeTrue())
			Expect(ticket.Summary).To(Equal("summary of PAY-102"))
		}
		Expect(tracker.count("PAY-102")).To(Equal(1))
	})

	It("caches unavailable tickets", func() {
		_, ok := enricher.Enrich(ctx, "BAD-1")
		Expect(ok).To(BeFalse())
		_, ok = enricher.Enrich(ctx, "BAD-1")
		Expect(ok).To(BeFalse())
		Expect(tracker.count("BAD-1")).To(Equal(1))
	})

	It("reports unavailable when the tracker is not configured", func() {
		tracker.fetchFn = func(context.Context, string) (*model.TicketReference, error) {
			return nil, issue_tracker.ErrNotConfigured
		}
		ticket, ok := enricher.Enrich(ctx, "PAY-102")
		Expect(ok).To(BeFalse())
		Expect(ticket).To(BeNil())
	})

	It("collapses concurrent misses", func() {
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, ok := enricher.Enrich(ctx, "OPS-7")
				Expect(ok).To(BeTrue())
			}()
		}
		wg.Wait()
		Expect(tracker.count("OPS-7")).To(Equal(1))
	})

	It("evicts the least recently used ticket beyond capacity", func() {
		for i := range issue_tracker.TicketCacheSize + 1 {
			enricher.Enrich(ctx, fmt.Sprintf("T-%d", i))
		}
		enricher.Enrich(ctx, "T-0")
		Expect(tracker.count("T-0")).To(Equal(2))
		enricher.Enrich(ctx, fmt.Sprintf("T-%d", issue_tracker.TicketCacheSize))
		Expect(tracker.count(fmt.Sprintf("T-%d", issue_tracker.TicketCacheSize))).To(Equal(1))
	})
})
