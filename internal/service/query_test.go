package service_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/internal/pipeline"
	"basegraph.app/synapse/internal/service"
)

var _ = Describe("QueryService", func() {
	var (
		p   *mockQueryPipeline
		svc service.QueryService
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		p = &mockQueryPipeline{}
		svc = service.NewQueryService(p)
	})

	It("routes each mode to its pipeline", func() {
		a, err := svc.Narrative(ctx, service.QueryParams{Query: "why?", TopK: 5, UserName: "Ana"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Text).To(Equal("narrative"))

		a, err = svc.Structured(ctx, service.QueryParams{Query: "why?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Text).To(Equal("structured"))

		Expect(p.calls).To(Equal([]queryCall{
			{pipeline.ModeNarrative, "why?", 5, "Ana"},
			{pipeline.ModeStructured, "why?", 3, ""},
		}))
	})

	It("rejects blank questions", func() {
		_, err := svc.Narrative(ctx, service.QueryParams{Query: "   "})
		Expect(err).To(MatchError(service.ErrEmptyQuery))
		Expect(p.calls).To(BeEmpty())
	})
})
