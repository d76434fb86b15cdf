package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/slack-go/slack"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/pipeline"
)

var paymentThread = model.Match{
	ID:       "100.0",
	Document: "User 'Ana' started a thread:\nPayment failing, ref PAY-102",
	Metadata: model.ChunkMetadata{Author: "Ana", Source: "slack"},
	Distance: 0.12,
}

func blockTypes(blocks []slack.Block) []slack.MessageBlockType {
	out := make([]slack.MessageBlockType, len(blocks))
	for i, b := range blocks {
		out[i] = b.BlockType()
	}
	return out
}

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		retriever *mockRetriever
		generator *mockGenerator
		poster    *mockPoster
		cfg       pipeline.Config
		p         *pipeline.Pipeline
	)

	BeforeEach(func() {
		ctx = context.Background()
		retriever = &mockRetriever{
			queryFn: func(context.Context, string, int) (model.RetrievalResult, error) {
				return model.RetrievalResult{Matches: []model.Match{paymentThread}}, nil
			},
		}
		generator = &mockGenerator{generateFn: textResponse("Looks like the gateway. contact @pay-oncall now, then @crm-oncall")}
		poster = &mockPoster{}
		cfg = pipeline.Config{
			EscalationChannelID: "C-ESC",
			RoutingTable:        map[string]string{"transaction": "@transact-oncall"},
		}
	})

	JustBeforeEach(func() {
		p = pipeline.New(retriever, generator, poster, stubGroups{"S1": "pay-oncall"}, cfg)
	})

	Context("when retrieval finds nothing", func() {
		BeforeEach(func() {
			retriever.queryFn = func(context.Context, string, int) (model.RetrievalResult, error) {
				return model.RetrievalResult{}, nil
			}
		})

		It("answers without generating or posting in either mode", func() {
			for _, run := range []func(context.Context, string, int, string) (*pipeline.Answer, error){p.Narrative, p.Structured} {
				answer, err := run(ctx, "anything?", 3, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(answer.Text).To(Equal(pipeline.NoResultsAnswer))
				Expect(answer.Sources).To(BeEmpty())
				Expect(answer.Escalation).To(BeNil())
			}
			Expect(generator.requests).To(BeEmpty())
			Expect(poster.posts).To(BeEmpty())
		})
	})

	It("surfaces retrieval errors", func() {
		retriever.queryFn = func(context.Context, string, int) (model.RetrievalResult, error) {
			return model.RetrievalResult{}, errors.New("index unavailable")
		}
		_, err := p.Narrative(ctx, "q", 3, "")
		Expect(err).To(MatchError(ContainSubstring("index unavailable")))
	})

	Describe("Narrative", func() {
		It("routes to the first handle and posts the escalation", func() {
			answer, err := p.Narrative(ctx, "Why are payments failing?", 3, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Escalation).To(Equal(&model.EscalationDecision{Handle: "@pay-oncall"}))
			Expect(answer.Sources).To(Equal([]model.Match{paymentThread}))
			Expect(answer.Posted).To(BeTrue())

			Expect(poster.posts).To(HaveLen(1))
			sent := poster.posts[0]
			Expect(sent.channelID).To(Equal("C-ESC"))
			Expect(sent.fallback).To(Equal("New Escalation: Why are payments failing?"))
			Expect(blockTypes(sent.blocks)).To(Equal([]slack.MessageBlockType{
				slack.MBTHeader, slack.MBTSection, slack.MBTSection, slack.MBTDivider,
				slack.MBTSection, slack.MBTDivider, slack.MBTContext,
			}))

			raw, err := json.Marshal(sent.blocks)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("🚨 New Issue Escalation"))
			Expect(string(raw)).To(ContainSubstring("requires attention from *@pay-oncall*."))
			Expect(string(raw)).To(ContainSubstring(`*User's Query:*`))
			Expect(string(raw)).To(ContainSubstring("Why are payments failing?"))
			Expect(string(raw)).To(ContainSubstring("Payment failing, ref PAY-102"))
		})

		It("fills the prompt with question, documents, routing table and asker", func() {
			_, err := p.Narrative(ctx, "Why are payments failing?", 3, "")
			Expect(err).NotTo(HaveOccurred())

			prompt := generator.requests[0].Prompt
			Expect(prompt).To(ContainSubstring("Hi Team Member,"))
			Expect(prompt).To(ContainSubstring(`"Why are payments failing?"`))
			Expect(prompt).To(ContainSubstring(`"User 'Ana' started a thread:\nPayment failing, ref PAY-102"`))
			Expect(prompt).To(ContainSubstring(`"transaction": "@transact-oncall"`))
			Expect(prompt).To(ContainSubstring("## Recommended On-Call Team"))
			Expect(generator.requests[0].JSON).To(BeFalse())
		})

		It("degrades to a fixed answer and the fallback handle when generation fails", func() {
			generator.generateFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, errors.New("quota exceeded")
			}

			answer, err := p.Narrative(ctx, "q", 3, "Ana")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal(pipeline.GenerationErrorAnswer))
			Expect(answer.Escalation).To(Equal(&model.EscalationDecision{Handle: pipeline.FallbackHandle, Fallback: true}))
			Expect(poster.posts).To(HaveLen(1))
			Expect(generator.requests).To(HaveLen(1))
		})

		It("reports a failed post without failing the query", func() {
			poster.postFn = func() error { return errors.New("channel_not_found") }

			answer, err := p.Narrative(ctx, "q", 3, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Posted).To(BeFalse())
		})

		Context("without an escalation channel", func() {
			BeforeEach(func() {
				cfg.EscalationChannelID = ""
			})

			It("skips posting", func() {
				answer, err := p.Narrative(ctx, "q", 3, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(answer.Posted).To(BeFalse())
				Expect(poster.posts).To(BeEmpty())
			})
		})
	})

	DescribeTable("ExtractHandle",
		func(answer string, want model.EscalationDecision) {
			Expect(pipeline.ExtractHandle(answer)).To(Equal(want))
		},
		Entry("first handle wins", "contact @pay-oncall now, cc @crm-oncall", model.EscalationDecision{Handle: "@pay-oncall"}),
		Entry("bold handle", "team is **@portfolio-reviews-oncall**.", model.EscalationDecision{Handle: "@portfolio-reviews-oncall"}),
		Entry("no handle", "no idea", model.EscalationDecision{Handle: "@on-call-team", Fallback: true}),
	)

	Describe("Structured", func() {
		const blocksJSON = `{"blocks": [
			{"type": "header", "text": {"type": "plain_text", "text": "🔍 Analysis"}},
			{"type": "section", "text": {"type": "mrkdwn", "text": "*💡 Potential Causes*\n• gateway"}},
			{"type": "divider"},
			{"type": "section", "text": {"type": "mrkdwn", "text": "*🧑‍💻 Recommended On-Call Team*\n*@pay-oncall*"}}
		]}`

		It("posts fenced block JSON verbatim and summarizes its sections", func() {
			generator.generateFn = textResponse("```json\n" + blocksJSON + "\n```")

			answer, err := p.Structured(ctx, "Why are payments failing?", 3, "Ana")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal("*💡 Potential Causes*\n• gateway\n\n*🧑‍💻 Recommended On-Call Team*\n*@pay-oncall*"))
			Expect(answer.Escalation).To(BeNil())
			Expect(answer.Posted).To(BeTrue())
			Expect(poster.posts[0].fallback).To(Equal("Synapse AI Analysis for: Why are payments failing?"))
			Expect(blockTypes(poster.posts[0].blocks)).To(Equal([]slack.MessageBlockType{
				slack.MBTHeader, slack.MBTSection, slack.MBTDivider, slack.MBTSection,
			}))
		})

		It("asks for JSON and passes JSON-encoded inputs", func() {
			generator.generateFn = textResponse(blocksJSON)

			_, err := p.Structured(ctx, "Why are payments failing?", 3, "")
			Expect(err).NotTo(HaveOccurred())

			req := generator.requests[0]
			Expect(req.JSON).To(BeTrue())
			Expect(req.Prompt).To(ContainSubstring(`"Why are payments failing?"`))
			Expect(req.Prompt).To(ContainSubstring(`**User Name:** "Team Member"`))
			Expect(req.Prompt).To(ContainSubstring(`{"S1":"pay-oncall"}`))
			Expect(req.Prompt).To(ContainSubstring("Prioritize the team tagged last"))
			Expect(req.Prompt).NotTo(ContainSubstring("__"))
		})

		It("substitutes a notice block for invalid JSON", func() {
			generator.generateFn = textResponse("I think the answer is payments")

			answer, err := p.Structured(ctx, "q", 3, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal(pipeline.InvalidResponseNotice))
			Expect(poster.posts).To(HaveLen(1))
			Expect(poster.posts[0].blocks).To(HaveLen(1))
			Expect(generator.requests).To(HaveLen(1))
		})

		It("treats an empty block list as invalid", func() {
			generator.generateFn = textResponse(`{"blocks": []}`)

			answer, err := p.Structured(ctx, "q", 3, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal(pipeline.InvalidResponseNotice))
		})

		It("substitutes a notice block when generation fails", func() {
			generator.generateFn = func(context.Context, llm.Request) (*llm.Response, error) {
				return nil, errors.New("timeout")
			}

			answer, err := p.Structured(ctx, "q", 3, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(answer.Text).To(Equal(pipeline.GenerationErrorNotice))
			Expect(poster.posts[0].blocks).To(HaveLen(1))
		})
	})
})

var _ = Describe("ParseBlocks", func() {
	It("repairs a trailing comma", func() {
		blocks, err := pipeline.ParseBlocks(`{"blocks": [{"type": "divider"},]}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(blockTypes(blocks)).To(Equal([]slack.MessageBlockType{slack.MBTDivider}))
	})

	It("accepts a bare fence", func() {
		blocks, err := pipeline.ParseBlocks("```\n{\"blocks\": [{\"type\": \"divider\"}]}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(blocks).To(HaveLen(1))
	})
})

var _ = Describe("Summarize", func() {
	It("falls back when there are no sections", func() {
		Expect(pipeline.Summarize([]slack.Block{slack.NewDividerBlock()})).To(Equal(pipeline.MissingSummaryAnswer))
	})
})
