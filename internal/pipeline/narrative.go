package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/slack-go/slack"

	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
)

const (
	FallbackHandle        = "@on-call-team"
	GenerationErrorAnswer = "Sorry, I encountered an error while generating the answer."
)

var handleRe = regexp.MustCompile(`@[\w-]+`)

// ExtractHandle returns the first @handle in answer, or the fallback handle.
func ExtractHandle(answer string) model.EscalationDecision {
	if h := handleRe.FindString(answer); h != "" {
		return model.EscalationDecision{Handle: h}
	}
	return model.EscalationDecision{Handle: FallbackHandle, Fallback: true}
}

// Narrative generates a free-text analysis, picks the on-call handle from
// it and posts an escalation message.
func (p *Pipeline) Narrative(ctx context.Context, question string, k int, userName string) (*Answer, error) {
	ctx = withMode(ctx, ModeNarrative)

	result, err := p.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	if result.Empty() {
		return &Answer{Text: NoResultsAnswer}, nil
	}

	prompt := renderNarrativePrompt(question, result.Documents(), p.cfg.RoutingTable, userNameOr(userName))

	span := logger.StartSpan(ctx, "pipeline.narrative.generate")
	resp, err := p.generator.Generate(span.Context(), llm.Request{Prompt: prompt})
	text := GenerationErrorAnswer
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "narrative generation failed", "error", err)
	} else {
		text = resp.Text
	}
	span.End()

	decision := ExtractHandle(text)
	slog.InfoContext(ctx, "on-call handle selected",
		"handle", decision.Handle,
		"fallback", decision.Fallback)

	posted := p.post(ctx, escalationBlocks(question, text, decision.Handle, result.Matches),
		"New Escalation: "+question)

	return &Answer{
		Text:       text,
		Sources:    result.Matches,
		Escalation: &decision,
		Posted:     posted,
	}, nil
}

func renderNarrativePrompt(question string, documents []string, routing map[string]string, userName string) string {
	return strings.NewReplacer(
		"__USER_NAME__", userName,
		"__QUESTION__", question,
		"__CONTEXT_DOCUMENTS__", encodeJSON(documents, true),
		"__ROUTING_TABLE__", encodeJSON(routing, true),
	).Replace(narrativePrompt)
}

func escalationBlocks(question, analysis, handle string, sources []model.Match) []slack.Block {
	mostRelevant := "No specific past incident found."
	if len(sources) > 0 {
		mostRelevant = sources[0].Document
	}

	mrkdwn := func(text string) *slack.TextBlockObject {
		return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
	}

	return []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "🚨 New Issue Escalation", true, false)),
		slack.NewSectionBlock(mrkdwn(fmt.Sprintf("A new issue has been raised and requires attention from *%s*.", handle)), nil, nil),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{mrkdwn("*User's Query:*\n> " + question)}, nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(mrkdwn("*AI Analysis & Suggested Next Steps:*\n"+analysis), nil, nil),
		slack.NewDividerBlock(),
		slack.NewContextBlock("", mrkdwn("*Most Relevant Past Incident for Context:*\n```"+mostRelevant+"```")),
	}
}
