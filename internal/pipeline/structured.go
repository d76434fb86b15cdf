package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/slack-go/slack"

	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/common/logger"
)

const (
	InvalidResponseNotice = "Sorry, the AI returned an invalid response. Please check the server logs."
	GenerationErrorNotice = "An unexpected error occurred while generating the analysis."
	MissingSummaryAnswer  = "Analysis was posted to Slack, but a text summary could not be generated."
)

var errNoBlocks = errors.New("response contained no blocks")

// blockDocument is the JSON object the structured prompt asks for.
type blockDocument struct {
	Blocks slack.Blocks `json:"blocks"`
}

// schema types describe blockDocument to the model; slack.Blocks itself
// does not reflect into a useful schema.
type schemaDocument struct {
	Blocks []schemaBlock `json:"blocks"`
}

type schemaBlock struct {
	Type     string       `json:"type" jsonschema:"enum=header,enum=section,enum=divider,enum=context"`
	Text     *schemaText  `json:"text,omitempty"`
	Fields   []schemaText `json:"fields,omitempty"`
	Elements []schemaText `json:"elements,omitempty"`
}

type schemaText struct {
	Type string `json:"type" jsonschema:"enum=plain_text,enum=mrkdwn"`
	Text string `json:"text"`
}

var blockSchemaJSON = encodeJSON(llm.GenerateSchema[schemaDocument](), false)

// Structured asks the model for ready-to-post Block Kit JSON, posts it and
// returns the text of its section blocks. Malformed output is replaced by
// a single notice block.
func (p *Pipeline) Structured(ctx context.Context, question string, k int, userName string) (*Answer, error) {
	ctx = withMode(ctx, ModeStructured)

	result, err := p.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	if result.Empty() {
		return &Answer{Text: NoResultsAnswer}, nil
	}

	var groups map[string]string
	if p.groups != nil {
		p.groups.LoadGroups(ctx)
		groups = p.groups.Groups()
	}

	prompt := strings.NewReplacer(
		"__BLOCK_SCHEMA__", blockSchemaJSON,
		"__QUESTION__", encodeJSON(question, false),
		"__CONTEXT_DOCUMENTS__", encodeJSON(result.Documents(), false),
		"__USER_NAME__", encodeJSON(userNameOr(userName), false),
		"__USERGROUP_CACHE__", encodeJSON(groups, false),
	).Replace(structuredPrompt)

	blocks := p.generateBlocks(ctx, prompt)

	posted := p.post(ctx, blocks, "Synapse AI Analysis for: "+question)

	return &Answer{
		Text:    Summarize(blocks),
		Sources: result.Matches,
		Posted:  posted,
	}, nil
}

func (p *Pipeline) generateBlocks(ctx context.Context, prompt string) []slack.Block {
	span := logger.StartSpan(ctx, "pipeline.structured.generate")
	defer span.End()
	ctx = span.Context()

	resp, err := p.generator.Generate(ctx, llm.Request{Prompt: prompt, JSON: true})
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "structured generation failed", "error", err)
		return noticeBlocks(GenerationErrorNotice)
	}

	blocks, err := ParseBlocks(resp.Text)
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "model did not return valid block JSON",
			"error", err,
			"raw_response", logger.Truncate(resp.Text, 2000))
		return noticeBlocks(InvalidResponseNotice)
	}
	return blocks
}

// ParseBlocks decodes a {"blocks": [...]} document, tolerating a
// surrounding code fence. Output that does not decode gets one repair
// attempt before it is rejected.
func ParseBlocks(raw string) ([]slack.Block, error) {
	text := stripFence(raw)

	blocks, err := decodeBlocks(text)
	if err == nil {
		return blocks, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(text)
	if repairErr != nil {
		return nil, fmt.Errorf("decoding blocks: %w", err)
	}
	blocks, err = decodeBlocks(repaired)
	if err != nil {
		return nil, fmt.Errorf("decoding repaired blocks: %w", err)
	}
	return blocks, nil
}

func decodeBlocks(text string) ([]slack.Block, error) {
	var doc blockDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, err
	}
	if len(doc.Blocks.BlockSet) == 0 {
		return nil, errNoBlocks
	}
	return doc.Blocks.BlockSet, nil
}

func stripFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func noticeBlocks(notice string) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, notice, false, false), nil, nil),
	}
}

// Summarize joins the text of every section block.
func Summarize(blocks []slack.Block) string {
	var parts []string
	for _, b := range blocks {
		var section *slack.SectionBlock
		switch v := b.(type) {
		case *slack.SectionBlock:
			section = v
		case slack.SectionBlock:
			section = &v
		default:
			continue
		}
		text := ""
		if section.Text != nil {
			text = section.Text.Text
		}
		parts = append(parts, text)
	}

	summary := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if summary == "" {
		return MissingSummaryAnswer
	}
	return summary
}
