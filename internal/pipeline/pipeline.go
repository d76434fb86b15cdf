package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
)

const (
	ModeNarrative  = "narrative"
	ModeStructured = "structured"

	NoResultsAnswer = "I couldn't find any relevant information in the knowledge base."
	DefaultUserName = "Team Member"
)

type Retriever interface {
	Query(ctx context.Context, question string, k int) (model.RetrievalResult, error)
}

type Poster interface {
	PostBlocks(ctx context.Context, channelID string, blocks []slack.Block, fallback string) error
}

// UsergroupSource exposes the workspace's group ID to handle map.
type UsergroupSource interface {
	LoadGroups(ctx context.Context)
	Groups() map[string]string
}

type Config struct {
	EscalationChannelID string
	RoutingTable        map[string]string // keyword -> on-call handle
}

// Answer is the outcome of one question. Escalation is set only in
// narrative mode when retrieval found context.
type Answer struct {
	Text       string
	Sources    []model.Match
	Escalation *model.EscalationDecision
	Posted     bool
}

// Pipeline answers questions from the knowledge index and posts the
// analysis to the escalation channel. Each call makes one generation
// attempt and always returns an answer unless retrieval itself fails.
type Pipeline struct {
	retriever Retriever
	generator llm.Generator
	poster    Poster
	groups    UsergroupSource
	cfg       Config
}

func New(retriever Retriever, generator llm.Generator, poster Poster, groups UsergroupSource, cfg Config) *Pipeline {
	return &Pipeline{
		retriever: retriever,
		generator: generator,
		poster:    poster,
		groups:    groups,
		cfg:       cfg,
	}
}

// Retrieve returns the k chunks nearest to question. Both modes share it.
func (p *Pipeline) Retrieve(ctx context.Context, question string, k int) (model.RetrievalResult, error) {
	result, err := p.retriever.Query(ctx, question, k)
	if err != nil {
		return model.RetrievalResult{}, fmt.Errorf("retrieving context: %w", err)
	}

	slog.InfoContext(ctx, "context retrieved",
		"matches", len(result.Matches),
		"question", logger.Truncate(question, 120))

	return result, nil
}

func (p *Pipeline) post(ctx context.Context, blocks []slack.Block, fallback string) bool {
	if p.cfg.EscalationChannelID == "" {
		slog.WarnContext(ctx, "escalation channel not configured, skipping post")
		return false
	}
	if err := p.poster.PostBlocks(ctx, p.cfg.EscalationChannelID, blocks, fallback); err != nil {
		slog.ErrorContext(ctx, "failed to post escalation",
			"channel_id", p.cfg.EscalationChannelID,
			"error", err)
		return false
	}
	slog.InfoContext(ctx, "escalation posted",
		"channel_id", p.cfg.EscalationChannelID,
		"blocks", len(blocks))
	return true
}

func withMode(ctx context.Context, mode string) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		QueryMode: &mode,
		Component: "synapse.pipeline",
	})
}

func userNameOr(name string) string {
	if name == "" {
		return DefaultUserName
	}
	return name
}

// encodeJSON renders v without HTML escaping; prompts are read by a model,
// not a browser.
func encodeJSON(v any, indent bool) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
