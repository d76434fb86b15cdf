package service

import (
	"context"
	"errors"
	"strings"

	"basegraph.app/synapse/internal/knowledge"
	"basegraph.app/synapse/internal/pipeline"
)

var ErrEmptyQuery = errors.New("query is required")

type QueryParams struct {
	Query    string
	TopK     int
	UserName string
}

type QueryPipeline interface {
	Narrative(ctx context.Context, question string, k int, userName string) (*pipeline.Answer, error)
	Structured(ctx context.Context, question string, k int, userName string) (*pipeline.Answer, error)
}

// QueryService answers questions from the knowledge base in either
// generation mode.
type QueryService interface {
	Narrative(ctx context.Context, params QueryParams) (*pipeline.Answer, error)
	Structured(ctx context.Context, params QueryParams) (*pipeline.Answer, error)
}

type queryService struct {
	pipeline QueryPipeline
}

func NewQueryService(p QueryPipeline) QueryService {
	return &queryService{pipeline: p}
}

func (s *queryService) Narrative(ctx context.Context, params QueryParams) (*pipeline.Answer, error) {
	q, k, err := normalize(params)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Narrative(ctx, q, k, params.UserName)
}

func (s *queryService) Structured(ctx context.Context, params QueryParams) (*pipeline.Answer, error) {
	q, k, err := normalize(params)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Structured(ctx, q, k, params.UserName)
}

func normalize(params QueryParams) (string, int, error) {
	q := strings.TrimSpace(params.Query)
	if q == "" {
		return "", 0, ErrEmptyQuery
	}
	k := params.TopK
	if k <= 0 {
		k = knowledge.DefaultTopK
	}
	return q, k, nil
}
