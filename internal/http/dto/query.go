package dto

import (
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/pipeline"
)

type QueryRequest struct {
	Query    string `json:"query" binding:"required"`
	TopK     int    `json:"top_k,omitempty" binding:"omitempty,min=1,max=50"`
	UserName string `json:"user_name,omitempty"`
}

type SourceResponse struct {
	Document string              `json:"document"`
	Metadata model.ChunkMetadata `json:"metadata"`
	Distance float64             `json:"distance"`
}

type QueryResponse struct {
	Answer     string                    `json:"answer"`
	Sources    []SourceResponse          `json:"sources"`
	Escalation *model.EscalationDecision `json:"escalation,omitempty"`
	Posted     bool                      `json:"posted"`
}

func ToQueryResponse(a *pipeline.Answer) QueryResponse {
	sources := make([]SourceResponse, len(a.Sources))
	for i, m := range a.Sources {
		sources[i] = SourceResponse{
			Document: m.Document,
			Metadata: m.Metadata,
			Distance: m.Distance,
		}
	}
	return QueryResponse{
		Answer:     a.Text,
		Sources:    sources,
		Escalation: a.Escalation,
		Posted:     a.Posted,
	}
}
