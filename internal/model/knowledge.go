package model

const SourceSlack = "slack"

type ChunkMetadata struct {
	Author      string `json:"user"`
	DateTimeUTC string `json:"datetime_utc"`
	ReplyCount  int    `json:"reply_count"`
	Source      string `json:"source"`
}

// KnowledgeChunk is the text serialization of one thread, keyed by the
// thread's root timestamp.
type KnowledgeChunk struct {
	ID       string        `json:"id"`
	Document string        `json:"document"`
	Metadata ChunkMetadata `json:"metadata"`
}

type Match struct {
	ID       string        `json:"-"`
	Document string        `json:"document"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}

// RetrievalResult holds matches nearest-first.
type RetrievalResult struct {
	Matches []Match `json:"matches"`
}

func (r RetrievalResult) Empty() bool {
	return len(r.Matches) == 0
}

func (r RetrievalResult) Documents() []string {
	docs := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		docs[i] = m.Document
	}
	return docs
}

// EscalationDecision is the on-call handle a narrative answer routes to.
type EscalationDecision struct {
	Handle   string `json:"handle"`
	Fallback bool   `json:"fallback"`
}

// EmbeddingSpace identifies the model that produced an index's vectors.
// Documents and queries must share one.
type EmbeddingSpace struct {
	Embedder   string `json:"embedder"`
	Dimensions int    `json:"dimensions"`
}
