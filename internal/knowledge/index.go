package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
)

// DefaultTopK is the number of matches returned when the caller asks for none.
const DefaultTopK = 3

// ErrEmbeddingMismatch means the index was built by a different embedding
// model than the one now in use.
var ErrEmbeddingMismatch = errors.New("embedding space mismatch")

type VectorStore interface {
	Upsert(ctx context.Context, chunk model.KnowledgeChunk, embedding []float32) error
	Query(ctx context.Context, embedding []float32, k int) ([]model.Match, error)
	EmbeddingSpace(ctx context.Context) (model.EmbeddingSpace, bool, error)
	ClaimEmbeddingSpace(ctx context.Context, space model.EmbeddingSpace) (model.EmbeddingSpace, error)
}

// Index owns the embedding model and the vector store. One Embedder serves
// both ingestion and queries.
type Index struct {
	embedder llm.Embedder
	store    VectorStore
}

func NewIndex(embedder llm.Embedder, store VectorStore) *Index {
	return &Index{embedder: embedder, store: store}
}

// Ingest embeds the thread's chunk and upserts it under the root timestamp.
// Concurrent ingests of the same thread race; the last upsert wins.
func (i *Index) Ingest(ctx context.Context, t model.Thread) error {
	chunk := Chunk(t)

	span := logger.StartSpan(ctx, "knowledge.ingest")
	defer span.End()
	ctx = span.Context()
	span.SetAttributes(attribute.String("chunk.id", chunk.ID))

	vec, err := i.embedder.Embed(ctx, chunk.Document)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embedding thread %s: %w", chunk.ID, err)
	}

	space := model.EmbeddingSpace{Embedder: i.embedder.Name(), Dimensions: len(vec)}
	stored, err := i.store.ClaimEmbeddingSpace(ctx, space)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking embedding space: %w", err)
	}
	if stored != space {
		err := fmt.Errorf("%w: index holds %s/%d, embedder is %s/%d",
			ErrEmbeddingMismatch, stored.Embedder, stored.Dimensions, space.Embedder, space.Dimensions)
		span.RecordError(err)
		return err
	}

	if err := i.store.Upsert(ctx, chunk, vec); err != nil {
		span.RecordError(err)
		return err
	}

	slog.DebugContext(ctx, "thread indexed",
		"chunk_id", chunk.ID,
		"document_chars", len(chunk.Document),
		"reply_count", chunk.Metadata.ReplyCount)

	return nil
}

// Query embeds question and returns the k nearest chunks, nearest first.
// An empty index yields an empty result.
func (i *Index) Query(ctx context.Context, question string, k int) (model.RetrievalResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	span := logger.StartSpan(ctx, "knowledge.query")
	defer span.End()
	ctx = span.Context()
	span.SetAttributes(attribute.Int("query.k", k))

	stored, ok, err := i.store.EmbeddingSpace(ctx)
	if err != nil {
		span.RecordError(err)
		return model.RetrievalResult{}, fmt.Errorf("checking embedding space: %w", err)
	}
	if !ok {
		return model.RetrievalResult{}, nil
	}

	vec, err := i.embedder.Embed(ctx, question)
	if err != nil {
		span.RecordError(err)
		return model.RetrievalResult{}, fmt.Errorf("embedding question: %w", err)
	}
	if stored.Embedder != i.embedder.Name() || stored.Dimensions != len(vec) {
		err := fmt.Errorf("%w: index holds %s/%d, embedder is %s/%d",
			ErrEmbeddingMismatch, stored.Embedder, stored.Dimensions, i.embedder.Name(), len(vec))
		span.RecordError(err)
		return model.RetrievalResult{}, err
	}

	matches, err := i.store.Query(ctx, vec, k)
	if err != nil {
		span.RecordError(err)
		return model.RetrievalResult{}, err
	}

	span.SetAttributes(attribute.Int("query.matches", len(matches)))
	return model.RetrievalResult{Matches: matches}, nil
}
