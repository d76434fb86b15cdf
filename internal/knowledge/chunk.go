package knowledge

import (
	"fmt"
	"strings"

	"basegraph.app/synapse/internal/model"
)

// Chunk serializes a thread into the document text stored in the index.
func Chunk(t model.Thread) model.KnowledgeChunk {
	var b strings.Builder
	fmt.Fprintf(&b, "User '%s' started a thread:\n%s\n", t.Root.Author, t.Root.Text)
	if len(t.Replies) > 0 {
		b.WriteString("\n--- Replies ---\n")
		for _, r := range t.Replies {
			fmt.Fprintf(&b, "User '%s' replied:\n%s\n", r.Author, r.Text)
		}
	}

	return model.KnowledgeChunk{
		ID:       t.ID(),
		Document: strings.TrimSpace(b.String()),
		Metadata: model.ChunkMetadata{
			Author:      t.Root.Author,
			DateTimeUTC: t.Root.DateTimeUTC,
			ReplyCount:  t.Root.ReplyCount,
			Source:      model.SourceSlack,
		},
	}
}
