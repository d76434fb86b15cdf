package knowledge_test

import (
	"context"
	"errors"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/internal/knowledge"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/store"
)

func message(ts, author, text string, isReply bool) model.Message {
	return model.Message{TS: ts, DateTimeUTC: model.FormatTS(ts), Author: author, Text: text, IsReply: isReply}
}

var _ = Describe("Chunk", func() {
	It("serializes a root without replies", func() {
		chunk := knowledge.Chunk(model.Thread{Root: message("100.0", "Ana", "  deploy done  ", false)})
		Expect(chunk.ID).To(Equal("100.0"))
		Expect(chunk.Document).To(Equal("User 'Ana' started a thread:\n  deploy done"))
	})

	It("appends replies after the separator", func() {
		root := message("100.0", "Ana", "Payment failing, ref PAY-102", false)
		root.ReplyCount = 2
		t := model.Thread{
			Root: root,
			Replies: []model.Message{
				message("101.0", "Bruno", "Looking", true),
				message("102.0", "Chen", "Fixed", true),
			},
		}

		chunk := knowledge.Chunk(t)

		Expect(chunk.Document).To(Equal(
			"User 'Ana' started a thread:\nPayment failing, ref PAY-102\n" +
				"\n--- Replies ---\n" +
				"User 'Bruno' replied:\nLooking\n" +
				"User 'Chen' replied:\nFixed"))
		Expect(chunk.Metadata).To(Equal(model.ChunkMetadata{
			Author:      "Ana",
			DateTimeUTC: "1970-01-01T00:01:40",
			ReplyCount:  2,
			Source:      "slack",
		}))
	})
})

var _ = Describe("Index", func() {
	var (
		ctx      context.Context
		embedder *wordEmbedder
		vs       *store.SQLiteVectorStore
		index    *knowledge.Index
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &wordEmbedder{name: "test:words", dims: 64}
		var err error
		vs, err = store.NewSQLiteVectorStore(ctx, filepath.Join(GinkgoT().TempDir(), "index.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(vs.Close)
		index = knowledge.NewIndex(embedder, vs)
	})

	It("returns an empty result for an empty index without embedding", func() {
		result, err := index.Query(ctx, "anything", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Empty()).To(BeTrue())
		Expect(embedder.calls).To(BeEmpty())
	})

	It("keeps one chunk per thread across re-ingestion", func() {
		t := model.Thread{Root: message("100.0", "Ana", "Payment failing", false)}
		Expect(index.Ingest(ctx, t)).To(Succeed())

		t.Root.Text = "Payment failing, resolved by rollback"
		Expect(index.Ingest(ctx, t)).To(Succeed())

		Expect(vs.Count(ctx)).To(Equal(1))
		got, err := vs.Get(ctx, "100.0")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Document).To(ContainSubstring("resolved by rollback"))
	})

	It("ranks the related thread first", func() {
		Expect(index.Ingest(ctx, model.Thread{Root: message("100.0", "Ana", "Payment failing at checkout", false)})).To(Succeed())
		Expect(index.Ingest(ctx, model.Thread{Root: message("200.0", "Bruno", "Staging deploy stuck", false)})).To(Succeed())

		result, err := index.Query(ctx, "is payment failing", 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Matches).To(HaveLen(2))
		Expect(result.Matches[0].ID).To(Equal("100.0"))
		Expect(result.Matches[0].Distance).To(BeNumerically("<", result.Matches[1].Distance))
	})

	It("refuses a different embedder than the one that built the index", func() {
		Expect(index.Ingest(ctx, model.Thread{Root: message("100.0", "Ana", "hello", false)})).To(Succeed())

		other := knowledge.NewIndex(&wordEmbedder{name: "test:other", dims: 64}, vs)

		_, err := other.Query(ctx, "hello", 3)
		Expect(errors.Is(err, knowledge.ErrEmbeddingMismatch)).To(BeTrue())

		err = other.Ingest(ctx, model.Thread{Root: message("200.0", "Ana", "hi", false)})
		Expect(errors.Is(err, knowledge.ErrEmbeddingMismatch)).To(BeTrue())
	})
})
