package service_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/internal/knowledge"
	"basegraph.app/synapse/internal/pipeline"
	"basegraph.app/synapse/internal/resolver"
	"basegraph.app/synapse/internal/service"
	"basegraph.app/synapse/internal/service/issue_tracker"
	"basegraph.app/synapse/internal/slackapi"
	"basegraph.app/synapse/internal/store"
	"basegraph.app/synapse/internal/thread"
)

type fixedGenerator struct {
	prompts []string
	text    string
}

func (g *fixedGenerator) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	g.prompts = append(g.prompts, req.Prompt)
	return &llm.Response{Text: g.text}, nil
}

func (g *fixedGenerator) Model() string {
	return "fixed"
}

func slackJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var _ = Describe("ingest then query", func() {
	var (
		ctx      context.Context
		posts    []url.Values
		jiraHits int
		ingest   service.IngestService
		query    service.QueryService
		gen      *fixedGenerator
	)

	BeforeEach(func() {
		ctx = context.Background()
		posts = nil
		jiraHits = 0

		mux := http.NewServeMux()
		mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, _ *http.Request) {
			slackJSON(w, map[string]any{"ok": true, "messages": []map[string]any{
				{"ts": "1709287200.000100", "thread_ts": "1709287200.000100", "user": "U1", "reply_count": 2,
					"text": "Card payments failing at checkout, see PAY-102 <!subteam^S1>"},
				{"ts": "1709287300.000200", "user": "U2", "subtype": "channel_join", "text": "<@U2> has joined"},
				{"ts": "1709290800.000300", "user": "U2", "text": "Lead import from the CRM is stuck"},
			}})
		})
		mux.HandleFunc("/conversations.replies", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Query().Get("ts")).To(Equal("1709287200.000100"))
			slackJSON(w, map[string]any{"ok": true, "messages": []map[string]any{
				{"ts": "1709287200.000100", "thread_ts": "1709287200.000100", "user": "U1",
					"text": "Card payments failing at checkout, see PAY-102 <!subteam^S1>"},
				{"ts": "1709287260.000100", "thread_ts": "1709287200.000100", "user": "U2",
					"text": "Rolled back the gateway deploy, payments recovering"},
				{"ts": "1709287320.000100", "thread_ts": "1709287200.000100", "user": "U3",
					"text": "Confirmed, checkout success rate is back to normal"},
			}})
		})
		mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
			names := map[string]string{"U1": "Ana Lima", "U2": "Ben Ode", "U3": "Cara Diaz"}
			uid := r.FormValue("user")
			slackJSON(w, map[string]any{"ok": true, "user": map[string]any{"id": uid, "real_name": names[uid]}})
		})
		mux.HandleFunc("/usergroups.list", func(w http.ResponseWriter, _ *http.Request) {
			slackJSON(w, map[string]any{"ok": true, "usergroups": []map[string]any{{"id": "S1", "handle": "pay-oncall"}}})
		})
		mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			form, _ := url.ParseQuery(string(body))
			posts = append(posts, form)
			slackJSON(w, map[string]any{"ok": true, "channel": form.Get("channel"), "ts": "1.0"})
		})
		mux.HandleFunc("/rest/api/3/issue/PAY-102", func(w http.ResponseWriter, _ *http.Request) {
			jiraHits++
			slackJSON(w, map[string]any{"key": "PAY-102", "fields": map[string]any{
				"summary": "Card payments failing",
			}})
		})
		server := httptest.NewServer(mux)
		DeferCleanup(server.Close)

		vectors, err := store.NewSQLiteVectorStore(ctx, filepath.Join(GinkgoT().TempDir(), "index.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(vectors.Close)

		client := slackapi.NewClient(slackapi.ClientConfig{BaseURL: server.URL, Token: "xoxb-test"})
		fetcher := slackapi.NewFetcher(slackapi.FetcherConfig{BaseURL: server.URL, Token: "xoxb-test"})
		cache := resolver.NewReferenceCache(client)
		tickets := issue_tracker.NewEnricher(issue_tracker.NewJiraIssueTrackerService(issue_tracker.JiraConfig{
			BaseURL:   server.URL,
			UserEmail: "bot@example.com",
			APIToken:  "secret",
		}))
		index := knowledge.NewIndex(wordEmbedder{}, vectors)

		ingest = service.NewIngestService(fetcher, cache, thread.NewAssembler(resolver.New(cache), cache, tickets), index)

		gen = &fixedGenerator{text: "Likely a gateway regression like PAY-102. Escalate to @pay-oncall."}
		query = service.NewQueryService(pipeline.New(index, gen, client, cache, pipeline.Config{
			EscalationChannelID: "C-ESC",
			RoutingTable:        map[string]string{"payment": "@pay-oncall"},
		}))
	})

	It("indexes every thread and escalates to the handle the answer names", func() {
		result, err := ingest.IngestChannel(ctx, "C1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ThreadsProcessed).To(Equal(2))
		Expect(jiraHits).To(Equal(1))

		answer, err := query.Narrative(ctx, service.QueryParams{
			Query:    "card payments failing at checkout",
			TopK:     1,
			UserName: "Chris",
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(answer.Sources).To(HaveLen(1))
		Expect(answer.Sources[0].ID).To(Equal("1709287200.000100"))
		Expect(answer.Sources[0].Document).To(ContainSubstring("User 'Ana Lima' started a thread:"))
		Expect(answer.Sources[0].Document).To(ContainSubstring("@pay-oncall"))
		Expect(answer.Sources[0].Document).To(MatchRegexp(
			`(?s)User 'Ben Ode' replied:.*Rolled back the gateway deploy.*User 'Cara Diaz' replied:.*back to normal`))

		Expect(answer.Escalation.Handle).To(Equal("@pay-oncall"))
		Expect(answer.Escalation.Fallback).To(BeFalse())
		Expect(answer.Posted).To(BeTrue())

		Expect(gen.prompts).To(HaveLen(1))
		Expect(gen.prompts[0]).To(ContainSubstring("Chris"))
		Expect(gen.prompts[0]).To(ContainSubstring("card payments failing at checkout"))

		Expect(posts).To(HaveLen(1))
		Expect(posts[0].Get("channel")).To(Equal("C-ESC"))
		Expect(posts[0].Get("blocks")).To(ContainSubstring("@pay-oncall"))
	})

	It("re-ingesting the channel keeps one chunk per thread", func() {
		_, err := ingest.IngestChannel(ctx, "C1", 3)
		Expect(err).NotTo(HaveOccurred())
		_, err = ingest.IngestChannel(ctx, "C1", 3)
		Expect(err).NotTo(HaveOccurred())

		answer, err := query.Narrative(ctx, service.QueryParams{Query: "lead import crm", TopK: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(answer.Sources).To(HaveLen(2))
		Expect(answer.Sources[0].ID).To(Equal("1709290800.000300"))
	})
})
