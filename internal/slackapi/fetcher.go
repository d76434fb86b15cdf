package slackapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"basegraph.app/synapse/common/logger"
)

const (
	MethodHistory = "conversations.history"
	MethodReplies = "conversations.replies"

	PageLimit         = 200
	DefaultRetryAfter = 20 * time.Second
	DefaultPageDelay  = 1200 * time.Millisecond
)

// APIError is a non-rate-limit "ok": false response. It aborts the whole
// fetch; items gathered from earlier pages are discarded.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

type FetcherConfig struct {
	BaseURL    string
	Token      string
	PageDelay  time.Duration // minimum spacing between page requests; zero disables it
	HTTPClient *http.Client
	// Sleep waits out a Retry-After interval. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetcher walks cursor-paginated Slack Web API methods that return a
// "messages" array.
type Fetcher struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://slack.com/api"
	}

	return &Fetcher{
		baseURL: baseURL,
		token:   cfg.Token,
		http:    client,
		limiter: rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		sleep:   sleep,
	}
}

type page struct {
	slack.SlackResponse
	Messages []slack.Message `json:"messages"`
}

type pageOutcome int

const (
	pageOK pageOutcome = iota
	pageRateLimited
	pageTransportFailed
)

// Fetch returns every item across all pages of method, in server order.
//
// A rate-limited page is retried after the server's Retry-After interval.
// An API error returns *APIError and no items. A transport failure stops
// the walk and returns what was collected so far with a nil error.
func (f *Fetcher) Fetch(ctx context.Context, method string, params url.Values) ([]slack.Message, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "synapse.slackapi.fetcher",
	})

	var items []slack.Message
	cursor := ""
	pages := 0

	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		query := url.Values{}
		for k, v := range params {
			query[k] = append([]string(nil), v...)
		}
		query.Set("limit", strconv.Itoa(PageLimit))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		pg, outcome, retryAfter, err := f.fetchPage(ctx, method, query)
		if err != nil {
			return nil, err
		}

		switch outcome {
		case pageRateLimited:
			slog.WarnContext(ctx, "rate limited, retrying page",
				"method", method,
				"retry_after", retryAfter,
				"page", pages+1)
			if err := f.sleep(ctx, retryAfter); err != nil {
				return nil, err
			}
			continue
		case pageTransportFailed:
			slog.WarnContext(ctx, "fetch stopped early, returning partial results",
				"method", method,
				"pages", pages,
				"items", len(items))
			return items, nil
		}

		pages++
		items = append(items, pg.Messages...)

		cursor = pg.ResponseMetadata.Cursor
		if cursor == "" {
			break
		}
	}

	slog.DebugContext(ctx, "fetch completed",
		"method", method,
		"pages", pages,
		"items", len(items))

	return items, nil
}

// History fetches channel messages newer than oldest.
func (f *Fetcher) History(ctx context.Context, channelID string, oldest time.Time) ([]slack.Message, error) {
	return f.Fetch(ctx, MethodHistory, url.Values{
		"channel": {channelID},
		"oldest":  {strconv.FormatFloat(float64(oldest.UnixMicro())/1e6, 'f', 6, 64)},
	})
}

// Replies fetches a thread. The first item is the root message itself.
func (f *Fetcher) Replies(ctx context.Context, channelID, threadTS string) ([]slack.Message, error) {
	return f.Fetch(ctx, MethodReplies, url.Values{
		"channel": {channelID},
		"ts":      {threadTS},
	})
}

// fetchPage performs one request. The returned error is non-nil only for
// API errors and context cancellation.
func (f *Fetcher) fetchPage(ctx context.Context, method string, query url.Values) (page, pageOutcome, time.Duration, error) {
	var pg page

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/"+method+"?"+query.Encode(), nil)
	if err != nil {
		return pg, pageOK, 0, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pg, pageOK, 0, ctx.Err()
		}
		slog.WarnContext(ctx, "network error during fetch", "method", method, "error", err)
		return pg, pageTransportFailed, 0, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return pg, pageRateLimited, retryAfter(resp.Header), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.WarnContext(ctx, "unexpected status during fetch", "method", method, "status", resp.StatusCode)
		return pg, pageTransportFailed, 0, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(&pg); err != nil {
		slog.WarnContext(ctx, "undecodable page during fetch", "method", method, "error", err)
		return pg, pageTransportFailed, 0, nil
	}

	if !pg.Ok {
		if pg.Error == "ratelimited" {
			return pg, pageRateLimited, retryAfter(resp.Header), nil
		}
		code := pg.Error
		if code == "" {
			code = "unknown"
		}
		return pg, pageOK, 0, &APIError{Method: method, Code: code}
	}

	return pg, pageOK, 0, nil
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs < 0 {
		return DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
