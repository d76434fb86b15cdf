package resolver

import (
	"context"
	"regexp"
	"strings"

	"basegraph.app/synapse/internal/model"
)

var (
	userMentionRe  = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	groupMentionRe = regexp.MustCompile(`<!subteam\^([A-Z0-9]+)(?:\|([^>]+))?>`)
	urlRe          = regexp.MustCompile(`https?://[^\s<>"']+`)
	ticketRe       = regexp.MustCompile(`\b([A-Z]{2,6}-\d{1,6})\b`)

	broadcastReplacer = strings.NewReplacer(
		"<!here>", "@here",
		"<!channel>", "@channel",
		"<!everyone>", "@everyone",
	)
)

// Resolver rewrites raw mention markup into readable names.
type Resolver struct {
	cache *ReferenceCache
}

func New(cache *ReferenceCache) *Resolver {
	return &Resolver{cache: cache}
}

// Resolve replaces user mentions with "@<display name>", usergroup mentions
// with "@<handle>" (falling back to the inline label, then the raw ID),
// and broadcast keywords with their literal form.
func (r *Resolver) Resolve(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}

	text = userMentionRe.ReplaceAllStringFunc(text, func(m string) string {
		id := userMentionRe.FindStringSubmatch(m)[1]
		return "@" + r.cache.UserName(ctx, id)
	})

	text = groupMentionRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := groupMentionRe.FindStringSubmatch(m)
		id, label := sub[1], sub[2]
		if handle, ok := r.cache.GroupHandle(id); ok {
			return "@" + handle
		}
		if label != "" {
			return "@" + label
		}
		return "@" + id
	})

	return broadcastReplacer.Replace(text)
}

// ExtractLinks returns every URL in text with its classification.
func ExtractLinks(text string) []model.Link {
	urls := urlRe.FindAllString(text, -1)
	if len(urls) == 0 {
		return nil
	}
	links := make([]model.Link, len(urls))
	for i, u := range urls {
		links[i] = model.Link{URL: u, Type: ClassifyLink(u)}
	}
	return links
}

func ClassifyLink(u string) model.LinkType {
	switch {
	case strings.Contains(u, "docs.google.com"):
		return model.LinkTypeGoogleDoc
	case strings.Contains(u, "atlassian.net/wiki"), strings.Contains(u, "confluence"):
		return model.LinkTypeConfluence
	case strings.Contains(u, "jira"), strings.Contains(u, "atlassian.net/browse"):
		return model.LinkTypeJira
	default:
		return model.LinkTypeOther
	}
}

// ExtractTicketIDs returns distinct ticket identifiers in first-seen order.
func ExtractTicketIDs(text string) []string {
	matches := ticketRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, id := range matches {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
