package thread

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"

	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/internal/model"
	"basegraph.app/synapse/internal/resolver"
)

// Subtypes that still carry human-written content. Every other subtype is
// a system or bot event and is left out of the knowledge base.
var allowedSubtypes = map[string]bool{
	"file_share":       true,
	"thread_broadcast": true,
}

type MentionResolver interface {
	Resolve(ctx context.Context, text string) string
}

type UserNamer interface {
	UserName(ctx context.Context, userID string) string
}

type TicketEnricher interface {
	Enrich(ctx context.Context, ticketID string) (*model.TicketReference, bool)
}

// Assembler turns raw Slack messages into resolved, enriched threads.
type Assembler struct {
	mentions MentionResolver
	users    UserNamer
	tickets  TicketEnricher
}

func NewAssembler(mentions MentionResolver, users UserNamer, tickets TicketEnricher) *Assembler {
	return &Assembler{mentions: mentions, users: users, tickets: tickets}
}

// IsThreadRoot reports whether raw starts a thread (or stands alone).
// Replies carry a thread_ts different from their own ts.
func IsThreadRoot(raw slack.Message) bool {
	return raw.ThreadTimestamp == "" || raw.ThreadTimestamp == raw.Timestamp
}

// Allowed reports whether raw passes the subtype filter.
func Allowed(raw slack.Message) bool {
	return raw.SubType == "" || allowedSubtypes[raw.SubType]
}

// BuildMessage resolves one raw message. It returns false for messages
// with a subtype outside the allow-list.
func (a *Assembler) BuildMessage(ctx context.Context, raw slack.Message, isReply bool) (model.Message, bool) {
	if !Allowed(raw) {
		slog.DebugContext(ctx, "skipping message by subtype",
			"ts", raw.Timestamp,
			"subtype", raw.SubType)
		return model.Message{}, false
	}

	text := a.mentions.Resolve(ctx, raw.Text)

	var tickets []model.TicketReference
	for _, id := range resolver.ExtractTicketIDs(text) {
		if ticket, ok := a.tickets.Enrich(ctx, id); ok {
			tickets = append(tickets, *ticket)
		}
	}

	var files []model.FileRef
	for _, f := range raw.Files {
		files = append(files, model.FileRef{ID: f.ID, Name: f.Name})
	}

	return model.Message{
		TS:          raw.Timestamp,
		DateTimeUTC: model.FormatTS(raw.Timestamp),
		Author:      a.users.UserName(ctx, raw.User),
		Text:        text,
		Links:       resolver.ExtractLinks(text),
		Tickets:     tickets,
		Files:       files,
		ReplyCount:  raw.ReplyCount,
		IsReply:     isReply,
	}, true
}

// Assemble builds a thread from a root and the output of the replies API.
// The first replies item echoes the root and is skipped. It returns false
// when the root itself is filtered out.
func (a *Assembler) Assemble(ctx context.Context, root slack.Message, replies []slack.Message) (model.Thread, bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ThreadTS:  logger.Ptr(root.Timestamp),
		Component: "synapse.thread.assembler",
	})

	rootMsg, ok := a.BuildMessage(ctx, root, false)
	if !ok {
		return model.Thread{}, false, nil
	}

	t := model.Thread{Root: rootMsg}
	if len(replies) > 1 {
		for _, raw := range replies[1:] {
			if reply, ok := a.BuildMessage(ctx, raw, true); ok {
				t.Replies = append(t.Replies, reply)
			}
		}
	}

	if err := t.Validate(); err != nil {
		return model.Thread{}, false, err
	}

	slog.DebugContext(ctx, "thread assembled",
		"replies", len(t.Replies),
		"reply_count", rootMsg.ReplyCount)

	return t, true, nil
}
