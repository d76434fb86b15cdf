package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Ingestion enriches the context per channel and per thread, so every log line
// emitted while a thread is assembled carries channel_id and thread_ts.
type LogFields struct {
	RunID     *int64  // Ingest run ID
	MessageID *string // Redis stream message ID
	ChannelID *string // Slack channel being ingested
	ThreadTS  *string // Root timestamp of the thread being assembled
	TicketID  *string // Jira ticket being enriched
	QueryMode *string // "narrative" or "structured"
	Component string  // Component name (OTel semantic convention style, e.g., "synapse.slackapi.fetcher")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.RunID != nil {
		result.RunID = new.RunID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.ChannelID != nil {
		result.ChannelID = new.ChannelID
	}
	if new.ThreadTS != nil {
		result.ThreadTS = new.ThreadTS
	}
	if new.TicketID != nil {
		result.TicketID = new.TicketID
	}
	if new.QueryMode != nil {
		result.QueryMode = new.QueryMode
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{ThreadTS: logger.Ptr(ts)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like queries or model output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
