package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LinkType string

const (
	LinkTypeGoogleDoc  LinkType = "google_doc"
	LinkTypeConfluence LinkType = "confluence"
	LinkTypeJira       LinkType = "jira"
	LinkTypeOther      LinkType = "other"
)

type Link struct {
	URL  string   `json:"url"`
	Type LinkType `json:"type"`
}

type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one resolved Slack message. Values are built once by the
// thread assembler and not mutated afterwards.
type Message struct {
	TS          string            `json:"ts"`
	DateTimeUTC string            `json:"datetime_utc"`
	Author      string            `json:"user"`
	Text        string            `json:"text"`
	Links       []Link            `json:"links"`
	Tickets     []TicketReference `json:"jira_tickets"`
	Files       []FileRef         `json:"files"`
	ReplyCount  int               `json:"reply_count"`
	IsReply     bool              `json:"is_thread_reply"`
}

// Thread is a root message plus its replies in platform order.
type Thread struct {
	Root    Message   `json:"root"`
	Replies []Message `json:"replies"`
}

var ErrInvalidThread = errors.New("invalid thread")

// ID is the root timestamp; it keys the thread in the knowledge index.
func (t Thread) ID() string {
	return t.Root.TS
}

func (t Thread) Validate() error {
	if t.Root.TS == "" {
		return fmt.Errorf("%w: root has no timestamp", ErrInvalidThread)
	}
	if t.Root.IsReply {
		return fmt.Errorf("%w: root %s is flagged as a reply", ErrInvalidThread, t.Root.TS)
	}
	for _, r := range t.Replies {
		if !r.IsReply {
			return fmt.Errorf("%w: reply %s is not flagged as a reply", ErrInvalidThread, r.TS)
		}
	}
	return nil
}

// FormatTS renders a Slack "seconds.micros" timestamp as ISO-8601 UTC
// without a zone suffix. Unparsable input is returned unchanged.
func FormatTS(ts string) string {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return ts
	}
	var micros int64
	if fracPart != "" {
		fracPart = (fracPart + "000000")[:6]
		micros, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return ts
		}
	}
	t := time.Unix(sec, micros*int64(time.Microsecond)).UTC()
	if micros == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}
