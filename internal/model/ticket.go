package model

type TicketComment struct {
	Author  string `json:"author"`
	Created string `json:"created"`
	Body    string `json:"body"`
}

// TicketReference is a Jira issue mentioned in a message, with its text
// flattened from Atlassian Document Format.
type TicketReference struct {
	ID          string          `json:"ticket_id"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Comments    []TicketComment `json:"comments"`
}
