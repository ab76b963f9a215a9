package model

import "time"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptMessage is one entry of a chat transcript.
type TranscriptMessage struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id,omitempty"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is a contiguous slice [Start, Start+len(Items)) of a backing list.
type Page[T any] struct {
	Index int `json:"index"`
	Start int `json:"start"`
	Items []T `json:"items"`
}

// End returns the exclusive end offset of the page.
func (p Page[T]) End() int { return p.Start + len(p.Items) }
