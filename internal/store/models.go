package store

import "time"

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

type Chat struct {
	ID         string     `json:"id"` // Using UUID for external ID
	UserID     string     `json:"userId"`
	ProjectID  string     `json:"projectId"`
	Title      *string    `json:"title"` // Nullable, generated after the first turn
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Role      string    `json:"role"`
	Parts     string    `json:"parts"` // JSON array of Part, kept verbatim
	CreatedAt time.Time `json:"createdAt"`
}

// Part is one typed content segment of a message. Only "text" parts carry Text.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Vote struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	IsUpvote  bool   `json:"isUpvote"`
}

// ChatQuery selects chats visible to OwnerID inside ProjectID. Results are
// always ordered newest first.
type ChatQuery struct {
	OwnerID   string
	ProjectID string

	// Exclusive createdAt bounds; nil means unbounded.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	Limit int
}
