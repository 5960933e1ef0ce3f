/*
Package message defines the direct-message record, its delivery status and the store
contract shared by every persistence backend.
*/
package message

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Type is the payload kind of a message.
type Type string

const (
	// TypeText is a plain text message.
	TypeText Type = "text"

	// TypeAudio carries an opaque, client-encoded audio blob in the content field.
	TypeAudio Type = "audio"
)

// Valid reports whether t is a known payload type.
func (t Type) Valid() bool {
	return t == TypeText || t == TypeAudio
}

// Status is the single delivery status of a message. Read and edited overwrite each other.
type Status string

const (
	StatusSent   Status = "sent"
	StatusRead   Status = "read"
	StatusEdited Status = "edited"
)

// SnippetMaxRunes bounds the quoted text kept in a reply reference.
const SnippetMaxRunes = 120

// ErrNotFound is returned by stores when no message has the requested id.
var ErrNotFound = errors.New("message not found")

// ReplyRef points at the quoted message of a reply.
type ReplyRef struct {
	ID      string `json:"id"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// Message is a persisted direct message.
// ReadAt is set only while Status is StatusRead.
type Message struct {
	ID        string     `json:"_id"`
	Sender    string     `json:"sender"`
	Receiver  string     `json:"receiver"`
	Type      Type       `json:"type"`
	Content   string     `json:"message"`
	ReplyTo   *ReplyRef  `json:"replyTo,omitempty"`
	Status    Status     `json:"status"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Update lists the fields a store should overwrite; nil fields are left untouched.
// ClearReadAt removes the read timestamp and wins over ReadAt.
type Update struct {
	Content     *string
	Status      *Status
	ReadAt      *time.Time
	ClearReadAt bool
}

// Apply writes u onto m.
func (u Update) Apply(m *Message) {
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.ReadAt != nil {
		t := *u.ReadAt
		m.ReadAt = &t
	}
	if u.ClearReadAt {
		m.ReadAt = nil
	}
}

// MarkRead returns the update for a read acknowledgment at t.
func MarkRead(t time.Time) Update {
	status := StatusRead
	return Update{Status: &status, ReadAt: &t}
}

// Edit returns the update replacing the content of a message.
func Edit(content string) Update {
	status := StatusEdited
	return Update{Content: &content, Status: &status, ClearReadAt: true}
}

// Involves reports whether username is the sender or the receiver of m.
func (m *Message) Involves(username string) bool {
	return m.Sender == username || m.Receiver == username
}

// ConversationKey identifies the unordered pair {a, b}.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// Snippet trims s to SnippetMaxRunes runes for use in a reply reference.
func Snippet(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= SnippetMaxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:SnippetMaxRunes])
}
