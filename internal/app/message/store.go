package message

import "context"

// Store is the durable message record. Every method touches at most one message
// document, except the two read-only conversation queries.
type Store interface {
	// Insert persists m with a fresh id, StatusSent and a creation timestamp that is
	// never earlier than the previous insert's. The stored record is returned.
	Insert(ctx context.Context, m *Message) (*Message, error)

	// FindByID returns ErrNotFound when id is unknown.
	FindByID(ctx context.Context, id string) (*Message, error)

	// Update applies u and returns the updated record, or ErrNotFound.
	Update(ctx context.Context, id string, u Update) (*Message, error)

	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// FindConversation returns every message between a and b in either direction,
	// oldest first.
	FindConversation(ctx context.Context, a, b string) ([]Message, error)

	// SearchText returns text messages between a and b whose content contains
	// substring, newest first.
	SearchText(ctx context.Context, a, b, substring string, caseInsensitive bool) ([]Message, error)
}
