package chat

import (
	"time"

	"github.com/goccy/go-json"

	"dmchat/internal/app/message"
)

// EventType names a realtime event on the wire.
type EventType string

// Client to server events.
const (
	EventJoin        EventType = "join"
	EventSendMessage EventType = "send_message"
	EventReadMessage EventType = "read_message"
	EventEditMessage EventType = "edit_message"
	EventDelete      EventType = "delete_message"
	EventTyping      EventType = "typing"
)

// Server to client events.
const (
	EventReceiveMessage EventType = "receive_message"
	EventMessageRead    EventType = "message_read"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventDisplayTyping  EventType = "display_typing"
	EventUserStatus     EventType = "user_status"
	EventAvatarUpdated  EventType = "pp_updated"
	EventTokenUpdate    EventType = "token_update"
)

// Presence values carried by EventUserStatus.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Frame is one websocket text frame in either direction.
type Frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeFrame marshals payload into a frame of type t.
func EncodeFrame(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: t, Payload: raw})
}

// DecodeFrame parses a frame without decoding its payload.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// SendPayload is the body of send_message.
type SendPayload struct {
	Sender   string            `json:"sender"`
	Receiver string            `json:"receiver"`
	Message  string            `json:"message"`
	Type     message.Type      `json:"type,omitempty"`
	ReplyTo  *message.ReplyRef `json:"replyTo,omitempty"`
}

// ReadPayload is the object form of read_message. Clients may also send the bare id.
type ReadPayload struct {
	MessageID string `json:"messageId"`
	Sender    string `json:"sender,omitempty"`
}

// EditPayload is the body of edit_message.
type EditPayload struct {
	MessageID  string `json:"messageId"`
	NewMessage string `json:"newMessage"`
	Receiver   string `json:"receiver"`
}

// DeletePayload is the body of delete_message.
type DeletePayload struct {
	MessageID string `json:"messageId"`
	Receiver  string `json:"receiver"`
}

// TypingPayload is the routed part of a typing event; the whole payload is passed through.
type TypingPayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	IsTyping bool   `json:"isTyping"`
}

// MessageReadPayload is the body of message_read.
type MessageReadPayload struct {
	ID     string     `json:"_id"`
	ReadAt *time.Time `json:"readAt,omitempty"`
}

// MessageEditedPayload is the body of message_edited.
type MessageEditedPayload struct {
	MessageID  string `json:"messageId"`
	NewMessage string `json:"newMessage"`
}

// UserStatusPayload is the body of user_status.
type UserStatusPayload struct {
	Username string     `json:"username"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// AvatarPayload is the body of pp_updated.
type AvatarPayload struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

// TokenUpdatePayload is the body of token_update.
type TokenUpdatePayload struct {
	Token string `json:"token"`
}

// decodeUsername accepts a bare JSON string or {"username": "..."}.
func decodeUsername(raw json.RawMessage) string {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}

	var obj struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Username
	}
	return ""
}

// decodeRead accepts a bare message id or a ReadPayload object.
func decodeRead(raw json.RawMessage) (ReadPayload, bool) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return ReadPayload{MessageID: id}, true
	}

	var p ReadPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ReadPayload{}, false
	}
	return p, true
}
