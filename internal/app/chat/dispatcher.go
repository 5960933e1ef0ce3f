package chat

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/metrics"
)

const (
	// DefaultMaxTextBytes bounds the content of a text message.
	DefaultMaxTextBytes = 5000

	// storeTimeout bounds each store call made on the realtime path.
	storeTimeout = 5 * time.Second
)

// Reasons recorded when an operation is dropped.
const (
	reasonInvalid   = "invalid"
	reasonNotFound  = "not_found"
	reasonForbidden = "forbidden"
	reasonUnbound   = "unbound"
)

// Dispatcher runs the message lifecycle: it mutates the store and emits the resulting
// events to the affected rooms. Realtime operations never return errors; failures are
// logged and the operation is dropped.
type Dispatcher struct {
	messages     message.Store
	users        user.Store
	out          Broadcaster
	maxTextBytes int
	now          func() time.Time
	logger       zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxTextBytes overrides DefaultMaxTextBytes.
func WithMaxTextBytes(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxTextBytes = n
		}
	}
}

// WithDispatcherClock overrides the clock used for read timestamps.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher builds a Dispatcher emitting through out.
func NewDispatcher(messages message.Store, users user.Store, out Broadcaster, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		messages:     messages,
		users:        users,
		out:          out,
		maxTextBytes: DefaultMaxTextBytes,
		now:          time.Now,
		logger:       logx.Component("Dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send persists a new message from actor and delivers the stored record to the rooms of
// both parties. Missing fields, a sender other than actor, an unknown type or an
// over-long text drop the message.
func (d *Dispatcher) Send(ctx context.Context, actor string, p SendPayload) {
	if actor == "" {
		d.ignore(EventSendMessage, reasonUnbound)
		return
	}
	if p.Sender == "" || p.Receiver == "" || p.Message == "" {
		d.ignore(EventSendMessage, reasonInvalid)
		return
	}
	if p.Sender != actor {
		d.ignore(EventSendMessage, reasonForbidden)
		return
	}

	msgType := p.Type
	if msgType == "" {
		msgType = message.TypeText
	}
	if !msgType.Valid() {
		d.ignore(EventSendMessage, reasonInvalid)
		return
	}
	if msgType == message.TypeText && len(p.Message) > d.maxTextBytes {
		d.ignore(EventSendMessage, reasonInvalid)
		return
	}

	var reply *message.ReplyRef
	if p.ReplyTo != nil && p.ReplyTo.ID != "" {
		reply = &message.ReplyRef{
			ID:      p.ReplyTo.ID,
			Sender:  p.ReplyTo.Sender,
			Message: message.Snippet(p.ReplyTo.Message),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	stored, err := d.messages.Insert(ctx, &message.Message{
		Sender:   p.Sender,
		Receiver: p.Receiver,
		Type:     msgType,
		Content:  p.Message,
		ReplyTo:  reply,
	})
	if err != nil {
		d.storeFailed(EventSendMessage, err)
		return
	}

	d.emit(EventReceiveMessage, stored, stored.Receiver, stored.Sender)
}

// MarkRead records that actor read a message and notifies the stored sender's room.
// Only the receiver of a message can mark it read. Marking an already read message
// repeats the notification without touching the store.
func (d *Dispatcher) MarkRead(ctx context.Context, actor string, p ReadPayload) {
	if actor == "" {
		d.ignore(EventReadMessage, reasonUnbound)
		return
	}
	if p.MessageID == "" {
		d.ignore(EventReadMessage, reasonInvalid)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	m, ok := d.find(ctx, EventReadMessage, p.MessageID)
	if !ok {
		return
	}
	if m.Receiver != actor {
		d.ignore(EventReadMessage, reasonForbidden)
		return
	}

	if m.Status != message.StatusRead || m.ReadAt == nil {
		updated, err := d.messages.Update(ctx, m.ID, message.MarkRead(d.now().UTC()))
		if errors.Is(err, message.ErrNotFound) {
			d.ignore(EventReadMessage, reasonNotFound)
			return
		}
		if err != nil {
			d.storeFailed(EventReadMessage, err)
			return
		}
		m = updated
	}

	d.emit(EventMessageRead, MessageReadPayload{ID: m.ID, ReadAt: m.ReadAt}, m.Sender)
}

// Edit replaces the content of a message sent by actor and notifies both parties.
// Editing clears any read state.
func (d *Dispatcher) Edit(ctx context.Context, actor string, p EditPayload) {
	if actor == "" {
		d.ignore(EventEditMessage, reasonUnbound)
		return
	}
	if p.MessageID == "" || p.NewMessage == "" {
		d.ignore(EventEditMessage, reasonInvalid)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	m, ok := d.find(ctx, EventEditMessage, p.MessageID)
	if !ok {
		return
	}
	if m.Sender != actor {
		d.ignore(EventEditMessage, reasonForbidden)
		return
	}
	if m.Type == message.TypeText && len(p.NewMessage) > d.maxTextBytes {
		d.ignore(EventEditMessage, reasonInvalid)
		return
	}

	updated, err := d.messages.Update(ctx, m.ID, message.Edit(p.NewMessage))
	if errors.Is(err, message.ErrNotFound) {
		d.ignore(EventEditMessage, reasonNotFound)
		return
	}
	if err != nil {
		d.storeFailed(EventEditMessage, err)
		return
	}

	d.emit(EventMessageEdited, MessageEditedPayload{MessageID: updated.ID, NewMessage: updated.Content}, updated.Sender, updated.Receiver)
}

// Delete removes a message sent by actor and notifies both parties.
func (d *Dispatcher) Delete(ctx context.Context, actor string, p DeletePayload) {
	if actor == "" {
		d.ignore(EventDelete, reasonUnbound)
		return
	}
	if p.MessageID == "" {
		d.ignore(EventDelete, reasonInvalid)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	m, ok := d.find(ctx, EventDelete, p.MessageID)
	if !ok {
		return
	}
	if m.Sender != actor {
		d.ignore(EventDelete, reasonForbidden)
		return
	}

	deleted, err := d.messages.Delete(ctx, m.ID)
	if err != nil {
		d.storeFailed(EventDelete, err)
		return
	}
	if !deleted {
		d.ignore(EventDelete, reasonNotFound)
		return
	}

	d.emit(EventMessageDeleted, m.ID, m.Sender, m.Receiver)
}

// Typing forwards the raw typing payload to the receiver's room only.
func (d *Dispatcher) Typing(actor string, raw json.RawMessage) {
	if actor == "" {
		d.ignore(EventTyping, reasonUnbound)
		return
	}

	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Receiver == "" {
		d.ignore(EventTyping, reasonInvalid)
		return
	}
	if p.Sender != actor {
		d.ignore(EventTyping, reasonForbidden)
		return
	}

	d.emit(EventDisplayTyping, raw, p.Receiver)
}

// UpdateAvatar persists the avatar reference of username and broadcasts pp_updated to
// every connection. Unlike the realtime operations it reports store errors to its caller.
func (d *Dispatcher) UpdateAvatar(ctx context.Context, username, profilePicture string) error {
	if err := d.users.UpdateAvatar(ctx, username, profilePicture); err != nil {
		return err
	}

	frame, err := EncodeFrame(EventAvatarUpdated, AvatarPayload{Username: username, ProfilePicture: profilePicture})
	if err != nil {
		return err
	}

	d.out.EmitToAll(frame)
	metrics.EventsEmitted.WithLabelValues(string(EventAvatarUpdated)).Inc()

	return nil
}

func (d *Dispatcher) find(ctx context.Context, op EventType, id string) (*message.Message, bool) {
	m, err := d.messages.FindByID(ctx, id)
	if errors.Is(err, message.ErrNotFound) {
		d.ignore(op, reasonNotFound)
		return nil, false
	}
	if err != nil {
		d.storeFailed(op, err)
		return nil, false
	}
	return m, true
}

// emit encodes one frame and delivers it to each distinct username's room.
func (d *Dispatcher) emit(t EventType, payload any, usernames ...string) {
	frame, err := EncodeFrame(t, payload)
	if err != nil {
		d.logger.Error().Err(err).Str("event", string(t)).Msg("Failed to encode event.")
		return
	}

	seen := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}

		d.out.EmitToUser(u, frame)
		metrics.EventsEmitted.WithLabelValues(string(t)).Inc()
	}
}

func (d *Dispatcher) ignore(op EventType, reason string) {
	metrics.OperationsIgnored.WithLabelValues(string(op), reason).Inc()
	d.logger.Debug().Str("event", string(op)).Str("reason", reason).Msg("Operation ignored.")
}

func (d *Dispatcher) storeFailed(op EventType, err error) {
	metrics.StoreFailures.WithLabelValues(string(op)).Inc()
	d.logger.Error().Err(err).Str("event", string(op)).Msg("Store call failed, operation dropped.")
}
