package boltdb

import (
	"context"
	"encoding/binary"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/randx"
)

// messageRecord is the stored form of a message. Times are Unix nanoseconds.
type messageRecord struct {
	ID           string `codec:"id"`
	Seq          uint64 `codec:"seq"`
	Sender       string `codec:"sender"`
	Receiver     string `codec:"receiver"`
	Type         string `codec:"type"`
	Content      string `codec:"content"`
	ReplyID      string `codec:"reply_id,omitempty"`
	ReplySender  string `codec:"reply_sender,omitempty"`
	ReplyMessage string `codec:"reply_message,omitempty"`
	Status       string `codec:"status"`
	ReadAt       int64  `codec:"read_at,omitempty"`
	CreatedAt    int64  `codec:"created_at"`
}

func toRecord(m *message.Message, seq uint64) messageRecord {
	rec := messageRecord{
		ID:        m.ID,
		Seq:       seq,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Type:      string(m.Type),
		Content:   m.Content,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt.UnixNano(),
	}
	if m.ReplyTo != nil {
		rec.ReplyID = m.ReplyTo.ID
		rec.ReplySender = m.ReplyTo.Sender
		rec.ReplyMessage = m.ReplyTo.Message
	}
	if m.ReadAt != nil {
		rec.ReadAt = m.ReadAt.UnixNano()
	}
	return rec
}

func (rec messageRecord) toMessage() *message.Message {
	m := &message.Message{
		ID:        rec.ID,
		Sender:    rec.Sender,
		Receiver:  rec.Receiver,
		Type:      message.Type(rec.Type),
		Content:   rec.Content,
		Status:    message.Status(rec.Status),
		CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
	}
	if rec.ReplyID != "" {
		m.ReplyTo = &message.ReplyRef{ID: rec.ReplyID, Sender: rec.ReplySender, Message: rec.ReplyMessage}
	}
	if rec.ReadAt != 0 {
		readAt := time.Unix(0, rec.ReadAt).UTC()
		m.ReadAt = &readAt
	}
	return m
}

// MessageStore implements message.Store on bbolt. Each call runs in one transaction.
type MessageStore struct {
	db *DB
}

var _ message.Store = (*MessageStore)(nil)

func getRecord(tx *bbolt.Tx, id string) (*messageRecord, error) {
	data := tx.Bucket([]byte(messagesBucket)).Get([]byte(id))
	if data == nil {
		return nil, message.ErrNotFound
	}

	var rec messageRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func putRecord(tx *bbolt.Tx, rec messageRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(messagesBucket)).Put([]byte(rec.ID), data)
}

// Insert stores m with a fresh id. The timestamp is clamped to the last issued one so
// history never runs backwards when the wall clock does.
func (s *MessageStore) Insert(_ context.Context, m *message.Message) (*message.Message, error) {
	var stored *message.Message

	err := s.db.bolt.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))

		createdAt := s.db.now().UTC()
		if raw := meta.Get([]byte(lastTimestampKey)); len(raw) == 8 {
			last := time.Unix(0, int64(binary.BigEndian.Uint64(raw))).UTC()
			if createdAt.Before(last) {
				createdAt = last
			}
		}

		conv, err := tx.Bucket([]byte(conversationsBucket)).CreateBucketIfNotExists([]byte(message.ConversationKey(m.Sender, m.Receiver)))
		if err != nil {
			return BucketError{Bucket: conversationsBucket, Err: err}
		}

		seq, err := tx.Bucket([]byte(messagesBucket)).NextSequence()
		if err != nil {
			return err
		}

		candidate := *m
		candidate.ID = randx.MessageID()
		candidate.Status = message.StatusSent
		candidate.ReadAt = nil
		candidate.CreatedAt = createdAt

		rec := toRecord(&candidate, seq)
		if err := putRecord(tx, rec); err != nil {
			return err
		}
		if err := conv.Put(seqKey(seq), []byte(rec.ID)); err != nil {
			return err
		}
		if err := meta.Put([]byte(lastTimestampKey), seqKey(uint64(rec.CreatedAt))); err != nil {
			return err
		}

		stored = rec.toMessage()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// FindByID returns message.ErrNotFound for unknown ids.
func (s *MessageStore) FindByID(_ context.Context, id string) (*message.Message, error) {
	var found *message.Message

	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		found = rec.toMessage()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// Update applies u to the stored record.
func (s *MessageStore) Update(_ context.Context, id string, u message.Update) (*message.Message, error) {
	var updated *message.Message

	err := s.db.bolt.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}

		m := rec.toMessage()
		u.Apply(m)

		next := toRecord(m, rec.Seq)
		if err := putRecord(tx, next); err != nil {
			return err
		}

		updated = next.toMessage()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes the record and its conversation index entry.
func (s *MessageStore) Delete(_ context.Context, id string) (bool, error) {
	deleted := false

	err := s.db.bolt.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err == message.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		if conv := tx.Bucket([]byte(conversationsBucket)).Bucket([]byte(message.ConversationKey(rec.Sender, rec.Receiver))); conv != nil {
			if err := conv.Delete(seqKey(rec.Seq)); err != nil {
				return err
			}
		}
		if err := tx.Bucket([]byte(messagesBucket)).Delete([]byte(id)); err != nil {
			return err
		}

		deleted = true
		return nil
	})

	return deleted, err
}

// conversation walks the conversation bucket of {a, b} in insertion order.
func (s *MessageStore) conversation(a, b string, keep func(*messageRecord) bool) ([]message.Message, error) {
	out := make([]message.Message, 0)

	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		conv := tx.Bucket([]byte(conversationsBucket)).Bucket([]byte(message.ConversationKey(a, b)))
		if conv == nil {
			return nil
		}

		return conv.ForEach(func(_, id []byte) error {
			rec, err := getRecord(tx, string(id))
			if err == message.ErrNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			if keep == nil || keep(rec) {
				out = append(out, *rec.toMessage())
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Sequence order already follows creation; the stable sort guards clamped timestamps.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// FindConversation lists {a, b} oldest first.
func (s *MessageStore) FindConversation(_ context.Context, a, b string) ([]message.Message, error) {
	return s.conversation(a, b, nil)
}

// SearchText lists matching text messages of {a, b} newest first.
func (s *MessageStore) SearchText(_ context.Context, a, b, substring string, caseInsensitive bool) ([]message.Message, error) {
	needle := substring
	if caseInsensitive {
		needle = strings.ToLower(needle)
	}

	matches, err := s.conversation(a, b, func(rec *messageRecord) bool {
		if rec.Type != string(message.TypeText) {
			return false
		}
		haystack := rec.Content
		if caseInsensitive {
			haystack = strings.ToLower(haystack)
		}
		return strings.Contains(haystack, needle)
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
		matches[i], matches[j] = matches[j], matches[i]
	}

	return matches, nil
}
