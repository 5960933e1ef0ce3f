/*
Package boltdb implements the message and user stores on an embedded bbolt file.

It backs development servers and tests. Records are encoded with the ugorji JSON codec;
conversation ordering is kept in one nested bucket per conversation, keyed by the
message's insertion sequence.
*/
package boltdb

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ugorji/go/codec"
	"go.etcd.io/bbolt"
)

const (
	usersBucket         = "users"
	messagesBucket      = "messages"
	conversationsBucket = "conversations"
	metaBucket          = "meta"

	lastTimestampKey = "last_message_ts"
)

var jsonHandle codec.JsonHandle

// DB is an open bbolt file holding both stores.
type DB struct {
	bolt *bbolt.DB
	now  func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// Open opens (or creates) the database file at path and its top-level buckets.
func Open(path string, opts ...Option) (*DB, error) {
	b, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", path, err)
	}

	err = b.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{usersBucket, messagesBucket, conversationsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return BucketError{Bucket: name, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	db := &DB{bolt: b, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}

	return db, nil
}

// Close releases the database file.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// Messages returns the message store view of db.
func (db *DB) Messages() *MessageStore {
	return &MessageStore{db: db}
}

// Users returns the user store view of db.
func (db *DB) Users() *UserStore {
	return &UserStore{db: db}
}

func encode(v any) ([]byte, error) {
	var data []byte
	if err := codec.NewEncoderBytes(&data, &jsonHandle).Encode(v); err != nil {
		return nil, CodecError{Op: "encode", Err: err}
	}
	return data, nil
}

func decode(data []byte, v any) error {
	if err := codec.NewDecoderBytes(data, &jsonHandle).Decode(v); err != nil {
		return CodecError{Op: "decode", Err: err}
	}
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
