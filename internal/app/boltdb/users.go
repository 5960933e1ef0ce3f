package boltdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"dmchat/internal/app/user"
)

type userRecord struct {
	Username       string `codec:"username"`
	PasswordHash   string `codec:"password_hash"`
	ProfilePicture string `codec:"profile_picture"`
	LastSeen       int64  `codec:"last_seen"`
	CreatedAt      int64  `codec:"created_at"`
}

func (rec userRecord) toAccount() user.Account {
	return user.Account{
		Username:       rec.Username,
		PasswordHash:   rec.PasswordHash,
		ProfilePicture: rec.ProfilePicture,
		LastSeen:       time.Unix(0, rec.LastSeen).UTC(),
		CreatedAt:      time.Unix(0, rec.CreatedAt).UTC(),
	}
}

// UserStore implements user.Store on bbolt.
type UserStore struct {
	db *DB
}

var _ user.Store = (*UserStore)(nil)

func getUser(tx *bbolt.Tx, username string) (*userRecord, error) {
	data := tx.Bucket([]byte(usersBucket)).Get([]byte(username))
	if data == nil {
		return nil, user.ErrNotFound
	}

	var rec userRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func putUser(tx *bbolt.Tx, rec *userRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(usersBucket)).Put([]byte(rec.Username), data)
}

// Create stores a new account or returns user.ErrDuplicate.
func (s *UserStore) Create(_ context.Context, username, passwordHash string) (*user.Account, error) {
	var created user.Account

	err := s.db.bolt.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(usersBucket)).Get([]byte(username)) != nil {
			return user.ErrDuplicate
		}

		now := s.db.now().UnixNano()
		rec := &userRecord{
			Username:     username,
			PasswordHash: passwordHash,
			LastSeen:     now,
			CreatedAt:    now,
		}
		if err := putUser(tx, rec); err != nil {
			return err
		}

		created = rec.toAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// GetByUsername returns user.ErrNotFound for unknown users.
func (s *UserStore) GetByUsername(_ context.Context, username string) (*user.Account, error) {
	var found user.Account

	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, username)
		if err != nil {
			return err
		}
		found = rec.toAccount()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &found, nil
}

// UpdateAvatar overwrites the profile picture reference.
func (s *UserStore) UpdateAvatar(_ context.Context, username, profilePicture string) error {
	return s.db.bolt.Update(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, username)
		if err != nil {
			return err
		}
		rec.ProfilePicture = profilePicture
		return putUser(tx, rec)
	})
}

// TouchLastSeen stamps the last-seen time; unknown users are ignored.
func (s *UserStore) TouchLastSeen(_ context.Context, username string, at time.Time) error {
	return s.db.bolt.Update(func(tx *bbolt.Tx) error {
		rec, err := getUser(tx, username)
		if err == user.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		rec.LastSeen = at.UnixNano()
		return putUser(tx, rec)
	})
}

// Search scans all accounts; the user table of a development database is small.
func (s *UserStore) Search(_ context.Context, query, exclude string, limit int) ([]user.Account, error) {
	needle := strings.ToLower(query)
	out := make([]user.Account, 0)

	err := s.db.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(usersBucket)).ForEach(func(k, v []byte) error {
			name := string(k)
			if name == exclude || !strings.Contains(strings.ToLower(name), needle) {
				return nil
			}

			var rec userRecord
			if err := decode(v, &rec); err != nil {
				return err
			}
			out = append(out, rec.toAccount())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}
