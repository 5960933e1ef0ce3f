package db

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

// openTestPool connects to DATABASE_URL and migrates it. Tests using it are skipped when the
// variable is unset.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := NewPool(context.Background(), dsn)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// testNames returns usernames unique to this run and removes their rows afterwards.
func testNames(t *testing.T, pool *pgxpool.Pool, names ...string) []string {
	t.Helper()

	suffix := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + "_" + suffix
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM messages WHERE sender = ANY($1) OR receiver = ANY($1)`, out)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE username = ANY($1)`, out)
	})

	return out
}

func insertPG(t *testing.T, s *MessageStore, from, to, text string) *message.Message {
	t.Helper()

	m, err := s.Insert(context.Background(), &message.Message{
		Sender:   from,
		Receiver: to,
		Type:     message.TypeText,
		Content:  text,
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return m
}

func TestPostgresInsertNeverGoesBackwards(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	s := NewMessageStore(pool)
	names := testNames(t, pool, "alice", "bob")
	alice, bob := names[0], names[1]

	future := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	_, err := pool.Exec(ctx, `
		INSERT INTO messages (id, sender, receiver, type, content, created_at)
		VALUES ($1, $2, $3, 'text', 'ahead', $4)`,
		uuid.New().String(), alice, bob, future,
	)
	if err != nil {
		t.Fatalf("seed future row: %v", err)
	}

	m := insertPG(t, s, bob, alice, "after")
	if m.Status != message.StatusSent || m.ReadAt != nil {
		t.Fatalf("inserted = %+v", m)
	}
	if m.CreatedAt.Before(future) {
		t.Fatalf("CreatedAt %v earlier than previous row %v", m.CreatedAt, future)
	}

	msgs, err := s.FindConversation(ctx, alice, bob)
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "ahead" || msgs[1].Content != "after" {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestPostgresConversationIsUnordered(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	s := NewMessageStore(pool)
	names := testNames(t, pool, "alice", "bob", "carol")
	alice, bob, carol := names[0], names[1], names[2]

	insertPG(t, s, alice, bob, "one")
	insertPG(t, s, bob, alice, "two")
	insertPG(t, s, alice, carol, "other")

	for _, pair := range [][2]string{{alice, bob}, {bob, alice}} {
		msgs, err := s.FindConversation(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("FindConversation: %v", err)
		}
		if len(msgs) != 2 || msgs[0].Content != "one" || msgs[1].Content != "two" {
			t.Fatalf("FindConversation(%s, %s) = %+v", pair[0], pair[1], msgs)
		}
	}

	empty, err := s.FindConversation(ctx, bob, carol)
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty conversation = %#v", empty)
	}
}

func TestPostgresEditClearsReadAt(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	s := NewMessageStore(pool)
	names := testNames(t, pool, "alice", "bob")

	m := insertPG(t, s, names[0], names[1], "hi")

	readAt := time.Now().UTC().Truncate(time.Microsecond)
	read, err := s.Update(ctx, m.ID, message.MarkRead(readAt))
	if err != nil {
		t.Fatalf("Update read: %v", err)
	}
	if read.Status != message.StatusRead || read.ReadAt == nil || !read.ReadAt.Equal(readAt) {
		t.Fatalf("after read = %+v", read)
	}

	edited, err := s.Update(ctx, m.ID, message.Edit("hello"))
	if err != nil {
		t.Fatalf("Update edit: %v", err)
	}
	if edited.Status != message.StatusEdited || edited.ReadAt != nil || edited.Content != "hello" {
		t.Fatalf("after edit = %+v", edited)
	}

	if _, err := s.Update(ctx, uuid.New().String(), message.Edit("x")); !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("Update unknown = %v, want ErrNotFound", err)
	}
	if _, err := s.FindByID(ctx, "not-a-uuid"); !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("FindByID malformed = %v, want ErrNotFound", err)
	}

	deleted, err := s.Delete(ctx, m.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if deleted, _ := s.Delete(ctx, m.ID); deleted {
		t.Fatal("second Delete reported a row")
	}
}

func TestPostgresSearchText(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	s := NewMessageStore(pool)
	names := testNames(t, pool, "alice", "bob")
	alice, bob := names[0], names[1]

	insertPG(t, s, alice, bob, "Lunch at noon?")
	insertPG(t, s, bob, alice, "lunch sounds good")
	insertPG(t, s, alice, bob, "100% sure")
	if _, err := s.Insert(ctx, &message.Message{Sender: bob, Receiver: alice, Type: message.TypeAudio, Content: "lunch"}); err != nil {
		t.Fatalf("Insert audio: %v", err)
	}

	got, err := s.SearchText(ctx, bob, alice, "LUNCH", true)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 2 || got[0].Content != "lunch sounds good" || got[1].Content != "Lunch at noon?" {
		t.Fatalf("case-insensitive search = %+v", got)
	}

	got, err = s.SearchText(ctx, alice, bob, "Lunch", false)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("case-sensitive search = %+v", got)
	}

	got, err = s.SearchText(ctx, alice, bob, "%", true)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 1 || got[0].Content != "100% sure" {
		t.Fatalf("wildcard should be literal: %+v", got)
	}
}

func TestPostgresUserStore(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	s := NewUserStore(pool)
	names := testNames(t, pool, "Alice", "alina", "bob")
	alice, alina, bob := names[0], names[1], names[2]

	for _, n := range names {
		if _, err := s.Create(ctx, n, "hash"); err != nil {
			t.Fatalf("Create %s: %v", n, err)
		}
	}
	if _, err := s.Create(ctx, alice, "hash"); !errors.Is(err, user.ErrDuplicate) {
		t.Fatalf("duplicate Create = %v, want ErrDuplicate", err)
	}

	if err := s.UpdateAvatar(ctx, alice, "https://cdn.example/a.png"); err != nil {
		t.Fatalf("UpdateAvatar: %v", err)
	}
	if err := s.UpdateAvatar(ctx, "nobody_"+alice, "x"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("UpdateAvatar unknown = %v, want ErrNotFound", err)
	}

	seen := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)
	if err := s.TouchLastSeen(ctx, alice, seen); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	if err := s.TouchLastSeen(ctx, "nobody_"+alice, seen); err != nil {
		t.Fatalf("TouchLastSeen unknown: %v", err)
	}

	acct, err := s.GetByUsername(ctx, alice)
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if acct.ProfilePicture != "https://cdn.example/a.png" || !acct.LastSeen.Equal(seen) {
		t.Fatalf("account = %+v", acct)
	}
	if _, err := s.GetByUsername(ctx, "nobody_"+alice); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("GetByUsername unknown = %v, want ErrNotFound", err)
	}

	suffix := alice[strings.LastIndex(alice, "_"):]
	found, err := s.Search(ctx, "AL", bob, 1000)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var ours []string
	for _, a := range found {
		if strings.HasSuffix(a.Username, suffix) {
			ours = append(ours, a.Username)
		}
	}
	if len(ours) != 2 || ours[0] != alice || ours[1] != alina {
		t.Fatalf("Search(AL) = %v", ours)
	}

	found, err = s.Search(ctx, suffix, alice, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, a := range found {
		if a.Username == alice {
			t.Fatal("Search returned the excluded user")
		}
	}
}
