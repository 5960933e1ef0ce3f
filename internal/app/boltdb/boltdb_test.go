package boltdb

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dmchat/internal/app/message"
	"dmchat/internal/app/user"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func openTestDB(t *testing.T, clock *fakeClock) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "chat.db"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func insertText(t *testing.T, s *MessageStore, from, to, text string) *message.Message {
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

func TestInsertAssignsIDStatusAndTime(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	s := openTestDB(t, clock).Messages()

	m := insertText(t, s, "alice", "bob", "hi")

	if m.ID == "" {
		t.Fatal("expected an id")
	}
	if m.Status != message.StatusSent || m.ReadAt != nil {
		t.Fatalf("Status = %q ReadAt = %v", m.Status, m.ReadAt)
	}
	if !m.CreatedAt.Equal(base) {
		t.Fatalf("CreatedAt = %v, want %v", m.CreatedAt, base)
	}

	got, err := s.FindByID(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Content != "hi" || got.Sender != "alice" || got.Receiver != "bob" {
		t.Fatalf("FindByID = %+v", got)
	}
}

func TestInsertTimestampsNeverGoBackwards(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	s := openTestDB(t, clock).Messages()

	first := insertText(t, s, "alice", "bob", "one")
	clock.Set(base.Add(-time.Hour))
	second := insertText(t, s, "bob", "alice", "two")

	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatalf("second.CreatedAt %v before first %v", second.CreatedAt, first.CreatedAt)
	}

	history, err := s.FindConversation(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if len(history) != 2 || history[0].ID != first.ID || history[1].ID != second.ID {
		t.Fatalf("history order = %+v", history)
	}
}

func TestFindConversationIsUnorderedPair(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := openTestDB(t, clock).Messages()

	a := insertText(t, s, "alice", "bob", "one")
	clock.Set(clock.Now().Add(time.Second))
	b := insertText(t, s, "bob", "alice", "two")
	insertText(t, s, "alice", "carol", "elsewhere")

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		history, err := s.FindConversation(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("FindConversation: %v", err)
		}
		if len(history) != 2 || history[0].ID != a.ID || history[1].ID != b.ID {
			t.Fatalf("FindConversation(%s, %s) = %+v", pair[0], pair[1], history)
		}
	}

	empty, err := s.FindConversation(context.Background(), "bob", "carol")
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected an empty, non-nil history, got %#v", empty)
	}
}

func TestUpdateReadThenEditClearsReadAt(t *testing.T) {
	clock := &fakeClock{now: time.Now().UTC()}
	s := openTestDB(t, clock).Messages()
	ctx := context.Background()

	m := insertText(t, s, "alice", "bob", "hi")

	readAt := clock.Now().Add(time.Minute)
	read, err := s.Update(ctx, m.ID, message.MarkRead(readAt))
	if err != nil {
		t.Fatalf("Update read: %v", err)
	}
	if read.Status != message.StatusRead || read.ReadAt == nil || !read.ReadAt.Equal(readAt) {
		t.Fatalf("after read: %+v", read)
	}

	edited, err := s.Update(ctx, m.ID, message.Edit("hello"))
	if err != nil {
		t.Fatalf("Update edit: %v", err)
	}
	if edited.Status != message.StatusEdited || edited.ReadAt != nil || edited.Content != "hello" {
		t.Fatalf("after edit: %+v", edited)
	}
	if !edited.CreatedAt.Equal(m.CreatedAt) {
		t.Fatalf("edit moved CreatedAt: %v -> %v", m.CreatedAt, edited.CreatedAt)
	}

	if _, err := s.Update(ctx, "missing", message.Edit("x")); !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("Update missing: err = %v", err)
	}
}

func TestDeleteRemovesFromHistory(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	s := openTestDB(t, clock).Messages()
	ctx := context.Background()

	keep := insertText(t, s, "alice", "bob", "keep")
	drop := insertText(t, s, "alice", "bob", "drop")

	deleted, err := s.Delete(ctx, drop.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}

	again, err := s.Delete(ctx, drop.ID)
	if err != nil || again {
		t.Fatalf("second Delete = %v, %v", again, err)
	}

	if _, err := s.FindByID(ctx, drop.ID); !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("FindByID deleted: err = %v", err)
	}

	history, err := s.FindConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	if len(history) != 1 || history[0].ID != keep.ID {
		t.Fatalf("history = %+v", history)
	}
}

func TestSearchTextNewestFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	s := openTestDB(t, clock).Messages()
	ctx := context.Background()

	older := insertText(t, s, "alice", "bob", "Hello there")
	clock.Set(base.Add(time.Minute))
	if _, err := s.Insert(ctx, &message.Message{Sender: "bob", Receiver: "alice", Type: message.TypeAudio, Content: "hello-audio-blob"}); err != nil {
		t.Fatalf("Insert audio: %v", err)
	}
	clock.Set(base.Add(2 * time.Minute))
	newer := insertText(t, s, "bob", "alice", "well, HELLO")
	insertText(t, s, "bob", "alice", "unrelated")

	got, err := s.SearchText(ctx, "alice", "bob", "hello", true)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Fatalf("SearchText = %+v", got)
	}

	exact, err := s.SearchText(ctx, "alice", "bob", "hello", false)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(exact) != 0 {
		t.Fatalf("case-sensitive search matched %+v", exact)
	}
}

func TestUserStore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := openTestDB(t, clock).Users()
	ctx := context.Background()

	for _, name := range []string{"alice", "Albert", "bob", "malia"} {
		if _, err := s.Create(ctx, name, "hash"); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	if _, err := s.Create(ctx, "alice", "hash"); !errors.Is(err, user.ErrDuplicate) {
		t.Fatalf("duplicate Create: err = %v", err)
	}

	if err := s.UpdateAvatar(ctx, "alice", "https://cdn.example/a.png"); err != nil {
		t.Fatalf("UpdateAvatar: %v", err)
	}
	if err := s.UpdateAvatar(ctx, "nobody", "x"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("UpdateAvatar unknown: err = %v", err)
	}

	seen := clock.Now().Add(time.Hour)
	if err := s.TouchLastSeen(ctx, "alice", seen); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	if err := s.TouchLastSeen(ctx, "nobody", seen); err != nil {
		t.Fatalf("TouchLastSeen unknown: %v", err)
	}

	acct, err := s.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if acct.ProfilePicture != "https://cdn.example/a.png" || !acct.LastSeen.Equal(seen) {
		t.Fatalf("account = %+v", acct)
	}

	found, err := s.Search(ctx, "AL", "alice", 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 2 || found[0].Username != "Albert" || found[1].Username != "malia" {
		t.Fatalf("Search = %+v", found)
	}

	limited, err := s.Search(ctx, "a", "", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %+v", limited)
	}
}
