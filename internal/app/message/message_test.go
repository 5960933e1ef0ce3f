package message

import (
	"strings"
	"testing"
	"time"
)

func TestConversationKeyIsUnordered(t *testing.T) {
	if ConversationKey("alice", "bob") != ConversationKey("bob", "alice") {
		t.Fatal("key must not depend on direction")
	}
	if ConversationKey("alice", "bob") == ConversationKey("alice", "bobby") {
		t.Fatal("distinct pairs must not collide")
	}
	if ConversationKey("ab", "c") == ConversationKey("a", "bc") {
		t.Fatal("separator must keep names apart")
	}
}

func TestEditAndReadOverwriteEachOther(t *testing.T) {
	m := &Message{Status: StatusSent, Content: "hi"}
	readAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	MarkRead(readAt).Apply(m)
	if m.Status != StatusRead || m.ReadAt == nil || !m.ReadAt.Equal(readAt) {
		t.Fatalf("after read: %+v", m)
	}

	Edit("hello").Apply(m)
	if m.Status != StatusEdited || m.ReadAt != nil || m.Content != "hello" {
		t.Fatalf("after edit: %+v", m)
	}

	MarkRead(readAt).Apply(m)
	if m.Status != StatusRead || m.Content != "hello" {
		t.Fatalf("after second read: %+v", m)
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("  short  "); got != "short" {
		t.Fatalf("Snippet = %q", got)
	}

	long := strings.Repeat("é", SnippetMaxRunes+10)
	if got := Snippet(long); len([]rune(got)) != SnippetMaxRunes {
		t.Fatalf("Snippet kept %d runes", len([]rune(got)))
	}
}

func TestTypeValid(t *testing.T) {
	for _, tt := range []struct {
		in   Type
		want bool
	}{{TypeText, true}, {TypeAudio, true}, {"video", false}, {"", false}} {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("Type(%q).Valid() = %v", tt.in, got)
		}
	}
}
