package randx

import (
	"strings"
	"testing"
)

func TestMessageIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := MessageID()
		if !IsValidID(id) {
			t.Fatalf("invalid id %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIsValidID(t *testing.T) {
	if IsValidID("not-a-uuid") {
		t.Fatal("accepted garbage")
	}
	if IsValidID("{" + ConnectionID() + "}") {
		t.Fatal("accepted braced form")
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("avatars", "alice", "Me.PNG")

	if !strings.HasPrefix(key, "avatars/alice/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("unexpected key %q", key)
	}
}
