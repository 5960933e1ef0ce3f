package user

import (
	"strings"
	"testing"
	"time"
)

func TestValidUsername(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"alice", true},
		{"Bob_42", true},
		{"ab", false},
		{"has space", false},
		{"toolong_toolong_toolong", false},
		{"semi;colon", false},
	}

	for _, tt := range tests {
		if got := ValidUsername(tt.in); got != tt.want {
			t.Errorf("ValidUsername(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if !VerifyPassword(hash, "correct horse") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong horse") {
		t.Fatal("wrong password verified")
	}
}

func TestValidPassword(t *testing.T) {
	if ValidPassword("12345") {
		t.Fatal("five characters accepted")
	}
	if !ValidPassword("123456") {
		t.Fatal("six characters rejected")
	}
	if ValidPassword(strings.Repeat("x", 73)) {
		t.Fatal("73 bytes accepted")
	}
}

func TestAvatarURLFallsBackDeterministically(t *testing.T) {
	if got := AvatarURL("alice", "https://cdn.example.com/a.png"); got != "https://cdn.example.com/a.png" {
		t.Fatalf("AvatarURL kept %q", got)
	}

	a, b := AvatarURL("alice", ""), AvatarURL("alice", "")
	if a != b {
		t.Fatal("default avatar must be deterministic")
	}
	if !strings.HasPrefix(a, DefaultAvatarBase) || !strings.Contains(a, "name=alice") {
		t.Fatalf("unexpected default avatar %q", a)
	}
}

func TestAccountProfile(t *testing.T) {
	acc := &Account{Username: "bob"}
	p := acc.Profile(true)
	if !p.Online || p.LastSeen != nil || p.ProfilePicture != DefaultAvatarURL("bob") {
		t.Fatalf("unexpected profile %+v", p)
	}

	acc.LastSeen = time.Unix(1700000000, 0)
	if p := acc.Profile(false); p.LastSeen == nil || !p.LastSeen.Equal(acc.LastSeen) {
		t.Fatalf("lastSeen not copied: %+v", p)
	}
}
