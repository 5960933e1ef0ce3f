package logx

import "testing"

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.57:4242", "203.0.113.0"},
		{"198.51.100.7", "198.51.100.0"},
		{"[::1]:9000", "127.0.0.1"},
		{"[2001:db8:1:2:3:4:5:6]:443", "2001:db8:1:2::"},
		{"not-an-ip", "unknown_ip"},
	}

	for _, tt := range tests {
		if got := AnonymizeIP(tt.in); got != tt.want {
			t.Errorf("AnonymizeIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
