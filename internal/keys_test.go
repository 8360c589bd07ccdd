package internal

import (
	"strings"
	"testing"
)

func TestNewAppIDShape(t *testing.T) {
	id, err := NewAppID()
	if err != nil {
		t.Fatalf("NewAppID failed: %v", err)
	}
	if !strings.HasPrefix(id, "app_") {
		t.Fatalf("app id %q missing app_ prefix", id)
	}
	if len(id) != 20 {
		t.Fatalf("app id length = %d, want 20", len(id))
	}
}

func TestKeyLengths(t *testing.T) {
	apiKey, err := NewAPIKey()
	if err != nil {
		t.Fatalf("NewAPIKey failed: %v", err)
	}
	if len(apiKey) != 32 {
		t.Fatalf("api key length = %d, want 32", len(apiKey))
	}

	secret, err := NewSecretKey()
	if err != nil {
		t.Fatalf("NewSecretKey failed: %v", err)
	}
	if len(secret) != 64 {
		t.Fatalf("secret key length = %d, want 64", len(secret))
	}
}

func TestKeysAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := NewAPIKey()
		if err != nil {
			t.Fatalf("NewAPIKey failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

func TestMaskKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abcdefghijklmnop", "abcd****mnop"},
		{"12345678", "1234****5678"},
		{"short", "****"},
		{"", "****"},
	}
	for _, tc := range cases {
		if got := MaskKey(tc.in); got != tc.want {
			t.Fatalf("MaskKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
