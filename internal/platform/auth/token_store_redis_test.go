package auth

import "testing"

func TestNewRedisTokenStore(t *testing.T) {
	if _, err := NewRedisTokenStore("localhost:6379"); err == nil {
		t.Error("expected error for a url without scheme")
	}

	rs, err := NewRedisTokenStore("redis://:secret@localhost:6379/2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rs.Close()
	if rs.key != DefaultRedisTokenKey {
		t.Errorf("expected key %s, got %s", DefaultRedisTokenKey, rs.key)
	}
	var _ TokenStore = rs
}
