package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestTokenLifecycle(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))
	const api = "http://127.0.0.1:8080/v1"

	if _, err := s.Token(api); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if err := s.SetToken(api, "tok-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetToken("http://other/v1", "tok-2"); err != nil {
		t.Fatalf("set other: %v", err)
	}
	got, err := s.Token(api)
	if err != nil || got != "tok-1" {
		t.Fatalf("token = %q, %v", got, err)
	}
	if err := s.DeleteToken(api); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteToken(api); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := s.Token(api); !errors.Is(err, ErrNoToken) {
		t.Fatalf("token survived delete: %v", err)
	}
	if got, _ := s.Token("http://other/v1"); got != "tok-2" {
		t.Fatalf("other token = %q", got)
	}
}
