package keystore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateKey(t *testing.T, s *Store, rateLimit int) *Credential {
	t.Helper()
	cred, err := s.CreateKey(context.Background(), "acct-1", "test key", "persona-1", rateLimit)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}
	return cred
}

func TestCreateKey(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 0)

	if !strings.HasPrefix(cred.Key, KeyPrefix) {
		t.Errorf("key %q missing prefix %q", cred.Key, KeyPrefix)
	}
	if got, want := len(cred.Key), len(KeyPrefix)+48; got != want {
		t.Errorf("key length = %d, want %d", got, want)
	}
	if cred.RateLimit != defaultRateLimit {
		t.Errorf("rate limit = %d, want default %d", cred.RateLimit, defaultRateLimit)
	}
	if got := strings.Join(cred.Permissions, ","); got != "persona:read,chat:create" {
		t.Errorf("permissions = %q", got)
	}
	if !cred.Active {
		t.Error("new key is not active")
	}
}

func TestVerify(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 10)

	got, err := s.Verify(context.Background(), cred.Key)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", got.UsageCount)
	}
	if got.Remaining() != 9 {
		t.Errorf("remaining = %d, want 9", got.Remaining())
	}
	if got.PersonaID != "persona-1" {
		t.Errorf("persona id = %q, want persona-1", got.PersonaID)
	}
	if got.LastUsed.IsZero() {
		t.Error("last used not set")
	}
}

func TestVerifyMalformed(t *testing.T) {
	s := newTestStore(t)

	for _, key := range []string{"", "sk_", "pk_abcdef", "Bearer sk_abc"} {
		if _, err := s.Verify(context.Background(), key); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Verify(%q) = %v, want ErrUnauthenticated", key, err)
		}
	}
}

func TestVerifyUnknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Verify(context.Background(), "sk_does_not_exist")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Verify = %v, want ErrUnauthenticated", err)
	}
}

func TestVerifyRevoked(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 10)

	if err := s.RevokeKey(context.Background(), cred.ID); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	if _, err := s.Verify(context.Background(), cred.Key); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Verify after revoke = %v, want ErrUnauthenticated", err)
	}
}

func TestVerifyRateLimited(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 3)

	for i := 0; i < 3; i++ {
		if _, err := s.Verify(context.Background(), cred.Key); err != nil {
			t.Fatalf("Verify %d: %v", i+1, err)
		}
	}
	if _, err := s.Verify(context.Background(), cred.Key); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Verify over limit = %v, want ErrRateLimited", err)
	}
}

func TestVerifyWindowStillOpen(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 2)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	for i := 0; i < 2; i++ {
		if _, err := s.Verify(context.Background(), cred.Key); err != nil {
			t.Fatalf("Verify %d: %v", i+1, err)
		}
	}

	// 30 minutes later the window has not elapsed, so the ceiling holds.
	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	if _, err := s.Verify(context.Background(), cred.Key); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Verify mid-window = %v, want ErrRateLimited", err)
	}
}

func TestVerifyWindowReset(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 2)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	for i := 0; i < 2; i++ {
		if _, err := s.Verify(context.Background(), cred.Key); err != nil {
			t.Fatalf("Verify %d: %v", i+1, err)
		}
	}

	// A full window after the last use the counter starts over.
	s.now = func() time.Time { return base.Add(61 * time.Minute) }
	got, err := s.Verify(context.Background(), cred.Key)
	if err != nil {
		t.Fatalf("Verify after reset: %v", err)
	}
	if got.UsageCount != 1 {
		t.Errorf("usage count after reset = %d, want 1", got.UsageCount)
	}
	if got.Remaining() != 1 {
		t.Errorf("remaining after reset = %d, want 1", got.Remaining())
	}
}

func TestListKeysRedacted(t *testing.T) {
	s := newTestStore(t)
	cred := mustCreateKey(t, s, 10)

	keys, err := s.ListKeys(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(keys))
	}
	got := keys[0].Key
	if got == cred.Key {
		t.Error("listed key is not redacted")
	}
	if !strings.HasPrefix(got, KeyPrefix+"...") || !strings.HasSuffix(got, cred.Key[len(cred.Key)-4:]) {
		t.Errorf("redacted key = %q", got)
	}

	other, err := s.ListKeys(context.Background(), "acct-2")
	if err != nil {
		t.Fatalf("ListKeys other account: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("got %d keys for other account, want 0", len(other))
	}
}

func TestRevokeKeyUnknown(t *testing.T) {
	s := newTestStore(t)

	if err := s.RevokeKey(context.Background(), "missing"); err == nil {
		t.Error("RevokeKey of unknown id succeeded")
	}
}

func TestPersona(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Persona{ID: "travel-concierge", Name: "Travel Concierge", SystemPrompt: "You are a hotel concierge.", Active: true}
	if err := s.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona: %v", err)
	}

	got, err := s.Persona(ctx, "travel-concierge")
	if err != nil {
		t.Fatalf("Persona: %v", err)
	}
	if got.Name != p.Name || got.SystemPrompt != p.SystemPrompt {
		t.Errorf("persona = %+v", got)
	}

	// Deactivated personas are not resolvable.
	p.Active = false
	if err := s.UpsertPersona(ctx, p); err != nil {
		t.Fatalf("UpsertPersona deactivate: %v", err)
	}
	if _, err := s.Persona(ctx, "travel-concierge"); err == nil {
		t.Error("Persona resolved an inactive persona")
	}
}
