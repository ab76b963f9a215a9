package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rcliao/automarket/internal/model"
	"github.com/rcliao/automarket/internal/store"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginEndLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	s := New(st, zerolog.Nop())

	if s.LoggedIn(ctx) {
		t.Fatal("new session should be logged out")
	}
	if err := s.Begin(ctx, "  ", nil); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("Begin with blank token = %v, want ErrEmptyToken", err)
	}

	profile := &model.OrganisationProfile{Name: "Acme", BusinessEmail: "ops@acme.io"}
	if err := s.Begin(ctx, "tok", profile); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got := s.Token(ctx); got != "tok" {
		t.Errorf("Token() = %q, want tok", got)
	}
	p, ok := s.Profile()
	if !ok || p.Name != "Acme" {
		t.Errorf("Profile() = %+v %v", p, ok)
	}

	// The caller's struct is copied.
	profile.Name = "mutated"
	if p, _ := s.Profile(); p.Name != "Acme" {
		t.Errorf("profile aliasing: %q", p.Name)
	}

	if err := s.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	if s.LoggedIn(ctx) {
		t.Error("session should be logged out after End")
	}
	if _, ok := s.Profile(); ok {
		t.Error("profile should be cleared after End")
	}
	if tok, _ := st.LoadToken(ctx); tok != "" {
		t.Errorf("storage not cleared: %q", tok)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	first := New(st, zerolog.Nop())
	if err := first.Begin(ctx, "persisted", &model.OrganisationProfile{Name: "Acme"}); err != nil {
		t.Fatalf("begin: %v", err)
	}

	second := New(st, zerolog.Nop())
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if second.Token(ctx) != "persisted" {
		t.Errorf("restored token = %q", second.Token(ctx))
	}
	if p, ok := second.Profile(); !ok || p.Name != "Acme" {
		t.Errorf("restored profile = %+v %v", p, ok)
	}
}

func TestRestore_CorruptProfileIsDropped(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	if err := st.SaveSession(ctx, "tok", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := New(st, zerolog.Nop())
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if s.Token(ctx) != "tok" {
		t.Error("token should survive a corrupt profile")
	}
	if _, ok := s.Profile(); ok {
		t.Error("corrupt profile should be discarded")
	}
}

func TestToken_ExternalClearTakesEffect(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	s := New(st, zerolog.Nop())
	if err := s.Begin(ctx, "tok", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}

	// Another process wipes local storage.
	if err := st.ClearSession(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := s.Token(ctx); got != "" {
		t.Errorf("Token() after external clear = %q, want empty", got)
	}
}

func TestSetProfileOnce(t *testing.T) {
	ctx := context.Background()
	s := New(nil, zerolog.Nop())

	if err := s.SetProfile(ctx, model.OrganisationProfile{Name: "A"}); err != nil {
		t.Fatalf("first SetProfile: %v", err)
	}
	if err := s.SetProfile(ctx, model.OrganisationProfile{Name: "B"}); !errors.Is(err, ErrProfileSet) {
		t.Fatalf("second SetProfile = %v, want ErrProfileSet", err)
	}
	if p, _ := s.Profile(); p.Name != "A" {
		t.Errorf("profile changed to %q", p.Name)
	}
}

func TestInMemorySession(t *testing.T) {
	ctx := context.Background()
	s := New(nil, zerolog.Nop())
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("restore without persister: %v", err)
	}
	if err := s.Begin(ctx, "mem", nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if s.Token(ctx) != "mem" {
		t.Errorf("Token() = %q", s.Token(ctx))
	}
}
