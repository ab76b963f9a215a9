package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rcliao/automarket/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	token, profile, err := s.LoadSession(ctx)
	if err != nil {
		t.Fatalf("load empty session: %v", err)
	}
	if token != "" || profile != "" {
		t.Fatalf("expected empty session, got %q %q", token, profile)
	}

	if err := s.SaveSession(ctx, "tok-1", `{"name":"Acme"}`); err != nil {
		t.Fatalf("save session: %v", err)
	}
	token, profile, _ = s.LoadSession(ctx)
	if token != "tok-1" || profile != `{"name":"Acme"}` {
		t.Errorf("unexpected session: %q %q", token, profile)
	}

	// Overwrite token, drop profile.
	if err := s.SaveSession(ctx, "tok-2", ""); err != nil {
		t.Fatalf("save session: %v", err)
	}
	token, profile, _ = s.LoadSession(ctx)
	if token != "tok-2" || profile != "" {
		t.Errorf("expected tok-2 without profile, got %q %q", token, profile)
	}

	if err := s.SaveProfile(ctx, `{"name":"Beta"}`); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	if got, _ := s.LoadToken(ctx); got != "tok-2" {
		t.Errorf("SaveProfile must not touch the token, got %q", got)
	}

	if err := s.ClearSession(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	token, profile, _ = s.LoadSession(ctx)
	if token != "" || profile != "" {
		t.Errorf("expected cleared session, got %q %q", token, profile)
	}
}

func TestSessionPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "am.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.SaveSession(ctx, "persisted", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if got, _ := s2.LoadToken(ctx); got != "persisted" {
		t.Errorf("token after reopen = %q", got)
	}
}

func TestAppendMessageAndHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.AppendMessage(ctx, model.TranscriptMessage{Role: model.RoleUser, Text: "x"}); err == nil {
		t.Error("expected error without product id")
	}

	texts := []string{"draft one", "optimized one", "draft two", "optimized two"}
	for i, text := range texts {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		m, err := s.AppendMessage(ctx, model.TranscriptMessage{ProductID: "p1", Role: role, Text: text})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if m.ID == "" || m.CreatedAt.IsZero() {
			t.Errorf("expected id and timestamp, got %+v", m)
		}
	}
	s.AppendMessage(ctx, model.TranscriptMessage{ProductID: "p2", Role: model.RoleUser, Text: "other"})

	hist, err := s.History(ctx, HistoryParams{ProductID: "p1"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(hist))
	}
	for i, m := range hist {
		if m.Text != texts[i] {
			t.Errorf("message %d = %q, want %q", i, m.Text, texts[i])
		}
	}
	if hist[1].Role != model.RoleAssistant {
		t.Errorf("expected assistant role, got %q", hist[1].Role)
	}

	// Limit keeps the most recent messages, still oldest first.
	last2, _ := s.History(ctx, HistoryParams{ProductID: "p1", Limit: 2})
	if len(last2) != 2 || last2[0].Text != "draft two" || last2[1].Text != "optimized two" {
		t.Errorf("unexpected limited history: %+v", last2)
	}

	all, _ := s.History(ctx, HistoryParams{})
	if len(all) != 5 {
		t.Errorf("expected 5 messages across products, got %d", len(all))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.SaveSession(ctx, "tok", "")
	s.AppendMessage(ctx, model.TranscriptMessage{ProductID: "a", Role: model.RoleUser, Text: "1"})
	s.AppendMessage(ctx, model.TranscriptMessage{ProductID: "a", Role: model.RoleAssistant, Text: "2"})
	s.AppendMessage(ctx, model.TranscriptMessage{ProductID: "b", Role: model.RoleUser, Text: "3"})

	st, err := s.Stats(ctx, path)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !st.LoggedIn || st.TotalMessages != 3 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if len(st.Products) != 2 || st.Products[0].ProductID != "a" || st.Products[0].Messages != 2 {
		t.Errorf("unexpected per-product stats: %+v", st.Products)
	}
}
