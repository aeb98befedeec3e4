package store

import (
	"context"
	"errors"
	"testing"
)

func TestRememberAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, err := s.Remember(ctx, "u1", "prefers dark roast coffee", "preferences", []string{"coffee"}, nil)
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected assigned ID")
	}

	list, err := s.ListMemories(ctx, "u1", "", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Content != "prefers dark roast coffee" {
		t.Errorf("list = %+v", list)
	}
	if len(list[0].Tags) != 1 || list[0].Tags[0] != "coffee" {
		t.Errorf("tags = %v", list[0].Tags)
	}
}

func TestRememberMetaRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	meta := map[string]string{"source": "import", "lang": "en"}
	rec, err := s.Remember(ctx, "u1", "annotated fact", "", nil, meta)
	if err != nil {
		t.Fatalf("remember: %v", err)
	}
	if rec.Meta["source"] != "import" {
		t.Errorf("returned meta = %v", rec.Meta)
	}

	list, err := s.ListMemories(ctx, "u1", "", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Meta["source"] != "import" || list[0].Meta["lang"] != "en" {
		t.Errorf("stored meta = %v", list[0].Meta)
	}

	// Metadata survives export and import.
	exported, _ := s.ExportMemories(ctx, "u1")
	s2 := newTestStore(t)
	if _, err := s2.ImportMemories(ctx, "u1", exported); err != nil {
		t.Fatalf("import: %v", err)
	}
	imported, _ := s2.ExportMemories(ctx, "u1")
	if len(imported) != 1 || imported[0].Meta["lang"] != "en" {
		t.Errorf("imported meta = %+v", imported)
	}
}

func TestRememberEmptyContentRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if _, err := s.Remember(ctx, "u1", "   ", "", nil, nil); err == nil {
		t.Error("blank content should be rejected")
	}
}

func TestRecallActorIsolation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Remember(ctx, "u1", "secret launch code is 1234", "", nil, nil)
	s.Remember(ctx, "u2", "likes tea", "", nil, nil)

	// u2 queries text that only matches u1's record.
	got, err := s.Recall(ctx, "u2", "launch code", 10)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("recall leaked another actor's records: %+v", got)
	}

	// A wildcard-style query must not widen the match either.
	got, _ = s.Recall(ctx, "u2", "%", 10)
	for _, r := range got {
		if r.Actor != "u2" {
			t.Fatalf("recall returned record owned by %q", r.Actor)
		}
	}
}

func TestRecallEscapesMetacharacters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Remember(ctx, "u1", "progress is at 100% today", "", nil, nil)
	s.Remember(ctx, "u1", "nothing relevant here", "", nil, nil)

	// "%" must match literally, not as a LIKE wildcard.
	got, err := s.Recall(ctx, "u1", "100%", 10)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 || got[0].Content != "progress is at 100% today" {
		t.Errorf("recall = %+v, want only the literal %% match", got)
	}

	if got, _ := s.Recall(ctx, "u1", "_", 10); len(got) != 0 {
		t.Errorf("bare underscore matched %d records, want 0", len(got))
	}
}

func TestRecallRelevanceThenRecency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Remember(ctx, "u1", "golang build pipeline", "", nil, nil)
	s.Remember(ctx, "u1", "golang generics and the build cache", "", nil, nil)
	s.Remember(ctx, "u1", "lunch plans", "", nil, nil)

	got, err := s.Recall(ctx, "u1", "golang build", 10)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recall returned %d records, want 2", len(got))
	}
	// Both match both keywords; recency breaks the tie.
	if got[0].Content != "golang generics and the build cache" {
		t.Errorf("first = %q, want the newer two-keyword match", got[0].Content)
	}
}

func TestRecallEmptyQueryReturnsRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Remember(ctx, "u1", "first", "", nil, nil)
	s.Remember(ctx, "u1", "second", "", nil, nil)

	got, err := s.Recall(ctx, "u1", "", 1)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("recall = %d records, want limit 1", len(got))
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, c := range []string{"a", "b", "c", "d", "e"} {
		s.Remember(ctx, "u1", c, "notes", nil, nil)
	}

	page1, _ := s.ListMemories(ctx, "u1", "notes", 0, 2)
	page2, _ := s.ListMemories(ctx, "u1", "notes", 2, 2)
	page3, _ := s.ListMemories(ctx, "u1", "notes", 4, 2)

	if len(page1) != 2 || len(page2) != 2 || len(page3) != 1 {
		t.Errorf("page sizes = %d/%d/%d, want 2/2/1", len(page1), len(page2), len(page3))
	}

	seen := map[string]bool{}
	for _, rec := range append(append(page1, page2...), page3...) {
		if seen[rec.ID] {
			t.Errorf("record %s appeared on two pages", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestUpdateMemoryOwnership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, _ := s.Remember(ctx, "u1", "original", "old", nil, nil)

	if _, err := s.UpdateMemory(ctx, "u2", rec.ID, "hijacked", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-actor update = %v, want ErrNotFound", err)
	}

	updated, err := s.UpdateMemory(ctx, "u1", rec.ID, "edited", "new")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "edited" || updated.Category != "new" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestForgetOwnership(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec, _ := s.Remember(ctx, "u1", "to be deleted", "", nil, nil)

	// Another actor cannot delete by guessing the ID.
	if err := s.Forget(ctx, "u2", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-actor forget = %v, want ErrNotFound", err)
	}
	if err := s.Forget(ctx, "u1", rec.ID); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if err := s.Forget(ctx, "u1", rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double forget = %v, want ErrNotFound", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Remember(ctx, "u1", "fact one", "work", []string{"a", "b"}, nil)
	s.Remember(ctx, "u1", "fact two", "home", nil, nil)
	s.Remember(ctx, "u2", "someone else's fact", "", nil, nil)

	exported, err := s.ExportMemories(ctx, "u1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("exported %d records, want 2", len(exported))
	}

	s2 := newTestStore(t)
	n, err := s2.ImportMemories(ctx, "u1", exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}

	reimported, _ := s2.ExportMemories(ctx, "u1")
	if len(reimported) != len(exported) {
		t.Fatalf("round trip lost records: %d != %d", len(reimported), len(exported))
	}
	for i := range exported {
		if reimported[i].Content != exported[i].Content ||
			reimported[i].Category != exported[i].Category ||
			len(reimported[i].Tags) != len(exported[i].Tags) {
			t.Errorf("record %d differs: %+v vs %+v", i, reimported[i], exported[i])
		}
		if reimported[i].ID == exported[i].ID {
			t.Errorf("record %d kept its old ID across import", i)
		}
	}
}

func TestClearMemories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Remember(ctx, "u1", "one", "", nil, nil)
	s.Remember(ctx, "u1", "two", "", nil, nil)
	s.Remember(ctx, "u2", "other", "", nil, nil)

	n, err := s.ClearMemories(ctx, "u1")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared %d, want 2", n)
	}
	if left, _ := s.ListMemories(ctx, "u2", "", 0, 10); len(left) != 1 {
		t.Error("clear must not touch other actors")
	}
}
