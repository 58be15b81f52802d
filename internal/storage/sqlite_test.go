package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

var ctx = context.Background()

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tickingClock returns a clock that advances by step on every call.
func tickingClock(start time.Time, step time.Duration) func() time.Time {
	cur := start
	return func() time.Time {
		t := cur
		cur = cur.Add(step)
		return t
	}
}

func strPtr(s string) *string { return &s }

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 applied migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{
		"idx_catalog_items_user", "idx_strategies_user", "idx_brains_user",
		"idx_generated_captions_user", "idx_sessions_user", "idx_jobs_status_run_after",
	}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestCreateCatalogItem_ServerTimestamp(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	item, err := s.CreateCatalogItem(ctx, "u1", CatalogItemFields{
		StoreName: "Toko A", ProductName: "Widget", Description: "desc",
	})
	if err != nil {
		t.Fatalf("CreateCatalogItem: %v", err)
	}
	if item.ID == "" {
		t.Error("expected generated id")
	}
	if !item.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", item.CreatedAt, fixed)
	}

	got, err := s.GetCatalogItem(ctx, "u1", item.ID)
	if err != nil {
		t.Fatalf("GetCatalogItem: %v", err)
	}
	if got.ID != item.ID || got.UserID != "u1" || got.StoreName != "Toko A" ||
		got.ProductName != "Widget" || got.ProductLink != "" || got.Description != "desc" ||
		!got.CreatedAt.Equal(fixed) {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, item)
	}
}

func TestListCatalogItems_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	s.SetClock(tickingClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute))

	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		item, err := s.CreateCatalogItem(ctx, "u1", CatalogItemFields{StoreName: "S", ProductName: name, Description: "d"})
		if err != nil {
			t.Fatalf("CreateCatalogItem: %v", err)
		}
		ids = append(ids, item.ID)
	}

	items, err := s.ListCatalogItems(ctx, "u1")
	if err != nil {
		t.Fatalf("ListCatalogItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	want := []string{"third", "second", "first"}
	for i, item := range items {
		if item.ProductName != want[i] {
			t.Errorf("items[%d] = %q, want %q", i, item.ProductName, want[i])
		}
	}
}

func TestListOrder_IndependentOfInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert with a clock that goes backwards: later inserts are older.
	offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
	for i, off := range offsets {
		at := base.Add(off)
		s.SetClock(func() time.Time { return at })
		if _, err := s.CreateStrategy(ctx, "u1", StrategyFields{Title: string(rune('a' + i)), Hook: "h", Example: "e"}); err != nil {
			t.Fatalf("CreateStrategy: %v", err)
		}
	}

	list, err := s.ListStrategies(ctx, "u1")
	if err != nil {
		t.Fatalf("ListStrategies: %v", err)
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatalf("list not sorted newest first: %v then %v", list[i-1].CreatedAt, list[i].CreatedAt)
		}
	}
	if list[0].Title != "a" || list[2].Title != "b" {
		t.Errorf("unexpected order: %q %q %q", list[0].Title, list[1].Title, list[2].Title)
	}
}

func TestUserScoping(t *testing.T) {
	s := openTestStore(t)

	mine, err := s.CreateBrain(ctx, "alice", BrainFields{Title: "Alice", Instruction: "be kind"})
	if err != nil {
		t.Fatalf("CreateBrain: %v", err)
	}
	theirs, err := s.CreateBrain(ctx, "bob", BrainFields{Title: "Bob", Instruction: "be brief"})
	if err != nil {
		t.Fatalf("CreateBrain: %v", err)
	}

	list, err := s.ListBrains(ctx, "alice")
	if err != nil {
		t.Fatalf("ListBrains: %v", err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("alice sees %+v", list)
	}

	if _, err := s.GetBrain(ctx, "alice", theirs.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetBrain across users: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteBrain(ctx, "alice", theirs.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteBrain across users: err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateBrain(ctx, "alice", theirs.ID, BrainPatch{Title: strPtr("hijack")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateBrain across users: err = %v, want ErrNotFound", err)
	}

	still, err := s.GetBrain(ctx, "bob", theirs.ID)
	if err != nil {
		t.Fatalf("GetBrain: %v", err)
	}
	if still.Title != "Bob" {
		t.Errorf("bob's brain changed: %+v", still)
	}
}

func TestDeleteRemovesFromList(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.CreateCatalogItem(ctx, "u1", CatalogItemFields{StoreName: "S", ProductName: "A", Description: "d"})
	b, _ := s.CreateCatalogItem(ctx, "u1", CatalogItemFields{StoreName: "S", ProductName: "B", Description: "d"})
	other, _ := s.CreateCatalogItem(ctx, "u2", CatalogItemFields{StoreName: "S", ProductName: "C", Description: "d"})

	if err := s.DeleteCatalogItem(ctx, "u1", a.ID); err != nil {
		t.Fatalf("DeleteCatalogItem: %v", err)
	}

	items, err := s.ListCatalogItems(ctx, "u1")
	if err != nil {
		t.Fatalf("ListCatalogItems: %v", err)
	}
	if len(items) != 1 || items[0].ID != b.ID {
		t.Errorf("after delete, list = %+v", items)
	}

	others, err := s.ListCatalogItems(ctx, "u2")
	if err != nil {
		t.Fatalf("ListCatalogItems: %v", err)
	}
	if len(others) != 1 || others[0].ID != other.ID {
		t.Errorf("other user's list changed: %+v", others)
	}

	if err := s.DeleteCatalogItem(ctx, "u1", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestPartialUpdate_KeepsIdentityAndTimestamp(t *testing.T) {
	s := openTestStore(t)

	item, err := s.CreateCatalogItem(ctx, "u1", CatalogItemFields{
		StoreName: "Toko A", ProductName: "Widget", ProductLink: "https://a.example/w", Description: "old",
	})
	if err != nil {
		t.Fatalf("CreateCatalogItem: %v", err)
	}

	if err := s.UpdateCatalogItem(ctx, "u1", item.ID, CatalogItemPatch{Description: strPtr("new")}); err != nil {
		t.Fatalf("UpdateCatalogItem: %v", err)
	}

	got, err := s.GetCatalogItem(ctx, "u1", item.ID)
	if err != nil {
		t.Fatalf("GetCatalogItem: %v", err)
	}
	if got.Description != "new" {
		t.Errorf("Description = %q, want new", got.Description)
	}
	if got.StoreName != "Toko A" || got.ProductLink != "https://a.example/w" {
		t.Errorf("untouched fields changed: %+v", got)
	}
	if got.ID != item.ID || !got.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("identity changed: %+v vs %+v", got, item)
	}
}

func TestEmptyPatch_MissingRecord(t *testing.T) {
	s := openTestStore(t)
	if err := s.UpdateStrategy(ctx, "u1", "nope", StrategyPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGeneratedCaption_SnapshotSurvivesSourceEdits(t *testing.T) {
	s := openTestStore(t)

	st, err := s.CreateStrategy(ctx, "u1", StrategyFields{Title: "PAS", Hook: "problem", Example: "Capek?"})
	if err != nil {
		t.Fatalf("CreateStrategy: %v", err)
	}
	gc, err := s.CreateGeneratedCaption(ctx, "u1", GeneratedCaptionFields{
		StoreName: "Toko A", ProductName: "Widget", Tone: "Lucu & Santai",
		StrategyTitle: st.Title, GeneratedCaption: "Halo!", Hashtags: []string{"#a", "b"},
	})
	if err != nil {
		t.Fatalf("CreateGeneratedCaption: %v", err)
	}

	if err := s.UpdateStrategy(ctx, "u1", st.ID, StrategyPatch{Title: strPtr("Renamed")}); err != nil {
		t.Fatalf("UpdateStrategy: %v", err)
	}
	if err := s.DeleteStrategy(ctx, "u1", st.ID); err != nil {
		t.Fatalf("DeleteStrategy: %v", err)
	}

	got, err := s.GetGeneratedCaption(ctx, "u1", gc.ID)
	if err != nil {
		t.Fatalf("GetGeneratedCaption: %v", err)
	}
	if got.StrategyTitle != "PAS" {
		t.Errorf("StrategyTitle = %q, want PAS", got.StrategyTitle)
	}
	if len(got.Hashtags) != 2 || got.Hashtags[1] != "b" {
		t.Errorf("Hashtags = %v", got.Hashtags)
	}
}

func TestGeneratedCaption_EmptyHashtags(t *testing.T) {
	s := openTestStore(t)

	gc, err := s.CreateGeneratedCaption(ctx, "u1", GeneratedCaptionFields{
		StoreName: "S", ProductName: "P", Tone: "Edukatif", GeneratedCaption: "x",
	})
	if err != nil {
		t.Fatalf("CreateGeneratedCaption: %v", err)
	}
	list, err := s.ListGeneratedCaptions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListGeneratedCaptions: %v", err)
	}
	if len(list) != 1 || list[0].ID != gc.ID {
		t.Fatalf("list = %+v", list)
	}
	if list[0].Hashtags == nil || len(list[0].Hashtags) != 0 {
		t.Errorf("Hashtags = %#v, want empty non-nil slice", list[0].Hashtags)
	}
}

func TestListEmptyIsNonNil(t *testing.T) {
	s := openTestStore(t)
	items, err := s.ListCatalogItems(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListCatalogItems: %v", err)
	}
	if items == nil {
		t.Error("expected empty non-nil slice")
	}
}

func TestUsers_EmailUniqueCaseInsensitive(t *testing.T) {
	s := openTestStore(t)

	u, err := s.CreateUser(ctx, User{Email: "Owner@Example.com", DisplayName: "Owner"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "owner@example.com" {
		t.Errorf("Email = %q", u.Email)
	}
	if _, err := s.CreateUser(ctx, User{Email: "owner@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate: err = %v, want ErrEmailTaken", err)
	}

	got, err := s.GetUserByEmail(ctx, " OWNER@example.com ")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID || got.Provider != "password" {
		t.Errorf("got %+v", got)
	}
}

func TestSessions_Revoke(t *testing.T) {
	s := openTestStore(t)
	u, _ := s.CreateUser(ctx, User{Email: "a@b.c"})

	now := time.Now().UTC()
	if err := s.CreateSession(ctx, Session{ID: "sess-1", UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.RevokeSession(ctx, "sess-1"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if err := s.RevokeSession(ctx, "sess-1"); err != nil {
		t.Fatalf("second RevokeSession: %v", err)
	}
	sess, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.RevokedAt.IsZero() {
		t.Error("expected RevokedAt to be set")
	}
	if err := s.RevokeSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoke missing: err = %v", err)
	}
}

func TestPasswordReset_ConsumeOnce(t *testing.T) {
	s := openTestStore(t)
	u, _ := s.CreateUser(ctx, User{Email: "a@b.c", PasswordHash: "old"})

	if err := s.CreatePasswordReset(ctx, PasswordReset{Code: "code-1", UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("CreatePasswordReset: %v", err)
	}
	if err := s.ConsumePasswordReset(ctx, "code-1", "new", time.Now()); err != nil {
		t.Fatalf("ConsumePasswordReset: %v", err)
	}
	got, _ := s.GetUser(ctx, u.ID)
	if got.PasswordHash != "new" {
		t.Errorf("PasswordHash = %q, want new", got.PasswordHash)
	}
	if err := s.ConsumePasswordReset(ctx, "code-1", "again", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second consume: err = %v, want ErrNotFound", err)
	}
}

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(ctx, Job{ID: "j1", Type: "password_reset_email", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	j, err := s.ClaimNextJob(ctx, []string{"password_reset_email"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if j == nil || j.ID != "j1" || j.Status != "running" {
		t.Fatalf("claimed %+v", j)
	}

	again, err := s.ClaimNextJob(ctx, []string{"password_reset_email"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if again != nil {
		t.Errorf("running job claimed twice: %+v", again)
	}
}

func TestClaimNextJob_TypeFilterAndRunAfter(t *testing.T) {
	s := openTestStore(t)

	s.EnqueueJob(ctx, Job{ID: "other", Type: "other", PayloadJSON: `{}`})
	s.EnqueueJob(ctx, Job{ID: "later", Type: "mail", PayloadJSON: `{}`, RunAfter: time.Now().Add(time.Hour)})

	j, err := s.ClaimNextJob(ctx, []string{"mail"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if j != nil {
		t.Errorf("expected nothing due, got %+v", j)
	}
}

func TestFailJob_BackoffThenFailed(t *testing.T) {
	s := openTestStore(t)
	s.EnqueueJob(ctx, Job{ID: "j1", Type: "mail", PayloadJSON: `{}`, MaxAttempts: 2})

	if _, err := s.ClaimNextJob(ctx, []string{"mail"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	before := time.Now().UTC()
	if err := s.FailJob(ctx, "j1", "smtp down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != "pending" || j.Attempts != 1 || j.LastError != "smtp down" {
		t.Errorf("after first failure: %+v", j)
	}
	if j.RunAfter.Before(before.Add(time.Second)) {
		t.Errorf("RunAfter = %v, expected backoff of at least 1s", j.RunAfter)
	}

	if err := s.FailJob(ctx, "j1", "still down"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	j, _ = s.GetJob(ctx, "j1")
	if j.Status != "failed" || j.Attempts != 2 {
		t.Errorf("after second failure: %+v", j)
	}

	if err := s.CompleteJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompleteJob(missing): err = %v", err)
	}
}
