package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"photoline/internal/store"
	"photoline/internal/testsupport"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClockedStore(t *testing.T) (*store.Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now)), clock
}

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	version, err := st.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != "0001_init" {
		t.Fatalf("schema version = %q, want 0001_init", version)
	}
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if st.Path() != cfg.Database.Path {
		t.Fatalf("Path() = %q, want %q", st.Path(), cfg.Database.Path)
	}

	// Reopening must not reapply migrations.
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened := testsupport.MustOpenStore(t, cfg)
	if v, err := reopened.SchemaVersion(ctx); err != nil || v != "0001_init" {
		t.Fatalf("reopened schema version = %q, %v", v, err)
	}
}

func TestCreateUserAndLookup(t *testing.T) {
	st, _ := newClockedStore(t)
	ctx := context.Background()

	created, err := st.CreateUser(ctx, store.NewUser{
		AuthUserID: " auth-1 ",
		Email:      "ada@example.com",
		Username:   "ada",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.ID == "" || created.AuthUserID != "auth-1" {
		t.Fatalf("unexpected created user: %+v", created)
	}
	if created.Approved {
		t.Fatal("new user should not be approved by default")
	}

	byAuth, err := st.UserByAuthID(ctx, "auth-1")
	if err != nil {
		t.Fatalf("UserByAuthID: %v", err)
	}
	if byAuth.ID != created.ID || byAuth.Email != "ada@example.com" {
		t.Fatalf("UserByAuthID = %+v, want id %s", byAuth, created.ID)
	}
	byID, err := st.UserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if byID.AuthUserID != "auth-1" {
		t.Fatalf("UserByID auth id = %q", byID.AuthUserID)
	}

	if _, err := st.CreateUser(ctx, store.NewUser{AuthUserID: "auth-1", Username: "dup"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate CreateUser err = %v, want ErrDuplicate", err)
	}
	if _, err := st.UserByAuthID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing user err = %v, want ErrNotFound", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	st, _ := newClockedStore(t)
	tests := []struct {
		name string
		in   store.NewUser
	}{
		{"missing auth id", store.NewUser{Username: "x"}},
		{"missing username", store.NewUser{AuthUserID: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := st.CreateUser(context.Background(), tt.in); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSetApproved(t *testing.T) {
	st, clock := newClockedStore(t)
	ctx := context.Background()
	user := testsupport.MustCreateUser(t, st, "auth-2", "bo@example.com", false)

	clock.Advance(time.Minute)
	if err := st.SetApproved(ctx, "auth-2", true); err != nil {
		t.Fatalf("SetApproved: %v", err)
	}
	got, err := st.UserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if !got.Approved {
		t.Fatal("expected user to be approved")
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("updated_at %v should be after created_at %v", got.UpdatedAt, got.CreatedAt)
	}

	if err := st.SetApproved(ctx, "nobody", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("SetApproved unknown err = %v, want ErrNotFound", err)
	}
}

func TestListUsersOrdersByCreation(t *testing.T) {
	st, clock := newClockedStore(t)
	for _, id := range []string{"c", "a", "b"} {
		testsupport.MustCreateUser(t, st, id, id+"@example.com", id == "a")
		clock.Advance(time.Second)
	}
	users, err := st.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	var got []string
	for _, u := range users {
		got = append(got, u.AuthUserID)
	}
	want := []string{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("ListUsers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListUsers = %v, want %v", got, want)
		}
	}
}

func TestImageLifecycle(t *testing.T) {
	st, clock := newClockedStore(t)
	ctx := context.Background()
	user := testsupport.MustCreateUser(t, st, "auth-3", "cy@example.com", true)

	img, err := st.ReserveImage(ctx, store.Reservation{
		UserID:     user.ID,
		StorageKey: "cy/09-03-2024-abcdefghij.jpg",
		Width:      1920,
		Height:     1080,
		ByteSize:   2048,
	})
	if err != nil {
		t.Fatalf("ReserveImage: %v", err)
	}
	if img.Status != store.StatusPending || img.ID == 0 {
		t.Fatalf("unexpected reservation: %+v", img)
	}

	if _, err := st.ReserveImage(ctx, store.Reservation{UserID: user.ID, StorageKey: img.StorageKey}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("duplicate key err = %v, want ErrDuplicate", err)
	}

	clock.Advance(time.Second)
	if err := st.CompleteImage(ctx, img.ID, "https://cdn.example.com/"+img.StorageKey); err != nil {
		t.Fatalf("CompleteImage: %v", err)
	}
	got, err := st.ImageByID(ctx, img.ID)
	if err != nil {
		t.Fatalf("ImageByID: %v", err)
	}
	if got.Status != store.StatusStored || got.URL != "https://cdn.example.com/"+img.StorageKey {
		t.Fatalf("stored image = %+v", got)
	}
	if got.Width != 1920 || got.Height != 1080 || got.ByteSize != 2048 {
		t.Fatalf("dimensions not preserved: %+v", got)
	}

	if err := st.AbandonImage(ctx, img.ID, "STORAGE_TIMEOUT"); !errors.Is(err, store.ErrNotPending) {
		t.Fatalf("abandon after complete err = %v, want ErrNotPending", err)
	}
	if err := st.CompleteImage(ctx, 9999, "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("complete missing err = %v, want ErrNotFound", err)
	}
}

func TestAbandonRecordsCode(t *testing.T) {
	st, _ := newClockedStore(t)
	ctx := context.Background()
	user := testsupport.MustCreateUser(t, st, "auth-4", "", true)

	img, err := st.ReserveImage(ctx, store.Reservation{UserID: user.ID, StorageKey: "u/k.jpg"})
	if err != nil {
		t.Fatalf("ReserveImage: %v", err)
	}
	if err := st.AbandonImage(ctx, img.ID, "STORAGE_REJECTED"); err != nil {
		t.Fatalf("AbandonImage: %v", err)
	}
	got, err := st.ImageByID(ctx, img.ID)
	if err != nil {
		t.Fatalf("ImageByID: %v", err)
	}
	if got.Status != store.StatusAbandoned || got.ErrorCode != "STORAGE_REJECTED" || got.URL != "" {
		t.Fatalf("abandoned image = %+v", got)
	}
}

func TestStalePendingHonorsCutoffAndLimit(t *testing.T) {
	st, clock := newClockedStore(t)
	ctx := context.Background()
	user := testsupport.MustCreateUser(t, st, "auth-5", "", true)

	var ids []int64
	for _, key := range []string{"u/a.jpg", "u/b.jpg", "u/c.jpg"} {
		img, err := st.ReserveImage(ctx, store.Reservation{UserID: user.ID, StorageKey: key})
		if err != nil {
			t.Fatalf("ReserveImage %s: %v", key, err)
		}
		ids = append(ids, img.ID)
		clock.Advance(time.Minute)
	}
	if err := st.CompleteImage(ctx, ids[0], "https://x/u/a.jpg"); err != nil {
		t.Fatalf("CompleteImage: %v", err)
	}

	cutoff := clock.Now().Add(-90 * time.Second)
	stale, err := st.StalePending(ctx, cutoff, 10)
	if err != nil {
		t.Fatalf("StalePending: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != ids[1] {
		t.Fatalf("StalePending = %+v, want only id %d", stale, ids[1])
	}

	limited, err := st.StalePending(ctx, clock.Now().Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("StalePending limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != ids[1] {
		t.Fatalf("limited StalePending = %+v, want oldest pending id %d", limited, ids[1])
	}
}

func TestListImagesFiltersAndStats(t *testing.T) {
	st, clock := newClockedStore(t)
	ctx := context.Background()
	alice := testsupport.MustCreateUser(t, st, "alice", "", true)
	bob := testsupport.MustCreateUser(t, st, "bob", "", false)

	reserve := func(userID, key string, size int64) int64 {
		t.Helper()
		img, err := st.ReserveImage(ctx, store.Reservation{UserID: userID, StorageKey: key, ByteSize: size})
		if err != nil {
			t.Fatalf("ReserveImage %s: %v", key, err)
		}
		clock.Advance(time.Second)
		return img.ID
	}
	a1 := reserve(alice.ID, "alice/1.jpg", 100)
	a2 := reserve(alice.ID, "alice/2.jpg", 200)
	b1 := reserve(bob.ID, "bob/1.jpg", 300)
	for _, id := range []int64{a1, a2} {
		if err := st.CompleteImage(ctx, id, "https://x"); err != nil {
			t.Fatalf("CompleteImage: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter store.ListFilter
		want   []int64
	}{
		{"all newest first", store.ListFilter{}, []int64{b1, a2, a1}},
		{"by user", store.ListFilter{UserID: alice.ID}, []int64{a2, a1}},
		{"by status", store.ListFilter{Status: store.StatusPending}, []int64{b1}},
		{"limit", store.ListFilter{Limit: 1}, []int64{b1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images, err := st.ListImages(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListImages: %v", err)
			}
			if len(images) != len(tt.want) {
				t.Fatalf("got %d images, want %d", len(images), len(tt.want))
			}
			for i, img := range images {
				if img.ID != tt.want[i] {
					t.Fatalf("image[%d] = %d, want %d", i, img.ID, tt.want[i])
				}
			}
		})
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Users != 2 || stats.ApprovedUsers != 1 {
		t.Fatalf("user stats = %+v", stats)
	}
	if stats.Images[store.StatusStored] != 2 || stats.Images[store.StatusPending] != 1 {
		t.Fatalf("image stats = %+v", stats.Images)
	}
	if stats.StoredBytes != 300 {
		t.Fatalf("stored bytes = %d, want 300", stats.StoredBytes)
	}
}
