package testsupport

import (
	"context"
	"testing"

	"photoline/internal/config"
	"photoline/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// MustCreateUser registers a user keyed by authID with the given approval.
func MustCreateUser(t testing.TB, st *store.Store, authID, email string, approved bool) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), store.NewUser{
		AuthUserID: authID,
		Email:      email,
		Username:   authID,
		Approved:   approved,
	})
	if err != nil {
		t.Fatalf("store.CreateUser: %v", err)
	}
	return user
}
