package main

import (
	"encoding/json"
	"strings"
	"testing"

	"photoline/internal/api"
)

func TestUsersLifecycle(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "users", "add", "auth-ada", "--email", "ada@example.com")
	if err != nil {
		t.Fatalf("users add: %v", err)
	}
	requireContains(t, out, "Added member auth-ada", "approved: no")

	if _, _, err := runCLI(t, env.configPath, "users", "add", "auth-ada", "--email", "ada@example.com"); err == nil {
		t.Fatal("expected duplicate add to fail")
	}

	out, _, err = runCLI(t, env.configPath, "users", "approve", "auth-ada")
	if err != nil {
		t.Fatalf("users approve: %v", err)
	}
	requireContains(t, out, "Member auth-ada approved: yes")

	out, _, err = runCLI(t, env.configPath, "users", "list", "--json")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	var users []api.UserItem
	if err := json.Unmarshal([]byte(out), &users); err != nil {
		t.Fatalf("decode users: %v\n%s", err, out)
	}
	if len(users) != 1 || users[0].Username != "ada" || !users[0].Approved {
		t.Fatalf("users = %+v", users)
	}

	if _, _, err := runCLI(t, env.configPath, "users", "revoke", "auth-ada"); err != nil {
		t.Fatalf("users revoke: %v", err)
	}
	out, _, err = runCLI(t, env.configPath, "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	requireContains(t, out, "auth-ada", "ada@example.com")

	_, _, err = runCLI(t, env.configPath, "users", "approve", "auth-nobody")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("approve unknown member error = %v", err)
	}
}

func TestUsernameFor(t *testing.T) {
	tests := []struct {
		email    string
		fallback string
		want     string
	}{
		{"ada@example.com", "auth-ada", "ada"},
		{" grace.hopper@navy.mil ", "auth-grace", "grace.hopper"},
		{"", "auth-anon", "auth-anon"},
		{"@example.com", "auth-odd", "auth-odd"},
	}
	for _, tt := range tests {
		if got := usernameFor(tt.email, tt.fallback); got != tt.want {
			t.Errorf("usernameFor(%q, %q) = %q, want %q", tt.email, tt.fallback, got, tt.want)
		}
	}
}
