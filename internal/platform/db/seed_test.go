package db

import (
	"testing"
)

func TestParseSeed(t *testing.T) {
	users, err := parseSeed([]byte(`
users:
  - email: " Ana@Example.com "
    name: Ana
    role: Leader
    hasProject: true
    joinDate: "2023-04-01"
  - email: luis@example.com
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Email != "ana@example.com" || users[0].Role != "Leader" || !users[0].HasProject {
		t.Fatalf("unexpected first user %+v", users[0])
	}
	if users[1].Role != "Collaborator" {
		t.Fatalf("expected default role, got %q", users[1].Role)
	}
}

func TestParseSeedRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing email": "users:\n  - name: Ana\n",
		"unknown role":  "users:\n  - email: a@example.com\n    role: Boss\n",
		"bad date":      "users:\n  - email: a@example.com\n    joinDate: 01/02/2023\n",
		"bad yaml":      "users: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseSeed([]byte(raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
