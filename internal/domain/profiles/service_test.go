package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/internal/domain/auth"
)

type memStore struct {
	profiles map[string]Profile
	updates  [][]Change
}

func (m *memStore) GetByID(ctx context.Context, id string) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *memStore) List(ctx context.Context) ([]Profile, error) {
	out := []Profile{}
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) Update(ctx context.Context, id string, changes []Change) error {
	p, ok := m.profiles[id]
	if !ok {
		return ErrNotFound
	}
	for _, c := range changes {
		switch c.Column {
		case "name":
			p.Name = c.Value.(string)
		case "role":
			p.Role = c.Value.(string)
		case "has_project":
			p.HasProject = c.Value.(bool)
		case "balance":
			p.Balance = c.Value.(int)
		}
	}
	m.profiles[id] = p
	m.updates = append(m.updates, changes)
	return nil
}

func newStore() *memStore {
	return &memStore{profiles: map[string]Profile{
		"c1": {ID: "c1", Name: "Ana", Role: auth.RoleCollaborator},
		"h1": {ID: "h1", Name: "Hugo", Role: auth.RoleHR},
		"a1": {ID: "a1", Name: "Alba", Role: auth.RoleAdmin},
	}}
}

var (
	collaborator = auth.Principal{ID: "c1", Role: auth.RoleCollaborator}
	hr           = auth.Principal{ID: "h1", Role: auth.RoleHR}
	admin        = auth.Principal{ID: "a1", Role: auth.RoleAdmin}
)

func strPtr(s string) *string { return &s }

func TestGet(t *testing.T) {
	svc := NewService(newStore())
	ctx := context.Background()

	p, err := svc.Get(ctx, collaborator, "me")
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.Name)

	_, err = svc.Get(ctx, collaborator, "h1")
	assert.ErrorIs(t, err, ErrForbidden)

	for _, reader := range []auth.Principal{hr, admin} {
		p, err = svc.Get(ctx, reader, "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", p.ID)
	}

	_, err = svc.Get(ctx, admin, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	svc := NewService(newStore())
	_, err := svc.List(context.Background(), hr)
	assert.ErrorIs(t, err, ErrForbidden)

	items, err := svc.List(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	hasProject := true
	balance := -1

	tests := []struct {
		name    string
		actor   auth.Principal
		in      UpdateInput
		wantErr error
	}{
		{"self name", collaborator, UpdateInput{Name: strPtr(" Ana María ")}, nil},
		{"nothing to update", collaborator, UpdateInput{}, ErrValidation},
		{"other user as collaborator", collaborator, UpdateInput{ID: "h1", Name: strPtr("x")}, ErrForbidden},
		{"other user as hr", hr, UpdateInput{ID: "c1", Name: strPtr("x")}, ErrForbidden},
		{"role as collaborator", collaborator, UpdateInput{Role: strPtr(auth.RoleAdmin)}, ErrForbidden},
		{"project as hr", hr, UpdateInput{HasProject: &hasProject}, ErrForbidden},
		{"unknown role", admin, UpdateInput{ID: "c1", Role: strPtr("Boss")}, ErrValidation},
		{"bad join date", collaborator, UpdateInput{JoinDate: strPtr("01/02/2024")}, ErrValidation},
		{"negative balance", admin, UpdateInput{ID: "c1", Balance: &balance}, ErrValidation},
		{"empty name", collaborator, UpdateInput{Name: strPtr("  ")}, ErrValidation},
		{"admin sets role", admin, UpdateInput{ID: "c1", Role: strPtr(auth.RoleProjectManager), HasProject: &hasProject}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newStore()
			svc := NewService(store)
			_, err := svc.Update(ctx, tc.actor, tc.in)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				assert.Empty(t, store.updates)
				return
			}
			require.NoError(t, err)
			assert.Len(t, store.updates, 1)
		})
	}
}

func TestUpdateReturnsFreshProfile(t *testing.T) {
	svc := NewService(newStore())
	hasProject := true
	p, err := svc.Update(context.Background(), admin, UpdateInput{ID: "c1", Role: strPtr(auth.RoleLeader), HasProject: &hasProject})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleLeader, p.Role)
	assert.True(t, p.HasProject)

	p, err = svc.Update(context.Background(), collaborator, UpdateInput{Name: strPtr(" Ana María ")})
	require.NoError(t, err)
	assert.Equal(t, "Ana María", p.Name)
}
