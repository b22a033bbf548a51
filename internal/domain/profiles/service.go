package profiles

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leaveflow/internal/domain/auth"
)

type Service struct {
	store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store}
}

// Get returns a profile. Anyone may read their own; other profiles need
// profiles.read.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (Profile, error) {
	if id == "" || id == "me" {
		id = p.ID
	}
	if id != p.ID && !allowed(ctx, p, auth.PermProfilesRead) {
		return Profile{}, ErrForbidden
	}
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, p auth.Principal) ([]Profile, error) {
	if !allowed(ctx, p, auth.PermProfilesAdmin) {
		return nil, ErrForbidden
	}
	return s.store.List(ctx)
}

// Update applies a partial update to the caller's profile, or to another
// user's when the caller administers profiles. Role and project membership
// are admin-only.
func (s *Service) Update(ctx context.Context, p auth.Principal, in UpdateInput) (Profile, error) {
	target := strings.TrimSpace(in.ID)
	if target == "" {
		target = p.ID
	}
	isAdmin := allowed(ctx, p, auth.PermProfilesAdmin)
	if target != p.ID && !isAdmin {
		return Profile{}, ErrForbidden
	}
	if (in.Role != nil || in.HasProject != nil) && !isAdmin {
		return Profile{}, fmt.Errorf("%w: only administrators can change role or project membership", ErrForbidden)
	}

	changes, err := changesFor(in)
	if err != nil {
		return Profile{}, err
	}
	if len(changes) == 0 {
		return Profile{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if err := s.store.Update(ctx, target, changes); err != nil {
		return Profile{}, err
	}
	return s.store.GetByID(ctx, target)
}

func changesFor(in UpdateInput) ([]Change, error) {
	var changes []Change
	text := func(column string, v *string) {
		if v != nil {
			changes = append(changes, Change{Column: column, Value: strings.TrimSpace(*v)})
		}
	}
	text("department", in.Department)
	text("position", in.Position)
	text("leader_name", in.LeaderName)

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		changes = append(changes, Change{Column: "name", Value: name})
	}
	if in.JoinDate != nil {
		raw := strings.TrimSpace(*in.JoinDate)
		if raw == "" {
			changes = append(changes, Change{Column: "join_date", Value: nil})
		} else {
			day, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, fmt.Errorf("%w: joinDate must be YYYY-MM-DD", ErrValidation)
			}
			changes = append(changes, Change{Column: "join_date", Value: day})
		}
	}
	if in.Balance != nil {
		if *in.Balance < 0 {
			return nil, fmt.Errorf("%w: balance cannot be negative", ErrValidation)
		}
		changes = append(changes, Change{Column: "balance", Value: *in.Balance})
	}
	if in.Role != nil {
		role := strings.TrimSpace(*in.Role)
		if !auth.ValidRole(role) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
		}
		changes = append(changes, Change{Column: "role", Value: role})
	}
	if in.HasProject != nil {
		changes = append(changes, Change{Column: "has_project", Value: *in.HasProject})
	}
	return changes, nil
}

func allowed(ctx context.Context, p auth.Principal, perm string) bool {
	ok, _ := auth.StaticPermissions{}.HasPermission(ctx, p.Role, perm)
	return ok
}
