package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wildcard matches every permission when present in a role's permission or
// ban set.
const Wildcard = "*"

// System role orders. Roles are seeded at deployment; the core resolves them
// by order, never by database id.
const (
	RoleOrderGuest         = 0
	RoleOrderAuthenticated = 1
)

// Permission keys used across the platform.
const (
	PermSiteView        = "site.view"
	PermAudioPublicView = "audio.public.view"
	PermUserPublicView  = "user.public.view"
	PermAudioUpload     = "audio.upload"
	PermAudioOwnManage  = "audio.own.manage"
	PermAudioVote       = "audio.vote"
	PermAudioFavorite   = "audio.favorite"
	PermProfileEdit     = "profile.edit"
)

// Evaluator computes whether an identity holds a named permission given its
// assigned roles. An empty user id means the anonymous identity, which is
// evaluated against the guest role alone.
type Evaluator struct {
	store Store
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(store Store) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &Evaluator{store: store}, nil
}

// EnsureSystemRoles validates at startup that the roles the evaluator
// resolves by order actually exist.
func (e *Evaluator) EnsureSystemRoles(ctx context.Context) error {
	for _, order := range []int{RoleOrderGuest, RoleOrderAuthenticated} {
		if _, err := e.store.Roles(ctx).FindByOrder(ctx, order); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("auth: system role with order %d is not seeded", order)
			}
			return err
		}
	}
	return nil
}

// ResolveRoles returns the role set for an identity, sorted by order
// descending (highest authority first). Anonymous identities resolve to the
// single guest role.
func (e *Evaluator) ResolveRoles(ctx context.Context, userID string) ([]*Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		guest, err := e.store.Roles(ctx).FindByOrder(ctx, RoleOrderGuest)
		if err != nil {
			return nil, err
		}
		return []*Role{guest}, nil
	}
	roles, err := e.store.Roles(ctx).ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Order > roles[j].Order })
	return roles, nil
}

// Check evaluates the deny-override policy: a ban (wildcard or exact) in any
// held role vetoes the permission outright, regardless of role priority —
// grants from higher-order roles do not survive a ban in a lower-order one.
// Grants (wildcard or exact) are recorded tentatively and only count if no
// role in the whole set carries a ban. This precedence is the
// security-critical contract of the platform; do not replace it with a
// highest-priority-wins scheme.
func (e *Evaluator) Check(ctx context.Context, userID, permission string) (bool, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return false, fmt.Errorf("%w: permission is required", ErrInvalidInput)
	}
	roles, err := e.ResolveRoles(ctx, userID)
	if err != nil {
		return false, err
	}

	granted := false
	for _, role := range roles {
		if containsPermission(role.Bans, permission) {
			return false, nil
		}
		if containsPermission(role.Permissions, permission) {
			granted = true
		}
	}
	return granted, nil
}

func containsPermission(set []string, permission string) bool {
	for _, p := range set {
		if p == Wildcard || p == permission {
			return true
		}
	}
	return false
}
