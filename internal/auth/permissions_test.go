package auth

import (
	"context"
	"errors"
	"testing"
)

// seedSystemRoles mirrors seeds/0001_system_roles.sql for in-memory tests.
func seedSystemRoles(store *MemoryStore) {
	store.SeedRole(Role{
		ID: "role-blacklist", Order: 300, Name: "blacklist", DisplayName: "Blacklist",
		IsSystemRole: true, Bans: []string{Wildcard},
	})
	store.SeedRole(Role{
		ID: "role-admin", Order: 255, Name: "admin", DisplayName: "Admin",
		IsSystemRole: true, Permissions: []string{Wildcard},
	})
	store.SeedRole(Role{
		ID: "role-authenticated", Order: RoleOrderAuthenticated, Name: "authenticated", DisplayName: "Authenticated",
		IsSystemRole: true,
		Permissions: []string{
			PermAudioUpload, PermAudioOwnManage, PermProfileEdit,
			PermAudioVote, PermAudioFavorite,
		},
	})
	store.SeedRole(Role{
		ID: "role-guest", Order: RoleOrderGuest, Name: "guest", DisplayName: "Guest",
		IsSystemRole: true,
		Permissions: []string{
			PermSiteView, PermAudioPublicView, PermUserPublicView,
		},
	})
}

func assignRole(t *testing.T, store *MemoryStore, userID, roleID string) {
	t.Helper()
	if err := store.Roles(context.Background()).Assign(context.Background(), UserRole{UserID: userID, RoleID: roleID}); err != nil {
		t.Fatalf("assign role %s: %v", roleID, err)
	}
}

func TestCheckBanVetoesHigherOrderGrant(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	store.SeedRole(Role{
		ID: "role-uploader", Order: 10, Name: "uploader",
		Permissions: []string{PermAudioUpload},
	})
	store.SeedRole(Role{
		ID: "role-upload-banned", Order: 2, Name: "upload-banned",
		Bans: []string{PermAudioUpload},
	})
	assignRole(t, store, "user-1", "role-uploader")
	assignRole(t, store, "user-1", "role-upload-banned")

	eval, err := NewEvaluator(store)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	allowed, err := eval.Check(context.Background(), "user-1", PermAudioUpload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if allowed {
		t.Fatal("ban in a lower-order role must veto a grant from a higher-order role")
	}
}

func TestCheckWildcardBanBeatsWildcardGrant(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	assignRole(t, store, "user-1", "role-admin")
	assignRole(t, store, "user-1", "role-blacklist")

	eval, _ := NewEvaluator(store)
	for _, perm := range []string{PermSiteView, PermAudioUpload, "anything.else"} {
		allowed, err := eval.Check(context.Background(), "user-1", perm)
		if err != nil {
			t.Fatalf("Check(%s): %v", perm, err)
		}
		if allowed {
			t.Fatalf("blacklisted user must be denied %s despite admin wildcard", perm)
		}
	}
}

func TestCheckWildcardGrant(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	assignRole(t, store, "user-1", "role-admin")

	eval, _ := NewEvaluator(store)
	for _, perm := range []string{PermAudioUpload, PermProfileEdit, "moderation.queue"} {
		allowed, err := eval.Check(context.Background(), "user-1", perm)
		if err != nil {
			t.Fatalf("Check(%s): %v", perm, err)
		}
		if !allowed {
			t.Fatalf("admin wildcard must grant %s", perm)
		}
	}
}

func TestCheckAnonymousUsesGuestRole(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	eval, _ := NewEvaluator(store)

	allowed, err := eval.Check(context.Background(), "", PermSiteView)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !allowed {
		t.Fatal("anonymous identity must hold guest permissions")
	}

	allowed, err = eval.Check(context.Background(), "", PermAudioUpload)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if allowed {
		t.Fatal("anonymous identity must not hold authenticated permissions")
	}
}

func TestCheckUserWithoutRoles(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	eval, _ := NewEvaluator(store)

	allowed, err := eval.Check(context.Background(), "user-nobody", PermSiteView)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if allowed {
		t.Fatal("a user with no roles holds no permissions")
	}
}

func TestCheckEmptyPermission(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	eval, _ := NewEvaluator(store)

	if _, err := eval.Check(context.Background(), "user-1", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResolveRolesSortedByOrderDescending(t *testing.T) {
	store := NewMemoryStore()
	seedSystemRoles(store)
	assignRole(t, store, "user-1", "role-authenticated")
	assignRole(t, store, "user-1", "role-admin")
	assignRole(t, store, "user-1", "role-guest")

	eval, _ := NewEvaluator(store)
	roles, err := eval.ResolveRoles(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ResolveRoles: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("expected 3 roles, got %d", len(roles))
	}
	for i := 1; i < len(roles); i++ {
		if roles[i-1].Order < roles[i].Order {
			t.Fatalf("roles not sorted by order descending: %d before %d", roles[i-1].Order, roles[i].Order)
		}
	}
	if roles[0].Name != "admin" {
		t.Fatalf("expected admin first, got %s", roles[0].Name)
	}
}

func TestEnsureSystemRoles(t *testing.T) {
	store := NewMemoryStore()
	eval, _ := NewEvaluator(store)
	if err := eval.EnsureSystemRoles(context.Background()); err == nil {
		t.Fatal("expected error when system roles are not seeded")
	}

	seedSystemRoles(store)
	if err := eval.EnsureSystemRoles(context.Background()); err != nil {
		t.Fatalf("EnsureSystemRoles after seeding: %v", err)
	}
}
