package access

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"fieldgate.dev/internal/obs"
)

func newAdmin(t *testing.T) (*Admin, *InMemory, Organization) {
	t.Helper()
	ctx := context.Background()
	store := NewInMemory()
	admin, err := NewAdmin(store)
	if err != nil {
		t.Fatalf("NewAdmin: %v", err)
	}
	org, err := admin.CreateOrganization(ctx, "acme")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	return admin, store, org
}

func TestCreateSharingRuleValidation(t *testing.T) {
	admin, _, org := newAdmin(t)
	ctx := context.Background()
	role, _ := admin.CreateRole(ctx, org.ID, "lead", "", 0)

	base := RuleSpec{
		OrganizationID: org.ID,
		Object:         "invoice",
		Name:           "lead-read",
		SharedToRoleID: role.ID,
		AccessLevel:    AccessRead,
	}

	rule, err := admin.CreateSharingRule(ctx, base)
	if err != nil {
		t.Fatalf("CreateSharingRule: %v", err)
	}
	if rule.Type != RuleOwnershipBased {
		t.Fatalf("empty type must default to ownership_based, got %s", rule.Type)
	}
	if !rule.Active {
		t.Fatalf("new rules start active")
	}

	crit := base
	crit.Name = "big-deals"
	crit.Type = RuleCriteriaBased
	if _, err := admin.CreateSharingRule(ctx, crit); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("criteria rules must be rejected, got %v", err)
	} else if !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("rejection should say why: %v", err)
	}

	odd := base
	odd.Name = "odd-type"
	odd.Type = RuleType("territory_based")
	if _, err := admin.CreateSharingRule(ctx, odd); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown type must be rejected, got %v", err)
	}

	noRole := base
	noRole.Name = "no-role"
	noRole.SharedToRoleID = ""
	if _, err := admin.CreateSharingRule(ctx, noRole); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing target role must be rejected, got %v", err)
	}

	badLevel := base
	badLevel.Name = "bad-level"
	badLevel.AccessLevel = AccessLevel("full_control")
	if _, err := admin.CreateSharingRule(ctx, badLevel); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown access level must be rejected, got %v", err)
	}

	dup := base
	if _, err := admin.CreateSharingRule(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate rule name must conflict, got %v", err)
	}
}

func TestReparentRoleGuards(t *testing.T) {
	admin, _, org := newAdmin(t)
	ctx := context.Background()

	root, _ := admin.CreateRole(ctx, org.ID, "root", "", 0)
	mid, _ := admin.CreateRole(ctx, org.ID, "mid", root.ID, 1)
	leaf, _ := admin.CreateRole(ctx, org.ID, "leaf", mid.ID, 2)

	if _, err := admin.ReparentRole(ctx, mid.ID, mid.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("self-parent must be rejected, got %v", err)
	}

	// root under leaf would close the loop root > mid > leaf > root.
	if _, err := admin.ReparentRole(ctx, root.ID, leaf.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cycle-introducing reparent must be rejected, got %v", err)
	}

	moved, err := admin.ReparentRole(ctx, leaf.ID, root.ID)
	if err != nil {
		t.Fatalf("ReparentRole: %v", err)
	}
	if moved.ParentID != root.ID {
		t.Fatalf("parent not updated: %+v", moved)
	}
}

func TestDeleteRoleReparentsChildren(t *testing.T) {
	admin, store, org := newAdmin(t)
	ctx := context.Background()

	root, _ := admin.CreateRole(ctx, org.ID, "root", "", 0)
	mid, _ := admin.CreateRole(ctx, org.ID, "mid", root.ID, 1)
	leaf, _ := admin.CreateRole(ctx, org.ID, "leaf", mid.ID, 2)

	profile, _ := admin.CreateProfile(ctx, org.ID, "basic")
	user, _ := admin.CreateUser(ctx, org.ID, "mid@acme.test", profile.ID, mid.ID)
	rule, _ := admin.CreateSharingRule(ctx, RuleSpec{
		OrganizationID: org.ID,
		Object:         "invoice",
		Name:           "mid-read",
		SharedToRoleID: mid.ID,
		AccessLevel:    AccessRead,
	})

	if err := admin.DeleteRole(ctx, mid.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}

	got, err := store.Roles().Find(ctx, leaf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID != root.ID {
		t.Fatalf("children must move up to the deleted role's parent, got %s", got.ParentID)
	}

	u, err := store.Users().Find(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if u.RoleID != "" {
		t.Fatalf("users of a deleted role must lose the assignment, got %s", u.RoleID)
	}

	if _, err := store.SharingRules().Find(ctx, rule.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rules targeting a deleted role must go with it, got %v", err)
	}
}

func TestCreateRoleValidation(t *testing.T) {
	admin, _, org := newAdmin(t)
	ctx := context.Background()

	if _, err := admin.CreateRole(ctx, org.ID, "bad", "", -1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative level must be rejected, got %v", err)
	}
	if _, err := admin.CreateRole(ctx, org.ID, "orphan", "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing parent must be signaled, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	admin, _, org := newAdmin(t)
	ctx := context.Background()
	profile, _ := admin.CreateProfile(ctx, org.ID, "basic")

	if _, err := admin.CreateUser(ctx, org.ID, "not-an-email", profile.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("malformed email must be rejected, got %v", err)
	}

	user, err := admin.CreateUser(ctx, org.ID, "Mixed.Case@Acme.Test", profile.ID, "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "mixed.case@acme.test" {
		t.Fatalf("emails are stored lowercase, got %s", user.Email)
	}
	if user.Status != UserStatusActive {
		t.Fatalf("new users start active, got %s", user.Status)
	}

	if _, err := admin.CreateUser(ctx, org.ID, "mixed.case@acme.test", profile.ID, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email must conflict, got %v", err)
	}
}

func TestCrossOrgReferencesRejected(t *testing.T) {
	admin, _, org := newAdmin(t)
	ctx := context.Background()

	other, _ := admin.CreateOrganization(ctx, "globex")
	otherProfile, _ := admin.CreateProfile(ctx, other.ID, "basic")
	otherRole, _ := admin.CreateRole(ctx, other.ID, "lead", "", 0)

	if _, err := admin.CreateUser(ctx, org.ID, "a@acme.test", otherProfile.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cross-org profile must be rejected, got %v", err)
	}

	profile, _ := admin.CreateProfile(ctx, org.ID, "basic")
	if _, err := admin.CreateUser(ctx, org.ID, "a@acme.test", profile.ID, otherRole.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cross-org role must be rejected, got %v", err)
	}

	user, err := admin.CreateUser(ctx, org.ID, "a@acme.test", profile.ID, "")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := admin.AssignRole(ctx, user.ID, otherRole.ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("cross-org assignment must be rejected, got %v", err)
	}

	role, _ := admin.CreateRole(ctx, org.ID, "lead", "", 0)
	assigned, err := admin.AssignRole(ctx, user.ID, role.ID)
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if assigned.RoleID != role.ID {
		t.Fatalf("role not assigned: %+v", assigned)
	}
	cleared, err := admin.ClearRole(ctx, user.ID)
	if err != nil {
		t.Fatalf("ClearRole: %v", err)
	}
	if cleared.RoleID != "" {
		t.Fatalf("role not cleared: %+v", cleared)
	}
}

func TestProfileLifecycle(t *testing.T) {
	admin, store, org := newAdmin(t)
	ctx := context.Background()

	profile, err := admin.CreateProfile(ctx, org.ID, "basic")
	if err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := admin.CreateProfile(ctx, org.ID, "basic"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate profile name must conflict, got %v", err)
	}

	// Same name in another org is fine.
	other, _ := admin.CreateOrganization(ctx, "globex")
	if _, err := admin.CreateProfile(ctx, other.ID, "basic"); err != nil {
		t.Fatalf("same name across orgs: %v", err)
	}

	if _, err := admin.SetObjectPermission(ctx, profile.ID, "invoice", ObjectPerms{Read: true}); err != nil {
		t.Fatal(err)
	}

	user, _ := admin.CreateUser(ctx, org.ID, "u@acme.test", profile.ID, "")
	if err := admin.DeleteProfile(ctx, profile.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("referenced profile must not be deletable, got %v", err)
	}

	if err := store.Users().Delete(ctx, user.ID); err != nil {
		t.Fatal(err)
	}
	if err := admin.DeleteProfile(ctx, profile.ID); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, err := store.ObjectPermissions().Get(ctx, profile.ID, "invoice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("permissions must cascade with the profile, got %v", err)
	}
}

func TestSetOrgDefaultValidation(t *testing.T) {
	admin, store, org := newAdmin(t)
	ctx := context.Background()

	if _, err := admin.SetOrgDefault(ctx, org.ID, "invoice", DefaultLevel("open")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown level must be rejected, got %v", err)
	}

	def, err := admin.SetOrgDefault(ctx, org.ID, "invoice", DefaultPublicReadOnly)
	if err != nil {
		t.Fatalf("SetOrgDefault: %v", err)
	}
	if def.Level != DefaultPublicReadOnly {
		t.Fatalf("unexpected level: %s", def.Level)
	}

	if err := admin.ClearOrgDefault(ctx, org.ID, "invoice"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.OrgDefaults().Get(ctx, org.ID, "invoice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cleared default must be gone, got %v", err)
	}
}

func TestObjectAndFieldPermissionRemoval(t *testing.T) {
	admin, store, org := newAdmin(t)
	ctx := context.Background()
	profile, _ := admin.CreateProfile(ctx, org.ID, "basic")

	if _, err := admin.SetObjectPermission(ctx, "ghost", "invoice", ObjectPerms{Read: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("permissions require an existing profile, got %v", err)
	}

	if _, err := admin.SetObjectPermission(ctx, profile.ID, "invoice", ObjectPerms{Read: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.SetFieldPermission(ctx, profile.ID, "invoice", "amount", FieldPerms{Read: true}); err != nil {
		t.Fatal(err)
	}

	if err := admin.RemoveFieldPermission(ctx, profile.ID, "invoice", "amount"); err != nil {
		t.Fatal(err)
	}
	if err := admin.RemoveFieldPermission(ctx, profile.ID, "invoice", "amount"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second removal must miss, got %v", err)
	}

	if err := admin.RemoveObjectPermission(ctx, profile.ID, "invoice"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ObjectPermissions().Get(ctx, profile.ID, "invoice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removed permission still present, got %v", err)
	}
}

func TestGrantManualShareValidation(t *testing.T) {
	admin, _, org := newAdmin(t)
	ctx := context.Background()
	profile, _ := admin.CreateProfile(ctx, org.ID, "basic")
	user, _ := admin.CreateUser(ctx, org.ID, "u@acme.test", profile.ID, "")

	if _, err := admin.GrantManualShare(ctx, "invoice", "inv-1", user.ID, AccessLevel("owner")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown level must be rejected, got %v", err)
	}
	if _, err := admin.GrantManualShare(ctx, "invoice", "inv-1", "ghost", AccessRead); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown grantee must be rejected, got %v", err)
	}

	share, err := admin.GrantManualShare(ctx, "invoice", "inv-1", user.ID, AccessRead)
	if err != nil {
		t.Fatalf("GrantManualShare: %v", err)
	}

	// Granting again upgrades in place.
	upgraded, err := admin.GrantManualShare(ctx, "invoice", "inv-1", user.ID, AccessReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	if upgraded.AccessLevel != AccessReadWrite {
		t.Fatalf("level not upgraded: %+v", upgraded)
	}
	if !upgraded.CreatedAt.Equal(share.CreatedAt) {
		t.Fatalf("upsert must preserve the original grant time")
	}

	if err := admin.RevokeManualShare(ctx, "invoice", "inv-1", user.ID); err != nil {
		t.Fatal(err)
	}
	if err := admin.RevokeManualShare(ctx, "invoice", "inv-1", user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second revoke must miss, got %v", err)
	}
}

func TestChangeAuditRecordsActor(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	store := NewInMemory()
	admin, err := NewAdmin(store, WithChangeAudit())
	if err != nil {
		t.Fatalf("NewAdmin: %v", err)
	}

	actor := Principal{UserID: "admin-1", OrganizationID: "org-1", ProfileID: "profile-1"}
	ctx := ContextWithPrincipal(context.Background(), actor)
	if _, err := admin.CreateOrganization(ctx, "acme"); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}

	var entry struct {
		Event  string `json:"event"`
		Fields struct {
			Change  string `json:"change"`
			ActorID string `json:"actor_id"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("audit line not valid JSON: %v", err)
	}
	if entry.Event != "admin.change" {
		t.Fatalf("unexpected event: %s", entry.Event)
	}
	if entry.Fields.Change != "organization.created" {
		t.Fatalf("unexpected change: %s", entry.Fields.Change)
	}
	if entry.Fields.ActorID != "admin-1" {
		t.Fatalf("actor not recorded: %q", entry.Fields.ActorID)
	}
}
