package access

import "context"

// Store describes the persistence operations the engine and its admin write
// paths require. Implementations: the in-memory store in this package and the
// PostgreSQL store under internal/store/pg.
type Store interface {
	Organizations() OrganizationStore
	Users() UserStore
	Roles() RoleStore
	Profiles() ProfileStore
	ObjectPermissions() ObjectPermissionStore
	FieldPermissions() FieldPermissionStore
	OrgDefaults() OrgDefaultStore
	SharingRules() SharingRuleStore
	ManualShares() ManualShareStore
}

// OrganizationStore manages tenant organizations.
type OrganizationStore interface {
	Create(ctx context.Context, name string) (Organization, error)
	Find(ctx context.Context, id string) (Organization, error)
	List(ctx context.Context) ([]Organization, error)
	SetActive(ctx context.Context, id string, active bool) (Organization, error)
	// Delete removes the organization and cascades to every dependent row.
	Delete(ctx context.Context, id string) error
}

// UserStore manages user rows. Role and profile references are validated
// against the same organization.
type UserStore interface {
	Create(ctx context.Context, orgID, email, profileID, roleID string) (User, error)
	Find(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	ListByOrg(ctx context.Context, orgID string) ([]User, error)
	// SetRole reassigns the user's role; an empty roleID clears it.
	SetRole(ctx context.Context, userID, roleID string) (User, error)
	Delete(ctx context.Context, id string) error
}

// RoleStore manages the per-organization role hierarchy.
type RoleStore interface {
	Create(ctx context.Context, orgID, name, parentID string, level int) (Role, error)
	Find(ctx context.Context, id string) (Role, error)
	ListByOrg(ctx context.Context, orgID string) ([]Role, error)
	// Reparent atomically moves the role under newParentID (empty detaches it
	// to a root). The ancestor-chain cycle check and the write happen inside
	// one transaction; a reassignment that would introduce a cycle is rejected
	// with ErrInvalidInput and nothing is persisted.
	Reparent(ctx context.Context, roleID, newParentID string) (Role, error)
	// Delete removes the role, re-parents its children to the deleted role's
	// parent, clears the role from referencing users and cascades sharing
	// rules targeting it.
	Delete(ctx context.Context, id string) error
}

// ProfileStore manages permission templates.
type ProfileStore interface {
	Create(ctx context.Context, orgID, name string) (Profile, error)
	Find(ctx context.Context, id string) (Profile, error)
	ListByOrg(ctx context.Context, orgID string) ([]Profile, error)
	// Delete cascades the profile's permission rows; it fails with
	// ErrConflict while users still reference the profile.
	Delete(ctx context.Context, id string) error
}

// ObjectPermissionStore holds profile CRUD templates keyed (profile, object).
type ObjectPermissionStore interface {
	// Set upserts the single row for (perm.ProfileID, perm.Object).
	Set(ctx context.Context, perm ObjectPermission) (ObjectPermission, error)
	// Get returns ErrNotFound when no row exists; callers treat that as a
	// deny, never as an exception.
	Get(ctx context.Context, profileID, object string) (ObjectPermission, error)
	ListByProfile(ctx context.Context, profileID string) ([]ObjectPermission, error)
	Remove(ctx context.Context, profileID, object string) error
}

// FieldPermissionStore holds field grants keyed (profile, object, field).
type FieldPermissionStore interface {
	Set(ctx context.Context, perm FieldPermission) (FieldPermission, error)
	Get(ctx context.Context, profileID, object, field string) (FieldPermission, error)
	// ListReadable returns the sorted field names with can_read set.
	ListReadable(ctx context.Context, profileID, object string) ([]string, error)
	Remove(ctx context.Context, profileID, object, field string) error
}

// OrgDefaultStore holds org-wide default visibility keyed (org, object).
type OrgDefaultStore interface {
	Set(ctx context.Context, def OrgDefault) (OrgDefault, error)
	Get(ctx context.Context, orgID, object string) (OrgDefault, error)
	Clear(ctx context.Context, orgID, object string) error
}

// SharingRuleStore manages rule rows, unique per (org, object, name).
type SharingRuleStore interface {
	Create(ctx context.Context, rule SharingRule) (SharingRule, error)
	Find(ctx context.Context, id string) (SharingRule, error)
	// ListActive returns only rules with Active set for (org, object).
	ListActive(ctx context.Context, orgID, object string) ([]SharingRule, error)
	ListByOrg(ctx context.Context, orgID string) ([]SharingRule, error)
	SetActive(ctx context.Context, id string, active bool) (SharingRule, error)
	Delete(ctx context.Context, id string) error
}

// ManualShareStore manages per-record grants keyed (object, record, grantee).
type ManualShareStore interface {
	// Grant upserts: a second grant for the same key replaces the level.
	Grant(ctx context.Context, share ManualShare) (ManualShare, error)
	Get(ctx context.Context, object, recordID, granteeID string) (ManualShare, error)
	ListByRecord(ctx context.Context, object, recordID string) ([]ManualShare, error)
	Revoke(ctx context.Context, object, recordID, granteeID string) error
}
