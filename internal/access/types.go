package access

import (
	"fmt"
	"time"
)

// Action is an object-level CRUD action gated by profile permissions.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether the action is one of the four known CRUD actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// FieldMode selects which half of a field permission applies.
type FieldMode string

const (
	FieldRead FieldMode = "read"
	FieldEdit FieldMode = "edit"
)

func (m FieldMode) Valid() bool {
	return m == FieldRead || m == FieldEdit
}

// AccessLevel is the strength of a record-level grant.
type AccessLevel string

const (
	AccessRead      AccessLevel = "read"
	AccessReadWrite AccessLevel = "read_write"
)

func (l AccessLevel) Valid() bool {
	return l == AccessRead || l == AccessReadWrite
}

// Covers reports whether a grant of level l satisfies the needed level.
// Unknown levels cover nothing.
func (l AccessLevel) Covers(needed AccessLevel) bool {
	switch l {
	case AccessReadWrite:
		return needed == AccessRead || needed == AccessReadWrite
	case AccessRead:
		return needed == AccessRead
	default:
		return false
	}
}

// DefaultLevel is an organization-wide baseline visibility for an object.
type DefaultLevel string

const (
	DefaultPrivate         DefaultLevel = "private"
	DefaultPublicReadOnly  DefaultLevel = "public_read_only"
	DefaultPublicReadWrite DefaultLevel = "public_read_write"
)

func (l DefaultLevel) Valid() bool {
	switch l {
	case DefaultPrivate, DefaultPublicReadOnly, DefaultPublicReadWrite:
		return true
	default:
		return false
	}
}

// RuleType distinguishes sharing rule flavors. Only ownership_based rules are
// evaluated; see Admin.CreateSharingRule for how criteria_based is handled.
type RuleType string

const (
	RuleOwnershipBased RuleType = "ownership_based"
	RuleCriteriaBased  RuleType = "criteria_based"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Organization is the tenancy isolation boundary. Immutable after creation
// except for the Active flag.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a node in an organization's role hierarchy. ParentID is empty for
// roots; the parent graph must stay acyclic, which the write path enforces.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	ParentID       string    `json:"parent_id,omitempty"`
	Level          int       `json:"level"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Profile is a reusable named permission template, unique per (org, name).
type Profile struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// User binds an identity to one organization, one profile and optionally one
// role. The engine never authenticates users; it resolves what a user row (or
// the equivalent trusted claims) is allowed to do.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ProfileID      string    `json:"profile_id"`
	RoleID         string    `json:"role_id,omitempty"`
	Email          string    `json:"email"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ObjectPermission is the profile's CRUD template for one object type.
// A missing row means all four actions are denied.
type ObjectPermission struct {
	ProfileID string    `json:"profile_id"`
	Object    string    `json:"object"`
	CanCreate bool      `json:"can_create"`
	CanRead   bool      `json:"can_read"`
	CanUpdate bool      `json:"can_update"`
	CanDelete bool      `json:"can_delete"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Allows reports whether the row grants the action. Unknown actions are
// always denied.
func (p ObjectPermission) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionRead:
		return p.CanRead
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	default:
		return false
	}
}

// FieldPermission gates one field of one object for one profile.
// A missing row means both modes are denied.
type FieldPermission struct {
	ProfileID string    `json:"profile_id"`
	Object    string    `json:"object"`
	Field     string    `json:"field"`
	CanRead   bool      `json:"can_read"`
	CanEdit   bool      `json:"can_edit"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p FieldPermission) Allows(mode FieldMode) bool {
	switch mode {
	case FieldRead:
		return p.CanRead
	case FieldEdit:
		return p.CanEdit
	default:
		return false
	}
}

// OrgDefault is the organization-wide baseline visibility for an object,
// consulted for records the principal neither owns nor has a stronger grant
// for. A missing row grants nothing.
type OrgDefault struct {
	OrganizationID string       `json:"organization_id"`
	Object         string       `json:"object"`
	Level          DefaultLevel `json:"level"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SharingRule grants role-scoped access to all records of an object, unique
// per (org, object, name). IncludeSubordinates expands the target role to its
// entire descendant subtree.
type SharingRule struct {
	ID                  string      `json:"id"`
	OrganizationID      string      `json:"organization_id"`
	Object              string      `json:"object"`
	Name                string      `json:"name"`
	Type                RuleType    `json:"type"`
	SharedToRoleID      string      `json:"shared_to_role_id"`
	AccessLevel         AccessLevel `json:"access_level"`
	IncludeSubordinates bool        `json:"include_subordinates"`
	Active              bool        `json:"active"`
	Criteria            string      `json:"criteria,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// ManualShare is a one-off grant of a single record to a single user, at most
// one per (object, record, grantee).
type ManualShare struct {
	Object      string      `json:"object"`
	RecordID    string      `json:"record_id"`
	GranteeID   string      `json:"grantee_id"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Principal is the trusted, already-verified identity descriptor supplied by
// the authentication layer. The engine never re-validates these claims.
type Principal struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	ProfileID      string `json:"profile_id"`
	RoleID         string `json:"role_id,omitempty"`
}

// HasRole reports whether the principal carries a role assignment.
func (p Principal) HasRole() bool { return p.RoleID != "" }

// complete rejects principals missing any mandatory claim.
func (p Principal) complete() error {
	switch {
	case p.UserID == "":
		return fmt.Errorf("%w: principal user id is required", ErrInvalidInput)
	case p.OrganizationID == "":
		return fmt.Errorf("%w: principal organization id is required", ErrInvalidInput)
	case p.ProfileID == "":
		return fmt.Errorf("%w: principal profile id is required", ErrInvalidInput)
	}
	return nil
}

// PrincipalFromUser derives the claims descriptor from a stored user row.
func PrincipalFromUser(u User) Principal {
	return Principal{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		ProfileID:      u.ProfileID,
		RoleID:         u.RoleID,
	}
}
