package access

import (
	"context"
	"fmt"
	"strings"

	"fieldgate.dev/internal/audit"
)

// ObjectPerms is the caller-facing shape for a profile's CRUD template.
type ObjectPerms struct {
	Create bool
	Read   bool
	Update bool
	Delete bool
}

// FieldPerms is the caller-facing shape for one field grant.
type FieldPerms struct {
	Read bool
	Edit bool
}

// RuleSpec describes a sharing rule to create. Type defaults to
// ownership_based when empty.
type RuleSpec struct {
	OrganizationID      string
	Object              string
	Name                string
	Type                RuleType
	SharedToRoleID      string
	AccessLevel         AccessLevel
	IncludeSubordinates bool
	Criteria            string
}

// Admin is the write path for access configuration. It validates input
// shape; relational integrity (org matching, uniqueness, cycle checks) is
// enforced by the Store so it holds under concurrent writers.
type Admin struct {
	store Store
	audit bool
}

// AdminOption configures Admin behavior.
type AdminOption func(*Admin) error

// WithChangeAudit emits one audit event per successful change.
func WithChangeAudit() AdminOption {
	return func(a *Admin) error {
		a.audit = true
		return nil
	}
}

// NewAdmin constructs the write path over store.
func NewAdmin(store Store, opts ...AdminOption) (*Admin, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	a := &Admin{store: store}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Admin) CreateOrganization(ctx context.Context, name string) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	org, err := a.store.Organizations().Create(ctx, name)
	if err != nil {
		return Organization{}, err
	}
	a.logChange(ctx, "organization.created", map[string]any{"org_id": org.ID, "name": org.Name})
	return org, nil
}

// SetOrganizationActive toggles the only mutable organization attribute.
func (a *Admin) SetOrganizationActive(ctx context.Context, id string, active bool) (Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Organization{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	org, err := a.store.Organizations().SetActive(ctx, id, active)
	if err != nil {
		return Organization{}, err
	}
	a.logChange(ctx, "organization.active_set", map[string]any{"org_id": org.ID, "active": org.Active})
	return org, nil
}

func (a *Admin) DeleteOrganization(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	if err := a.store.Organizations().Delete(ctx, id); err != nil {
		return err
	}
	a.logChange(ctx, "organization.deleted", map[string]any{"org_id": id})
	return nil
}

func (a *Admin) CreateProfile(ctx context.Context, orgID, name string) (Profile, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)
	if orgID == "" || name == "" {
		return Profile{}, fmt.Errorf("%w: organization_id and profile name are required", ErrInvalidInput)
	}
	profile, err := a.store.Profiles().Create(ctx, orgID, name)
	if err != nil {
		return Profile{}, err
	}
	a.logChange(ctx, "profile.created", map[string]any{"profile_id": profile.ID, "org_id": orgID, "name": name})
	return profile, nil
}

func (a *Admin) DeleteProfile(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: profile_id is required", ErrInvalidInput)
	}
	if err := a.store.Profiles().Delete(ctx, id); err != nil {
		return err
	}
	a.logChange(ctx, "profile.deleted", map[string]any{"profile_id": id})
	return nil
}

func (a *Admin) CreateRole(ctx context.Context, orgID, name, parentID string, level int) (Role, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)
	parentID = strings.TrimSpace(parentID)
	if orgID == "" || name == "" {
		return Role{}, fmt.Errorf("%w: organization_id and role name are required", ErrInvalidInput)
	}
	if level < 0 {
		return Role{}, fmt.Errorf("%w: role level must not be negative", ErrInvalidInput)
	}
	role, err := a.store.Roles().Create(ctx, orgID, name, parentID, level)
	if err != nil {
		return Role{}, err
	}
	a.logChange(ctx, "role.created", map[string]any{"role_id": role.ID, "org_id": orgID, "name": name, "parent_id": parentID})
	return role, nil
}

// ReparentRole moves a role under a new parent. The cycle check and the
// write are atomic in the store; no partial state survives a rejection.
func (a *Admin) ReparentRole(ctx context.Context, roleID, newParentID string) (Role, error) {
	roleID = strings.TrimSpace(roleID)
	newParentID = strings.TrimSpace(newParentID)
	if roleID == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if roleID == newParentID {
		return Role{}, fmt.Errorf("%w: role cannot be its own parent", ErrInvalidInput)
	}
	role, err := a.store.Roles().Reparent(ctx, roleID, newParentID)
	if err != nil {
		return Role{}, err
	}
	a.logChange(ctx, "role.reparented", map[string]any{"role_id": roleID, "parent_id": newParentID})
	return role, nil
}

func (a *Admin) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	if err := a.store.Roles().Delete(ctx, id); err != nil {
		return err
	}
	a.logChange(ctx, "role.deleted", map[string]any{"role_id": id})
	return nil
}

func (a *Admin) CreateUser(ctx context.Context, orgID, email, profileID, roleID string) (User, error) {
	orgID = strings.TrimSpace(orgID)
	profileID = strings.TrimSpace(profileID)
	roleID = strings.TrimSpace(roleID)
	email = strings.TrimSpace(strings.ToLower(email))
	if orgID == "" || profileID == "" {
		return User{}, fmt.Errorf("%w: organization_id and profile_id are required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	user, err := a.store.Users().Create(ctx, orgID, email, profileID, roleID)
	if err != nil {
		return User{}, err
	}
	a.logChange(ctx, "user.created", map[string]any{"user_id": user.ID, "org_id": orgID, "email": email})
	return user, nil
}

func (a *Admin) AssignRole(ctx context.Context, userID, roleID string) (User, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return User{}, fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	user, err := a.store.Users().SetRole(ctx, userID, roleID)
	if err != nil {
		return User{}, err
	}
	a.logChange(ctx, "user.role_assigned", map[string]any{"user_id": userID, "role_id": roleID})
	return user, nil
}

func (a *Admin) ClearRole(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	user, err := a.store.Users().SetRole(ctx, userID, "")
	if err != nil {
		return User{}, err
	}
	a.logChange(ctx, "user.role_cleared", map[string]any{"user_id": userID})
	return user, nil
}

func (a *Admin) SetObjectPermission(ctx context.Context, profileID, object string, perms ObjectPerms) (ObjectPermission, error) {
	profileID = strings.TrimSpace(profileID)
	object = strings.TrimSpace(object)
	if profileID == "" || object == "" {
		return ObjectPermission{}, fmt.Errorf("%w: profile_id and object are required", ErrInvalidInput)
	}
	perm, err := a.store.ObjectPermissions().Set(ctx, ObjectPermission{
		ProfileID: profileID,
		Object:    object,
		CanCreate: perms.Create,
		CanRead:   perms.Read,
		CanUpdate: perms.Update,
		CanDelete: perms.Delete,
	})
	if err != nil {
		return ObjectPermission{}, err
	}
	a.logChange(ctx, "object_permission.set", map[string]any{"profile_id": profileID, "object": object})
	return perm, nil
}

func (a *Admin) RemoveObjectPermission(ctx context.Context, profileID, object string) error {
	profileID = strings.TrimSpace(profileID)
	object = strings.TrimSpace(object)
	if profileID == "" || object == "" {
		return fmt.Errorf("%w: profile_id and object are required", ErrInvalidInput)
	}
	if err := a.store.ObjectPermissions().Remove(ctx, profileID, object); err != nil {
		return err
	}
	a.logChange(ctx, "object_permission.removed", map[string]any{"profile_id": profileID, "object": object})
	return nil
}

func (a *Admin) SetFieldPermission(ctx context.Context, profileID, object, field string, perms FieldPerms) (FieldPermission, error) {
	profileID = strings.TrimSpace(profileID)
	object = strings.TrimSpace(object)
	field = strings.TrimSpace(field)
	if profileID == "" || object == "" || field == "" {
		return FieldPermission{}, fmt.Errorf("%w: profile_id, object and field are required", ErrInvalidInput)
	}
	perm, err := a.store.FieldPermissions().Set(ctx, FieldPermission{
		ProfileID: profileID,
		Object:    object,
		Field:     field,
		CanRead:   perms.Read,
		CanEdit:   perms.Edit,
	})
	if err != nil {
		return FieldPermission{}, err
	}
	a.logChange(ctx, "field_permission.set", map[string]any{"profile_id": profileID, "object": object, "field": field})
	return perm, nil
}

func (a *Admin) RemoveFieldPermission(ctx context.Context, profileID, object, field string) error {
	profileID = strings.TrimSpace(profileID)
	object = strings.TrimSpace(object)
	field = strings.TrimSpace(field)
	if profileID == "" || object == "" || field == "" {
		return fmt.Errorf("%w: profile_id, object and field are required", ErrInvalidInput)
	}
	if err := a.store.FieldPermissions().Remove(ctx, profileID, object, field); err != nil {
		return err
	}
	a.logChange(ctx, "field_permission.removed", map[string]any{"profile_id": profileID, "object": object, "field": field})
	return nil
}

func (a *Admin) SetOrgDefault(ctx context.Context, orgID, object string, level DefaultLevel) (OrgDefault, error) {
	orgID = strings.TrimSpace(orgID)
	object = strings.TrimSpace(object)
	if orgID == "" || object == "" {
		return OrgDefault{}, fmt.Errorf("%w: organization_id and object are required", ErrInvalidInput)
	}
	if !level.Valid() {
		return OrgDefault{}, fmt.Errorf("%w: unknown default level %q", ErrInvalidInput, level)
	}
	def, err := a.store.OrgDefaults().Set(ctx, OrgDefault{
		OrganizationID: orgID,
		Object:         object,
		Level:          level,
	})
	if err != nil {
		return OrgDefault{}, err
	}
	a.logChange(ctx, "org_default.set", map[string]any{"org_id": orgID, "object": object, "level": string(level)})
	return def, nil
}

func (a *Admin) ClearOrgDefault(ctx context.Context, orgID, object string) error {
	orgID = strings.TrimSpace(orgID)
	object = strings.TrimSpace(object)
	if orgID == "" || object == "" {
		return fmt.Errorf("%w: organization_id and object are required", ErrInvalidInput)
	}
	if err := a.store.OrgDefaults().Clear(ctx, orgID, object); err != nil {
		return err
	}
	a.logChange(ctx, "org_default.cleared", map[string]any{"org_id": orgID, "object": object})
	return nil
}

// CreateSharingRule persists an ownership-based rule. Criteria-based rules
// are rejected until the engine can evaluate their predicates; accepting
// them would record grants that never take effect.
func (a *Admin) CreateSharingRule(ctx context.Context, spec RuleSpec) (SharingRule, error) {
	spec.OrganizationID = strings.TrimSpace(spec.OrganizationID)
	spec.Object = strings.TrimSpace(spec.Object)
	spec.Name = strings.TrimSpace(spec.Name)
	spec.SharedToRoleID = strings.TrimSpace(spec.SharedToRoleID)
	if spec.OrganizationID == "" || spec.Object == "" || spec.Name == "" {
		return SharingRule{}, fmt.Errorf("%w: organization_id, object and rule name are required", ErrInvalidInput)
	}
	if spec.Type == "" {
		spec.Type = RuleOwnershipBased
	}
	switch spec.Type {
	case RuleOwnershipBased:
	case RuleCriteriaBased:
		return SharingRule{}, fmt.Errorf("%w: criteria_based rules are not supported", ErrInvalidInput)
	default:
		return SharingRule{}, fmt.Errorf("%w: unknown rule type %q", ErrInvalidInput, spec.Type)
	}
	if spec.SharedToRoleID == "" {
		return SharingRule{}, fmt.Errorf("%w: shared_to_role_id is required", ErrInvalidInput)
	}
	if !spec.AccessLevel.Valid() {
		return SharingRule{}, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, spec.AccessLevel)
	}
	rule, err := a.store.SharingRules().Create(ctx, SharingRule{
		OrganizationID:      spec.OrganizationID,
		Object:              spec.Object,
		Name:                spec.Name,
		Type:                spec.Type,
		SharedToRoleID:      spec.SharedToRoleID,
		AccessLevel:         spec.AccessLevel,
		IncludeSubordinates: spec.IncludeSubordinates,
		Active:              true,
		Criteria:            spec.Criteria,
	})
	if err != nil {
		return SharingRule{}, err
	}
	a.logChange(ctx, "sharing_rule.created", map[string]any{"rule_id": rule.ID, "org_id": rule.OrganizationID, "object": rule.Object, "name": rule.Name})
	return rule, nil
}

func (a *Admin) SetSharingRuleActive(ctx context.Context, id string, active bool) (SharingRule, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SharingRule{}, fmt.Errorf("%w: rule_id is required", ErrInvalidInput)
	}
	rule, err := a.store.SharingRules().SetActive(ctx, id, active)
	if err != nil {
		return SharingRule{}, err
	}
	a.logChange(ctx, "sharing_rule.active_set", map[string]any{"rule_id": id, "active": active})
	return rule, nil
}

func (a *Admin) DeleteSharingRule(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: rule_id is required", ErrInvalidInput)
	}
	if err := a.store.SharingRules().Delete(ctx, id); err != nil {
		return err
	}
	a.logChange(ctx, "sharing_rule.deleted", map[string]any{"rule_id": id})
	return nil
}

// GrantManualShare upserts the single grant for (object, record, grantee).
func (a *Admin) GrantManualShare(ctx context.Context, object, recordID, granteeID string, level AccessLevel) (ManualShare, error) {
	object = strings.TrimSpace(object)
	recordID = strings.TrimSpace(recordID)
	granteeID = strings.TrimSpace(granteeID)
	if object == "" || recordID == "" || granteeID == "" {
		return ManualShare{}, fmt.Errorf("%w: object, record_id and grantee_id are required", ErrInvalidInput)
	}
	if !level.Valid() {
		return ManualShare{}, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, level)
	}
	share, err := a.store.ManualShares().Grant(ctx, ManualShare{
		Object:      object,
		RecordID:    recordID,
		GranteeID:   granteeID,
		AccessLevel: level,
	})
	if err != nil {
		return ManualShare{}, err
	}
	a.logChange(ctx, "manual_share.granted", map[string]any{"object": object, "record_id": recordID, "grantee_id": granteeID, "level": string(level)})
	return share, nil
}

func (a *Admin) RevokeManualShare(ctx context.Context, object, recordID, granteeID string) error {
	object = strings.TrimSpace(object)
	recordID = strings.TrimSpace(recordID)
	granteeID = strings.TrimSpace(granteeID)
	if object == "" || recordID == "" || granteeID == "" {
		return fmt.Errorf("%w: object, record_id and grantee_id are required", ErrInvalidInput)
	}
	if err := a.store.ManualShares().Revoke(ctx, object, recordID, granteeID); err != nil {
		return err
	}
	a.logChange(ctx, "manual_share.revoked", map[string]any{"object": object, "record_id": recordID, "grantee_id": granteeID})
	return nil
}

func (a *Admin) logChange(ctx context.Context, change string, fields map[string]any) {
	if !a.audit {
		return
	}
	payload := map[string]any{"change": change}
	if actor, ok := PrincipalFromContext(ctx); ok {
		payload["actor_id"] = actor.UserID
	}
	for k, v := range fields {
		payload[k] = v
	}
	audit.LogEvent(ctx, audit.EventAdminChange, payload)
}
