package access

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fieldgate.dev/internal/ids"
)

type objPermKey struct {
	ProfileID string
	Object    string
}

type fieldPermKey struct {
	ProfileID string
	Object    string
	Field     string
}

type defaultKey struct {
	OrgID  string
	Object string
}

type shareKey struct {
	Object    string
	RecordID  string
	GranteeID string
}

// InMemory implements Store with in-process concurrency safety. It enforces
// the same relational integrity as the PostgreSQL store: existence and
// organization matching on references, uniqueness, and cascade semantics.
type InMemory struct {
	mu         sync.RWMutex
	orgs       map[string]Organization
	profiles   map[string]Profile
	roles      map[string]Role
	users      map[string]User
	objPerms   map[objPermKey]ObjectPermission
	fieldPerms map[fieldPermKey]FieldPermission
	defaults   map[defaultKey]OrgDefault
	rules      map[string]SharingRule
	shares     map[shareKey]ManualShare
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:       make(map[string]Organization),
		profiles:   make(map[string]Profile),
		roles:      make(map[string]Role),
		users:      make(map[string]User),
		objPerms:   make(map[objPermKey]ObjectPermission),
		fieldPerms: make(map[fieldPermKey]FieldPermission),
		defaults:   make(map[defaultKey]OrgDefault),
		rules:      make(map[string]SharingRule),
		shares:     make(map[shareKey]ManualShare),
	}
}

var _ Store = (*InMemory)(nil)

func (m *InMemory) Organizations() OrganizationStore         { return &memOrgStore{m} }
func (m *InMemory) Users() UserStore                         { return &memUserStore{m} }
func (m *InMemory) Roles() RoleStore                         { return &memRoleStore{m} }
func (m *InMemory) Profiles() ProfileStore                   { return &memProfileStore{m} }
func (m *InMemory) ObjectPermissions() ObjectPermissionStore { return &memObjPermStore{m} }
func (m *InMemory) FieldPermissions() FieldPermissionStore   { return &memFieldPermStore{m} }
func (m *InMemory) OrgDefaults() OrgDefaultStore             { return &memDefaultStore{m} }
func (m *InMemory) SharingRules() SharingRuleStore           { return &memRuleStore{m} }
func (m *InMemory) ManualShares() ManualShareStore           { return &memShareStore{m} }

type memOrgStore struct{ m *InMemory }

func (s *memOrgStore) Create(ctx context.Context, name string) (Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	now := time.Now().UTC()
	org := Organization{
		ID:        ids.New(),
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.m.orgs[org.ID] = org
	return org, nil
}

func (s *memOrgStore) Find(ctx context.Context, id string) (Organization, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	org, ok := s.m.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (s *memOrgStore) List(ctx context.Context) ([]Organization, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make([]Organization, 0, len(s.m.orgs))
	for _, org := range s.m.orgs {
		out = append(out, org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memOrgStore) SetActive(ctx context.Context, id string, active bool) (Organization, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	org, ok := s.m.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	org.Active = active
	org.UpdatedAt = time.Now().UTC()
	s.m.orgs[id] = org
	return org, nil
}

func (s *memOrgStore) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orgs[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.orgs, id)
	for pid, p := range s.m.profiles {
		if p.OrganizationID == id {
			delete(s.m.profiles, pid)
			s.m.dropProfilePermissions(pid)
		}
	}
	for rid, r := range s.m.roles {
		if r.OrganizationID == id {
			delete(s.m.roles, rid)
		}
	}
	for uid, u := range s.m.users {
		if u.OrganizationID == id {
			delete(s.m.users, uid)
			s.m.dropGranteeShares(uid)
		}
	}
	for k := range s.m.defaults {
		if k.OrgID == id {
			delete(s.m.defaults, k)
		}
	}
	for rid, rule := range s.m.rules {
		if rule.OrganizationID == id {
			delete(s.m.rules, rid)
		}
	}
	return nil
}

type memProfileStore struct{ m *InMemory }

func (s *memProfileStore) Create(ctx context.Context, orgID, name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if orgID == "" || name == "" {
		return Profile{}, fmt.Errorf("%w: organization_id and profile name are required", ErrInvalidInput)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orgs[orgID]; !ok {
		return Profile{}, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	for _, p := range s.m.profiles {
		if p.OrganizationID == orgID && p.Name == name {
			return Profile{}, fmt.Errorf("%w: profile %q already exists", ErrConflict, name)
		}
	}
	now := time.Now().UTC()
	profile := Profile{
		ID:             ids.New(),
		OrganizationID: orgID,
		Name:           name,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.m.profiles[profile.ID] = profile
	return profile, nil
}

func (s *memProfileStore) Find(ctx context.Context, id string) (Profile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	profile, ok := s.m.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return profile, nil
}

func (s *memProfileStore) ListByOrg(ctx context.Context, orgID string) ([]Profile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []Profile
	for _, p := range s.m.profiles {
		if p.OrganizationID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memProfileStore) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.profiles[id]; !ok {
		return ErrNotFound
	}
	for _, u := range s.m.users {
		if u.ProfileID == id {
			return fmt.Errorf("%w: users still reference profile %s", ErrConflict, id)
		}
	}
	delete(s.m.profiles, id)
	s.m.dropProfilePermissions(id)
	return nil
}

type memRoleStore struct{ m *InMemory }

func (s *memRoleStore) Create(ctx context.Context, orgID, name, parentID string, level int) (Role, error) {
	name = strings.TrimSpace(name)
	if orgID == "" || name == "" {
		return Role{}, fmt.Errorf("%w: organization_id and role name are required", ErrInvalidInput)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orgs[orgID]; !ok {
		return Role{}, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	if parentID != "" {
		parent, ok := s.m.roles[parentID]
		if !ok {
			return Role{}, fmt.Errorf("parent role %s: %w", parentID, ErrNotFound)
		}
		if parent.OrganizationID != orgID {
			return Role{}, fmt.Errorf("%w: parent role belongs to another organization", ErrInvalidInput)
		}
	}
	now := time.Now().UTC()
	role := Role{
		ID:             ids.New(),
		OrganizationID: orgID,
		Name:           name,
		ParentID:       parentID,
		Level:          level,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.m.roles[role.ID] = role
	return role, nil
}

func (s *memRoleStore) Find(ctx context.Context, id string) (Role, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	role, ok := s.m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (s *memRoleStore) ListByOrg(ctx context.Context, orgID string) ([]Role, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []Role
	for _, r := range s.m.roles {
		if r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Reparent validates the move against the current tree and applies it under
// one write lock, so no interleaved write can turn an accepted move into a
// cycle.
func (s *memRoleStore) Reparent(ctx context.Context, roleID, newParentID string) (Role, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[roleID]
	if !ok {
		return Role{}, ErrNotFound
	}
	if newParentID != "" {
		if newParentID == roleID {
			return Role{}, fmt.Errorf("%w: role cannot be its own parent", ErrInvalidInput)
		}
		parent, ok := s.m.roles[newParentID]
		if !ok {
			return Role{}, fmt.Errorf("parent role %s: %w", newParentID, ErrNotFound)
		}
		if parent.OrganizationID != role.OrganizationID {
			return Role{}, fmt.Errorf("%w: parent role belongs to another organization", ErrInvalidInput)
		}
		// Walk up from the proposed parent; reaching the role itself means
		// the move would close a cycle.
		cur := parent
		for depth := 0; ; depth++ {
			if depth >= maxWalkDepth {
				return Role{}, fmt.Errorf("%w: role chain from %s exceeds depth %d", ErrIntegrity, newParentID, maxWalkDepth)
			}
			if cur.ID == roleID {
				return Role{}, fmt.Errorf("%w: reparenting %s under %s would create a cycle", ErrInvalidInput, roleID, newParentID)
			}
			if cur.ParentID == "" {
				break
			}
			next, ok := s.m.roles[cur.ParentID]
			if !ok {
				return Role{}, fmt.Errorf("%w: role %s references missing parent %s", ErrIntegrity, cur.ID, cur.ParentID)
			}
			cur = next
		}
	}
	role.ParentID = newParentID
	role.UpdatedAt = time.Now().UTC()
	s.m.roles[roleID] = role
	return role, nil
}

func (s *memRoleStore) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	role, ok := s.m.roles[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.m.roles, id)
	now := time.Now().UTC()
	for rid, r := range s.m.roles {
		if r.ParentID == id {
			r.ParentID = role.ParentID
			r.UpdatedAt = now
			s.m.roles[rid] = r
		}
	}
	for uid, u := range s.m.users {
		if u.RoleID == id {
			u.RoleID = ""
			u.UpdatedAt = now
			s.m.users[uid] = u
		}
	}
	for rid, rule := range s.m.rules {
		if rule.SharedToRoleID == id {
			delete(s.m.rules, rid)
		}
	}
	return nil
}

type memUserStore struct{ m *InMemory }

func (s *memUserStore) Create(ctx context.Context, orgID, email, profileID, roleID string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if orgID == "" || email == "" || profileID == "" {
		return User{}, fmt.Errorf("%w: organization_id, email and profile_id are required", ErrInvalidInput)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orgs[orgID]; !ok {
		return User{}, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	profile, ok := s.m.profiles[profileID]
	if !ok {
		return User{}, fmt.Errorf("profile %s: %w", profileID, ErrNotFound)
	}
	if profile.OrganizationID != orgID {
		return User{}, fmt.Errorf("%w: user and profile belong to different organizations", ErrInvalidInput)
	}
	if roleID != "" {
		role, ok := s.m.roles[roleID]
		if !ok {
			return User{}, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		if role.OrganizationID != orgID {
			return User{}, fmt.Errorf("%w: user and role belong to different organizations", ErrInvalidInput)
		}
	}
	for _, u := range s.m.users {
		if u.Email == email {
			return User{}, fmt.Errorf("%w: email %q already registered", ErrConflict, email)
		}
	}
	now := time.Now().UTC()
	user := User{
		ID:             ids.New(),
		OrganizationID: orgID,
		ProfileID:      profileID,
		RoleID:         roleID,
		Email:          email,
		Status:         UserStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.m.users[user.ID] = user
	return user, nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	user, ok := s.m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for _, u := range s.m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *memUserStore) ListByOrg(ctx context.Context, orgID string) ([]User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []User
	for _, u := range s.m.users {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *memUserStore) SetRole(ctx context.Context, userID, roleID string) (User, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	user, ok := s.m.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	if roleID != "" {
		role, ok := s.m.roles[roleID]
		if !ok {
			return User{}, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
		}
		if role.OrganizationID != user.OrganizationID {
			return User{}, fmt.Errorf("%w: user and role belong to different organizations", ErrInvalidInput)
		}
	}
	user.RoleID = roleID
	user.UpdatedAt = time.Now().UTC()
	s.m.users[userID] = user
	return user, nil
}

func (s *memUserStore) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.users, id)
	s.m.dropGranteeShares(id)
	return nil
}

type memObjPermStore struct{ m *InMemory }

func (s *memObjPermStore) Set(ctx context.Context, perm ObjectPermission) (ObjectPermission, error) {
	if perm.ProfileID == "" || perm.Object == "" {
		return ObjectPermission{}, fmt.Errorf("%w: profile_id and object are required", ErrInvalidInput)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.profiles[perm.ProfileID]; !ok {
		return ObjectPermission{}, fmt.Errorf("profile %s: %w", perm.ProfileID, ErrNotFound)
	}
	perm.UpdatedAt = time.Now().UTC()
	s.m.objPerms[objPermKey{perm.ProfileID, perm.Object}] = perm
	return perm, nil
}

func (s *memObjPermStore) Get(ctx context.Context, profileID, object string) (ObjectPermission, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	perm, ok := s.m.objPerms[objPermKey{profileID, object}]
	if !ok {
		return ObjectPermission{}, ErrNotFound
	}
	return perm, nil
}

func (s *memObjPermStore) ListByProfile(ctx context.Context, profileID string) ([]ObjectPermission, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []ObjectPermission
	for k, p := range s.m.objPerms {
		if k.ProfileID == profileID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Object < out[j].Object })
	return out, nil
}

func (s *memObjPermStore) Remove(ctx context.Context, profileID, object string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	k := objPermKey{profileID, object}
	if _, ok := s.m.objPerms[k]; !ok {
		return ErrNotFound
	}
	delete(s.m.objPerms, k)
	return nil
}

type memFieldPermStore struct{ m *InMemory }

func (s *memFieldPermStore) Set(ctx context.Context, perm FieldPermission) (FieldPermission, error) {
	if perm.ProfileID == "" || perm.Object == "" || perm.Field == "" {
		return FieldPermission{}, fmt.Errorf("%w: profile_id, object and field are required", ErrInvalidInput)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.profiles[perm.ProfileID]; !ok {
		return FieldPermission{}, fmt.Errorf("profile %s: %w", perm.ProfileID, ErrNotFound)
	}
	perm.UpdatedAt = time.Now().UTC()
	s.m.fieldPerms[fieldPermKey{perm.ProfileID, perm.Object, perm.Field}] = perm
	return perm, nil
}

func (s *memFieldPermStore) Get(ctx context.Context, profileID, object, field string) (FieldPermission, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	perm, ok := s.m.fieldPerms[fieldPermKey{profileID, object, field}]
	if !ok {
		return FieldPermission{}, ErrNotFound
	}
	return perm, nil
}

func (s *memFieldPermStore) ListReadable(ctx context.Context, profileID, object string) ([]string, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	fields := make([]string, 0)
	for k, p := range s.m.fieldPerms {
		if k.ProfileID == profileID && k.Object == object && p.CanRead {
			fields = append(fields, k.Field)
		}
	}
	sort.Strings(fields)
	return fields, nil
}

func (s *memFieldPermStore) Remove(ctx context.Context, profileID, object, field string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	k := fieldPermKey{profileID, object, field}
	if _, ok := s.m.fieldPerms[k]; !ok {
		return ErrNotFound
	}
	delete(s.m.fieldPerms, k)
	return nil
}

type memDefaultStore struct{ m *InMemory }

func (s *memDefaultStore) Set(ctx context.Context, def OrgDefault) (OrgDefault, error) {
	if def.OrganizationID == "" || def.Object == "" {
		return OrgDefault{}, fmt.Errorf("%w: organization_id and object are required", ErrInvalidInput)
	}
	if !def.Level.Valid() {
		return OrgDefault{}, fmt.Errorf("%w: unknown default level %q", ErrInvalidInput, def.Level)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orgs[def.OrganizationID]; !ok {
		return OrgDefault{}, fmt.Errorf("organization %s: %w", def.OrganizationID, ErrNotFound)
	}
	def.UpdatedAt = time.Now().UTC()
	s.m.defaults[defaultKey{def.OrganizationID, def.Object}] = def
	return def, nil
}

func (s *memDefaultStore) Get(ctx context.Context, orgID, object string) (OrgDefault, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	def, ok := s.m.defaults[defaultKey{orgID, object}]
	if !ok {
		return OrgDefault{}, ErrNotFound
	}
	return def, nil
}

func (s *memDefaultStore) Clear(ctx context.Context, orgID, object string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	k := defaultKey{orgID, object}
	if _, ok := s.m.defaults[k]; !ok {
		return ErrNotFound
	}
	delete(s.m.defaults, k)
	return nil
}

type memRuleStore struct{ m *InMemory }

func (s *memRuleStore) Create(ctx context.Context, rule SharingRule) (SharingRule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.OrganizationID == "" || rule.Object == "" || rule.Name == "" {
		return SharingRule{}, fmt.Errorf("%w: organization_id, object and rule name are required", ErrInvalidInput)
	}
	if rule.Type != RuleOwnershipBased && rule.Type != RuleCriteriaBased {
		return SharingRule{}, fmt.Errorf("%w: unknown rule type %q", ErrInvalidInput, rule.Type)
	}
	if !rule.AccessLevel.Valid() {
		return SharingRule{}, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, rule.AccessLevel)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.orgs[rule.OrganizationID]; !ok {
		return SharingRule{}, fmt.Errorf("organization %s: %w", rule.OrganizationID, ErrNotFound)
	}
	target, ok := s.m.roles[rule.SharedToRoleID]
	if !ok {
		return SharingRule{}, fmt.Errorf("role %s: %w", rule.SharedToRoleID, ErrNotFound)
	}
	if target.OrganizationID != rule.OrganizationID {
		return SharingRule{}, fmt.Errorf("%w: rule and target role belong to different organizations", ErrInvalidInput)
	}
	for _, existing := range s.m.rules {
		if existing.OrganizationID == rule.OrganizationID && existing.Object == rule.Object && existing.Name == rule.Name {
			return SharingRule{}, fmt.Errorf("%w: sharing rule %q already exists for %s", ErrConflict, rule.Name, rule.Object)
		}
	}
	now := time.Now().UTC()
	rule.ID = ids.New()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	s.m.rules[rule.ID] = rule
	return rule, nil
}

func (s *memRuleStore) Find(ctx context.Context, id string) (SharingRule, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	rule, ok := s.m.rules[id]
	if !ok {
		return SharingRule{}, ErrNotFound
	}
	return rule, nil
}

func (s *memRuleStore) ListActive(ctx context.Context, orgID, object string) ([]SharingRule, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []SharingRule
	for _, rule := range s.m.rules {
		if rule.Active && rule.OrganizationID == orgID && rule.Object == object {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memRuleStore) ListByOrg(ctx context.Context, orgID string) ([]SharingRule, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []SharingRule
	for _, rule := range s.m.rules {
		if rule.OrganizationID == orgID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Object != out[j].Object {
			return out[i].Object < out[j].Object
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *memRuleStore) SetActive(ctx context.Context, id string, active bool) (SharingRule, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rule, ok := s.m.rules[id]
	if !ok {
		return SharingRule{}, ErrNotFound
	}
	rule.Active = active
	rule.UpdatedAt = time.Now().UTC()
	s.m.rules[id] = rule
	return rule, nil
}

func (s *memRuleStore) Delete(ctx context.Context, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.m.rules, id)
	return nil
}

type memShareStore struct{ m *InMemory }

func (s *memShareStore) Grant(ctx context.Context, share ManualShare) (ManualShare, error) {
	if share.Object == "" || share.RecordID == "" || share.GranteeID == "" {
		return ManualShare{}, fmt.Errorf("%w: object, record_id and grantee_id are required", ErrInvalidInput)
	}
	if !share.AccessLevel.Valid() {
		return ManualShare{}, fmt.Errorf("%w: unknown access level %q", ErrInvalidInput, share.AccessLevel)
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.users[share.GranteeID]; !ok {
		return ManualShare{}, fmt.Errorf("grantee %s: %w", share.GranteeID, ErrNotFound)
	}
	now := time.Now().UTC()
	k := shareKey{share.Object, share.RecordID, share.GranteeID}
	if existing, ok := s.m.shares[k]; ok {
		share.CreatedAt = existing.CreatedAt
	} else {
		share.CreatedAt = now
	}
	share.UpdatedAt = now
	s.m.shares[k] = share
	return share, nil
}

func (s *memShareStore) Get(ctx context.Context, object, recordID, granteeID string) (ManualShare, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	share, ok := s.m.shares[shareKey{object, recordID, granteeID}]
	if !ok {
		return ManualShare{}, ErrNotFound
	}
	return share, nil
}

func (s *memShareStore) ListByRecord(ctx context.Context, object, recordID string) ([]ManualShare, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	var out []ManualShare
	for k, share := range s.m.shares {
		if k.Object == object && k.RecordID == recordID {
			out = append(out, share)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GranteeID < out[j].GranteeID })
	return out, nil
}

func (s *memShareStore) Revoke(ctx context.Context, object, recordID, granteeID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	k := shareKey{object, recordID, granteeID}
	if _, ok := s.m.shares[k]; !ok {
		return ErrNotFound
	}
	delete(s.m.shares, k)
	return nil
}

// dropProfilePermissions removes every permission row keyed by profileID.
// Callers hold the write lock.
func (m *InMemory) dropProfilePermissions(profileID string) {
	for k := range m.objPerms {
		if k.ProfileID == profileID {
			delete(m.objPerms, k)
		}
	}
	for k := range m.fieldPerms {
		if k.ProfileID == profileID {
			delete(m.fieldPerms, k)
		}
	}
}

// dropGranteeShares removes every manual share granted to userID. Callers
// hold the write lock.
func (m *InMemory) dropGranteeShares(userID string) {
	for k := range m.shares {
		if k.GranteeID == userID {
			delete(m.shares, k)
		}
	}
}
