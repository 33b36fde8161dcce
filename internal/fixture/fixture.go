// Package fixture loads declarative access configuration from YAML and
// replays it through the admin write paths into an in-memory store. The CLI
// and the smoke scenario both start from a fixture document.
package fixture

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fieldgate.dev/internal/access"
)

// Document is the root of a fixture file. Entities reference each other by
// name (roles by role name, users by profile/role name) instead of ids; ids
// are assigned by the store during Build.
type Document struct {
	Organizations []OrgDoc `yaml:"organizations"`
}

type OrgDoc struct {
	Name     string       `yaml:"name"`
	Defaults []DefaultDoc `yaml:"defaults,omitempty"`
	Profiles []ProfileDoc `yaml:"profiles,omitempty"`
	Roles    []RoleDoc    `yaml:"roles,omitempty"`
	Users    []UserDoc    `yaml:"users,omitempty"`
	Rules    []RuleDoc    `yaml:"rules,omitempty"`
	Shares   []ShareDoc   `yaml:"shares,omitempty"`
}

type DefaultDoc struct {
	Object string `yaml:"object"`
	Level  string `yaml:"level"`
}

type ProfileDoc struct {
	Name    string          `yaml:"name"`
	Objects []ObjectPermDoc `yaml:"objects,omitempty"`
	Fields  []FieldPermDoc  `yaml:"fields,omitempty"`
}

type ObjectPermDoc struct {
	Object string `yaml:"object"`
	Create bool   `yaml:"create"`
	Read   bool   `yaml:"read"`
	Update bool   `yaml:"update"`
	Delete bool   `yaml:"delete"`
}

type FieldPermDoc struct {
	Object string `yaml:"object"`
	Field  string `yaml:"field"`
	Read   bool   `yaml:"read"`
	Edit   bool   `yaml:"edit"`
}

type RoleDoc struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent,omitempty"`
	Level  int    `yaml:"level"`
}

type UserDoc struct {
	Email   string `yaml:"email"`
	Profile string `yaml:"profile"`
	Role    string `yaml:"role,omitempty"`
}

type RuleDoc struct {
	Object              string `yaml:"object"`
	Name                string `yaml:"name"`
	Type                string `yaml:"type,omitempty"`
	Role                string `yaml:"role"`
	Access              string `yaml:"access"`
	IncludeSubordinates bool   `yaml:"include_subordinates,omitempty"`
}

type ShareDoc struct {
	Object  string `yaml:"object"`
	Record  string `yaml:"record"`
	Grantee string `yaml:"grantee"`
	Access  string `yaml:"access"`
}

// Parse decodes a fixture document, rejecting unknown keys.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &doc, nil
}

// Load reads and parses a fixture file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Index resolves fixture names back to the entities the store created.
type Index struct {
	orgs     map[string]access.Organization
	profiles map[string]access.Profile
	roles    map[string]access.Role
	users    map[string]access.User
	rules    map[string]access.SharingRule
}

func scoped(org, name string) string { return org + "/" + name }

func (ix *Index) Org(name string) (access.Organization, bool) {
	org, ok := ix.orgs[name]
	return org, ok
}

func (ix *Index) Profile(org, name string) (access.Profile, bool) {
	p, ok := ix.profiles[scoped(org, name)]
	return p, ok
}

func (ix *Index) Role(org, name string) (access.Role, bool) {
	r, ok := ix.roles[scoped(org, name)]
	return r, ok
}

func (ix *Index) User(email string) (access.User, bool) {
	u, ok := ix.users[email]
	return u, ok
}

func (ix *Index) Rule(org, object, name string) (access.SharingRule, bool) {
	r, ok := ix.rules[scoped(org, object+"/"+name)]
	return r, ok
}

// Build replays the document through the admin write paths into a fresh
// in-memory store. Roles are created first and re-parented in a second pass,
// so declaration order inside the document does not matter.
func Build(ctx context.Context, doc *Document) (*access.InMemory, *Index, error) {
	if doc == nil {
		return nil, nil, fmt.Errorf("fixture document is nil")
	}
	store := access.NewInMemory()
	admin, err := access.NewAdmin(store)
	if err != nil {
		return nil, nil, err
	}
	ix := &Index{
		orgs:     make(map[string]access.Organization),
		profiles: make(map[string]access.Profile),
		roles:    make(map[string]access.Role),
		users:    make(map[string]access.User),
		rules:    make(map[string]access.SharingRule),
	}

	for _, o := range doc.Organizations {
		org, err := admin.CreateOrganization(ctx, o.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("organization %q: %w", o.Name, err)
		}
		ix.orgs[o.Name] = org

		for _, r := range o.Roles {
			role, err := admin.CreateRole(ctx, org.ID, r.Name, "", r.Level)
			if err != nil {
				return nil, nil, fmt.Errorf("organization %q: role %q: %w", o.Name, r.Name, err)
			}
			ix.roles[scoped(o.Name, r.Name)] = role
		}
		for _, r := range o.Roles {
			if r.Parent == "" {
				continue
			}
			parent, ok := ix.Role(o.Name, r.Parent)
			if !ok {
				return nil, nil, fmt.Errorf("organization %q: role %q: parent %q is not defined", o.Name, r.Name, r.Parent)
			}
			role := ix.roles[scoped(o.Name, r.Name)]
			role, err := admin.ReparentRole(ctx, role.ID, parent.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("organization %q: role %q: %w", o.Name, r.Name, err)
			}
			ix.roles[scoped(o.Name, r.Name)] = role
		}

		for _, p := range o.Profiles {
			profile, err := admin.CreateProfile(ctx, org.ID, p.Name)
			if err != nil {
				return nil, nil, fmt.Errorf("organization %q: profile %q: %w", o.Name, p.Name, err)
			}
			ix.profiles[scoped(o.Name, p.Name)] = profile

			for _, op := range p.Objects {
				if _, err := admin.SetObjectPermission(ctx, profile.ID, op.Object, access.ObjectPerms{
					Create: op.Create,
					Read:   op.Read,
					Update: op.Update,
					Delete: op.Delete,
				}); err != nil {
					return nil, nil, fmt.Errorf("profile %q: object %q: %w", p.Name, op.Object, err)
				}
			}
			for _, fp := range p.Fields {
				if _, err := admin.SetFieldPermission(ctx, profile.ID, fp.Object, fp.Field, access.FieldPerms{
					Read: fp.Read,
					Edit: fp.Edit,
				}); err != nil {
					return nil, nil, fmt.Errorf("profile %q: field %s.%s: %w", p.Name, fp.Object, fp.Field, err)
				}
			}
		}

		for _, d := range o.Defaults {
			if _, err := admin.SetOrgDefault(ctx, org.ID, d.Object, access.DefaultLevel(d.Level)); err != nil {
				return nil, nil, fmt.Errorf("organization %q: default for %q: %w", o.Name, d.Object, err)
			}
		}

		for _, u := range o.Users {
			profile, ok := ix.Profile(o.Name, u.Profile)
			if !ok {
				return nil, nil, fmt.Errorf("user %q: profile %q is not defined", u.Email, u.Profile)
			}
			roleID := ""
			if u.Role != "" {
				role, ok := ix.Role(o.Name, u.Role)
				if !ok {
					return nil, nil, fmt.Errorf("user %q: role %q is not defined", u.Email, u.Role)
				}
				roleID = role.ID
			}
			user, err := admin.CreateUser(ctx, org.ID, u.Email, profile.ID, roleID)
			if err != nil {
				return nil, nil, fmt.Errorf("user %q: %w", u.Email, err)
			}
			ix.users[user.Email] = user
		}

		for _, r := range o.Rules {
			role, ok := ix.Role(o.Name, r.Role)
			if !ok {
				return nil, nil, fmt.Errorf("rule %q: role %q is not defined", r.Name, r.Role)
			}
			rule, err := admin.CreateSharingRule(ctx, access.RuleSpec{
				OrganizationID:      org.ID,
				Object:              r.Object,
				Name:                r.Name,
				Type:                access.RuleType(r.Type),
				SharedToRoleID:      role.ID,
				AccessLevel:         access.AccessLevel(r.Access),
				IncludeSubordinates: r.IncludeSubordinates,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			ix.rules[scoped(o.Name, r.Object+"/"+r.Name)] = rule
		}

		for _, sh := range o.Shares {
			grantee, ok := ix.User(sh.Grantee)
			if !ok {
				return nil, nil, fmt.Errorf("share on %s/%s: grantee %q is not defined", sh.Object, sh.Record, sh.Grantee)
			}
			if _, err := admin.GrantManualShare(ctx, sh.Object, sh.Record, grantee.ID, access.AccessLevel(sh.Access)); err != nil {
				return nil, nil, fmt.Errorf("share on %s/%s: %w", sh.Object, sh.Record, err)
			}
		}
	}

	return store, ix, nil
}

// LoadAndBuild is Load followed by Build.
func LoadAndBuild(ctx context.Context, path string) (*access.InMemory, *Index, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	return Build(ctx, doc)
}
