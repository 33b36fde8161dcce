package fixture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldgate.dev/internal/access"
)

const sampleDoc = `
organizations:
  - name: northwind
    defaults:
      - object: invoice
        level: private
    roles:
      - name: rep
        parent: boss
        level: 1
      - name: boss
        level: 0
    profiles:
      - name: sales
        objects:
          - object: invoice
            create: true
            read: true
            update: true
        fields:
          - object: invoice
            field: amount
            read: true
            edit: true
    users:
      - email: rep@northwind.test
        profile: sales
        role: rep
      - email: boss@northwind.test
        profile: sales
        role: boss
    rules:
      - object: invoice
        name: team
        role: boss
        access: read
        include_subordinates: true
    shares:
      - object: invoice
        record: inv-1
        grantee: boss@northwind.test
        access: read
`

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("organizations:\n  - name: northwind\n    colour: blue\n"))
	if err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
	if !strings.Contains(err.Error(), "decode fixture") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildResolvesNames(t *testing.T) {
	ctx := context.Background()
	doc, err := Parse([]byte(sampleDoc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	st, ix, err := Build(ctx, doc)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	org, ok := ix.Org("northwind")
	if !ok {
		t.Fatal("organization missing from index")
	}
	boss, ok := ix.Role("northwind", "boss")
	if !ok {
		t.Fatal("role boss missing from index")
	}
	rep, ok := ix.Role("northwind", "rep")
	if !ok {
		t.Fatal("role rep missing from index")
	}
	// rep is declared before its parent; the second pass wires it up.
	if rep.ParentID != boss.ID {
		t.Fatalf("rep parent = %q, want %q", rep.ParentID, boss.ID)
	}

	profile, ok := ix.Profile("northwind", "sales")
	if !ok {
		t.Fatal("profile missing from index")
	}
	repUser, ok := ix.User("rep@northwind.test")
	if !ok {
		t.Fatal("user missing from index")
	}
	if repUser.ProfileID != profile.ID || repUser.RoleID != rep.ID {
		t.Fatalf("user references not resolved: %+v", repUser)
	}

	rule, ok := ix.Rule("northwind", "invoice", "team")
	if !ok {
		t.Fatal("rule missing from index")
	}
	if rule.SharedToRoleID != boss.ID || !rule.IncludeSubordinates || !rule.Active {
		t.Fatalf("rule not built as declared: %+v", rule)
	}

	def, err := st.OrgDefaults().Get(ctx, org.ID, "invoice")
	if err != nil {
		t.Fatalf("org default not stored: %v", err)
	}
	if def.Level != access.DefaultPrivate {
		t.Fatalf("unexpected default level: %q", def.Level)
	}
	bossUser, _ := ix.User("boss@northwind.test")
	if _, err := st.ManualShares().Get(ctx, "invoice", "inv-1", bossUser.ID); err != nil {
		t.Fatalf("manual share not stored: %v", err)
	}

	// The built store feeds the resolver directly.
	resolver, err := access.NewResolver(st)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	p := access.Principal{
		UserID:         bossUser.ID,
		OrganizationID: bossUser.OrganizationID,
		ProfileID:      bossUser.ProfileID,
		RoleID:         bossUser.RoleID,
	}
	d, err := resolver.AuthorizeRecord(ctx, p, "invoice", access.ActionRead, "inv-9", repUser.ID)
	if err != nil {
		t.Fatalf("AuthorizeRecord: %v", err)
	}
	if !d.Allowed || d.Grant != access.GrantRoleHierarchy {
		t.Fatalf("hierarchy grant expected, got %+v", d)
	}
}

func TestBuildUndefinedReferences(t *testing.T) {
	ctx := context.Background()
	docs := map[string]string{
		"role parent": `
organizations:
  - name: acme
    roles:
      - name: rep
        parent: missing
        level: 1
`,
		"user profile": `
organizations:
  - name: acme
    users:
      - email: a@acme.test
        profile: missing
`,
		"user role": `
organizations:
  - name: acme
    profiles:
      - name: ops
    users:
      - email: a@acme.test
        profile: ops
        role: missing
`,
		"rule role": `
organizations:
  - name: acme
    rules:
      - object: invoice
        name: team
        role: missing
        access: read
`,
		"share grantee": `
organizations:
  - name: acme
    shares:
      - object: invoice
        record: inv-1
        grantee: missing@acme.test
        access: read
`,
	}
	for name, raw := range docs {
		doc, err := Parse([]byte(raw))
		if err != nil {
			t.Fatalf("%s: Parse: %v", name, err)
		}
		_, _, err = Build(ctx, doc)
		if err == nil {
			t.Fatalf("%s: expected Build to fail", name)
		}
		if !strings.Contains(err.Error(), "is not defined") {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
	}
}

func TestBuildNilDocument(t *testing.T) {
	if _, _, err := Build(context.Background(), nil); err == nil {
		t.Fatal("expected nil document to be rejected")
	}
}

func TestLoadAndBuild(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte(sampleDoc), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, ix, err := LoadAndBuild(ctx, path)
	if err != nil {
		t.Fatalf("LoadAndBuild: %v", err)
	}
	if _, ok := ix.User("rep@northwind.test"); !ok {
		t.Fatal("user missing after LoadAndBuild")
	}

	if _, _, err := LoadAndBuild(ctx, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected missing file to error")
	}
}
