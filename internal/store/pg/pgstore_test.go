package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"fieldgate.dev/internal/access"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestOrganizationCreateAndFind(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("insert into organizations").
		WithArgs(sqlmock.AnyArg(), "northwind").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active", "created_at", "updated_at"}).
			AddRow("org-1", "northwind", true, now, now))

	org, err := st.Organizations().Create(ctx, "  northwind  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if org.ID != "org-1" || org.Name != "northwind" || !org.Active {
		t.Fatalf("unexpected organization: %+v", org)
	}

	mock.ExpectQuery("select id, name, active, created_at, updated_at").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	if _, err := st.Organizations().Find(ctx, "ghost"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfileCreateMapsConstraintErrors(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("insert into profiles").
		WithArgs(sqlmock.AnyArg(), "org-1", "sales").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if _, err := st.Profiles().Create(ctx, "org-1", "sales"); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}

	mock.ExpectQuery("insert into profiles").
		WithArgs(sqlmock.AnyArg(), "ghost", "sales").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := st.Profiles().Create(ctx, "ghost", "sales"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for dangling organization, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfileDelete(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("delete from profiles").
		WithArgs("p-referenced").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if err := st.Profiles().Delete(ctx, "p-referenced"); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict while users reference the profile, got %v", err)
	}

	mock.ExpectExec("delete from profiles").
		WithArgs("p-ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.Profiles().Delete(ctx, "p-ghost"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing profile, got %v", err)
	}

	mock.ExpectExec("delete from profiles").
		WithArgs("p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.Profiles().Delete(ctx, "p-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleCreateChecksParentOrganization(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("other-org"))
	mock.ExpectRollback()
	if _, err := st.Roles().Create(ctx, "org-1", "rep", "parent-1", 2); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for foreign parent, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("parent-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("insert into roles").
		WithArgs(sqlmock.AnyArg(), "org-1", "rep", "parent-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name", "parent_id", "level", "created_at", "updated_at"}).
			AddRow("role-9", "org-1", "rep", "parent-1", 2, now, now))
	mock.ExpectCommit()
	role, err := st.Roles().Create(ctx, "org-1", "rep", "parent-1", 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if role.ParentID != "parent-1" || role.Level != 2 {
		t.Fatalf("unexpected role: %+v", role)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReparentWalksChainInTransaction(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// role-b already hangs under role-a, so moving role-a under role-b
	// must abort once the upward walk reaches role-a again.
	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("role-a").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("role-b").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("select parent_id from roles").
		WithArgs("role-b").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow("role-a"))
	mock.ExpectRollback()
	if _, err := st.Roles().Reparent(ctx, "role-a", "role-b"); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for cycle, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	if _, err := st.Roles().Reparent(ctx, "ghost", "role-b"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing role, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("role-a").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("update roles").
		WithArgs("role-a", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "name", "parent_id", "level", "created_at", "updated_at"}).
			AddRow("role-a", "org-1", "a", nil, 1, now, now))
	mock.ExpectCommit()
	moved, err := st.Roles().Reparent(ctx, "role-a", "")
	if err != nil {
		t.Fatalf("Reparent to root: %v", err)
	}
	if moved.ParentID != "" {
		t.Fatalf("parent not cleared: %q", moved.ParentID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleDeleteReparentsChildren(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("select parent_id from roles").
		WithArgs("role-mid").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow("role-root"))
	mock.ExpectExec("update roles set parent_id").
		WithArgs("role-mid", "role-root").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("delete from roles").
		WithArgs("role-mid").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	if err := st.Roles().Delete(ctx, "role-mid"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select parent_id from roles").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	if err := st.Roles().Delete(ctx, "ghost"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserCreateValidation(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from profiles").
		WithArgs("profile-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("other-org"))
	mock.ExpectRollback()
	if _, err := st.Users().Create(ctx, "org-1", "rep@northwind.test", "profile-1", ""); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for foreign profile, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from profiles").
		WithArgs("profile-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "org-1", "profile-1", nil, "dup@northwind.test", access.UserStatusActive).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()
	if _, err := st.Users().Create(ctx, "org-1", "Dup@Northwind.Test", "profile-1", ""); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindByEmailNormalizes(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("select id, organization_id, profile_id, role_id, email, status").
		WithArgs("rep@northwind.test").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "profile_id", "role_id", "email", "status", "created_at", "updated_at"}).
			AddRow("user-1", "org-1", "profile-1", nil, "rep@northwind.test", access.UserStatusActive, now, now))

	user, err := st.Users().FindByEmail(ctx, "  REP@Northwind.Test ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "user-1" || user.RoleID != "" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestObjectPermissionUpsert(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery("insert into object_permissions").
		WithArgs("profile-1", "invoice", false, true, true, false).
		WillReturnRows(sqlmock.NewRows([]string{"profile_id", "object", "can_create", "can_read", "can_update", "can_delete", "updated_at"}).
			AddRow("profile-1", "invoice", false, true, true, false, now))

	perm, err := st.ObjectPermissions().Set(ctx, access.ObjectPermission{
		ProfileID: "profile-1",
		Object:    "invoice",
		CanRead:   true,
		CanUpdate: true,
	})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !perm.CanRead || !perm.CanUpdate || perm.CanCreate || perm.CanDelete {
		t.Fatalf("unexpected permission: %+v", perm)
	}

	mock.ExpectQuery("insert into object_permissions").
		WithArgs("ghost", "invoice", false, true, false, false).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := st.ObjectPermissions().Set(ctx, access.ObjectPermission{ProfileID: "ghost", Object: "invoice", CanRead: true}); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for dangling profile, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFieldPermissionListReadable(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery("select field").
		WithArgs("profile-1", "invoice").
		WillReturnRows(sqlmock.NewRows([]string{"field"}).AddRow("amount").AddRow("status"))
	fields, err := st.FieldPermissions().ListReadable(ctx, "profile-1", "invoice")
	if err != nil {
		t.Fatalf("ListReadable: %v", err)
	}
	if len(fields) != 2 || fields[0] != "amount" || fields[1] != "status" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	mock.ExpectQuery("select field").
		WithArgs("profile-1", "account").
		WillReturnRows(sqlmock.NewRows([]string{"field"}))
	empty, err := st.FieldPermissions().ListReadable(ctx, "profile-1", "account")
	if err != nil {
		t.Fatalf("ListReadable: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", empty)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOrgDefaultSetAndClear(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := st.OrgDefaults().Set(ctx, access.OrgDefault{OrganizationID: "org-1", Object: "invoice", Level: access.DefaultLevel("open")}); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown level, got %v", err)
	}

	mock.ExpectQuery("insert into org_defaults").
		WithArgs("org-1", "invoice", "private").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id", "object", "level", "updated_at"}).
			AddRow("org-1", "invoice", "private", now))
	def, err := st.OrgDefaults().Set(ctx, access.OrgDefault{OrganizationID: "org-1", Object: "invoice", Level: access.DefaultPrivate})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if def.Level != access.DefaultPrivate {
		t.Fatalf("unexpected level: %q", def.Level)
	}

	mock.ExpectExec("delete from org_defaults").
		WithArgs("org-1", "account").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.OrgDefaults().Clear(ctx, "org-1", "account"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing default, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSharingRuleCreate(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	rule := access.SharingRule{
		OrganizationID: "org-1",
		Object:         "invoice",
		Name:           "team",
		Type:           access.RuleOwnershipBased,
		SharedToRoleID: "role-1",
		AccessLevel:    access.AccessRead,
		Active:         true,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("other-org"))
	mock.ExpectRollback()
	if _, err := st.SharingRules().Create(ctx, rule); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for foreign role, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("role-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	if _, err := st.SharingRules().Create(ctx, rule); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing role, got %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("select organization_id from roles").
		WithArgs("role-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("insert into sharing_rules").
		WithArgs(sqlmock.AnyArg(), "org-1", "invoice", "team", "ownership_based", "role-1", "read", false, true, "").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()
	if _, err := st.SharingRules().Create(ctx, rule); !errors.Is(err, access.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestManualShareGrant(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)
	updated := time.Now().UTC()

	mock.ExpectQuery("insert into manual_shares").
		WithArgs("invoice", "inv-1", "user-1", "read_write").
		WillReturnRows(sqlmock.NewRows([]string{"object", "record_id", "grantee_id", "access_level", "created_at", "updated_at"}).
			AddRow("invoice", "inv-1", "user-1", "read_write", created, updated))

	share, err := st.ManualShares().Grant(ctx, access.ManualShare{
		Object:      "invoice",
		RecordID:    "inv-1",
		GranteeID:   "user-1",
		AccessLevel: access.AccessReadWrite,
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if share.AccessLevel != access.AccessReadWrite {
		t.Fatalf("unexpected level: %q", share.AccessLevel)
	}
	if !share.CreatedAt.Before(share.UpdatedAt) {
		t.Fatalf("upsert should keep the original created_at: %+v", share)
	}

	mock.ExpectQuery("insert into manual_shares").
		WithArgs("invoice", "inv-1", "ghost", "read").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := st.ManualShares().Grant(ctx, access.ManualShare{Object: "invoice", RecordID: "inv-1", GranteeID: "ghost", AccessLevel: access.AccessRead}); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for dangling grantee, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	st, mock := newMock(t)
	ctx := context.Background()

	stmts := splitStatements(Schema())
	if len(stmts) < 10 {
		t.Fatalf("expected the schema to carry its tables and indexes, got %d statements", len(stmts))
	}

	mock.ExpectBegin()
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		mock.ExpectExec(".+").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectExec(".+").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()
	err := st.EnsureSchema(ctx)
	if err == nil || !strings.Contains(err.Error(), "apply schema statement") {
		t.Fatalf("expected wrapped statement error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table a (id text);\ncreate table b (id text);")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(stmts), stmts)
	}

	stmts = splitStatements("insert into t values ('a;b'); select 1;")
	if len(stmts) != 2 {
		t.Fatalf("semicolon inside a literal must not split: %v", stmts)
	}
	if !strings.Contains(stmts[0], "'a;b'") {
		t.Fatalf("literal was mangled: %q", stmts[0])
	}

	stmts = splitStatements("select 1")
	if len(stmts) != 1 {
		t.Fatalf("trailing statement without semicolon was dropped: %v", stmts)
	}

	if stmts := splitStatements("   \n"); len(stmts) != 0 {
		t.Fatalf("whitespace input should yield nothing, got %v", stmts)
	}
}
