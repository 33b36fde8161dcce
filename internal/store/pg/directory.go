package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fieldgate.dev/internal/access"
	"fieldgate.dev/internal/ids"
)

// maxChainDepth bounds the ancestor walk inside Reparent. The same bound
// guards the resolver's hierarchy walks.
const maxChainDepth = 64

type orgStore struct{ db *sql.DB }

func (s *orgStore) Create(ctx context.Context, name string) (access.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return access.Organization{}, fmt.Errorf("%w: organization name is required", access.ErrInvalidInput)
	}
	var org access.Organization
	err := s.db.QueryRowContext(ctx, `
		insert into organizations (id, name)
		values ($1, $2)
		returning id, name, active, created_at, updated_at
	`, ids.New(), name).Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return access.Organization{}, err
	}
	return org, nil
}

func (s *orgStore) Find(ctx context.Context, id string) (access.Organization, error) {
	var org access.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, active, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Organization{}, access.ErrNotFound
	}
	if err != nil {
		return access.Organization{}, err
	}
	return org, nil
}

func (s *orgStore) List(ctx context.Context) ([]access.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, active, created_at, updated_at
		from organizations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]access.Organization, 0)
	for rows.Next() {
		var org access.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *orgStore) SetActive(ctx context.Context, id string, active bool) (access.Organization, error) {
	var org access.Organization
	err := s.db.QueryRowContext(ctx, `
		update organizations
		set active = $2, updated_at = now()
		where id = $1
		returning id, name, active, created_at, updated_at
	`, id, active).Scan(&org.ID, &org.Name, &org.Active, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Organization{}, access.ErrNotFound
	}
	if err != nil {
		return access.Organization{}, err
	}
	return org, nil
}

func (s *orgStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from organizations where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return access.ErrNotFound
	}
	return nil
}

type profileStore struct{ db *sql.DB }

func (s *profileStore) Create(ctx context.Context, orgID, name string) (access.Profile, error) {
	name = strings.TrimSpace(name)
	if orgID == "" || name == "" {
		return access.Profile{}, fmt.Errorf("%w: organization_id and profile name are required", access.ErrInvalidInput)
	}
	var profile access.Profile
	err := s.db.QueryRowContext(ctx, `
		insert into profiles (id, organization_id, name)
		values ($1, $2, $3)
		returning id, organization_id, name, created_at, updated_at
	`, ids.New(), orgID, name).Scan(&profile.ID, &profile.OrganizationID, &profile.Name, &profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.Profile{}, fmt.Errorf("%w: profile %q already exists", access.ErrConflict, name)
			case pgErrForeignKeyViolation:
				return access.Profile{}, fmt.Errorf("organization %s: %w", orgID, access.ErrNotFound)
			}
		}
		return access.Profile{}, err
	}
	return profile, nil
}

func (s *profileStore) Find(ctx context.Context, id string) (access.Profile, error) {
	var profile access.Profile
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, name, created_at, updated_at
		from profiles
		where id = $1
	`, id).Scan(&profile.ID, &profile.OrganizationID, &profile.Name, &profile.CreatedAt, &profile.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Profile{}, access.ErrNotFound
	}
	if err != nil {
		return access.Profile{}, err
	}
	return profile, nil
}

func (s *profileStore) ListByOrg(ctx context.Context, orgID string) ([]access.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, name, created_at, updated_at
		from profiles
		where organization_id = $1
		order by name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Profile
	for rows.Next() {
		var p access.Profile
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *profileStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from profiles where id = $1`, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: users still reference profile %s", access.ErrConflict, id)
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return access.ErrNotFound
	}
	return nil
}

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, orgID, name, parentID string, level int) (access.Role, error) {
	name = strings.TrimSpace(name)
	parentID = strings.TrimSpace(parentID)
	if orgID == "" || name == "" {
		return access.Role{}, fmt.Errorf("%w: organization_id and role name are required", access.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if parentID != "" {
		var parentOrg string
		err := tx.QueryRowContext(ctx, `select organization_id from roles where id = $1`, parentID).Scan(&parentOrg)
		if errors.Is(err, sql.ErrNoRows) {
			return access.Role{}, fmt.Errorf("parent role %s: %w", parentID, access.ErrNotFound)
		}
		if err != nil {
			return access.Role{}, err
		}
		if parentOrg != orgID {
			return access.Role{}, fmt.Errorf("%w: parent role belongs to another organization", access.ErrInvalidInput)
		}
	}

	var (
		role   access.Role
		parent sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		insert into roles (id, organization_id, name, parent_id, level)
		values ($1, $2, $3, $4, $5)
		returning id, organization_id, name, parent_id, level, created_at, updated_at
	`, ids.New(), orgID, name, nullIfEmpty(parentID), level).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &parent, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.Role{}, fmt.Errorf("organization %s: %w", orgID, access.ErrNotFound)
		}
		return access.Role{}, err
	}
	role.ParentID = fromNull(parent)
	if err := tx.Commit(); err != nil {
		return access.Role{}, err
	}
	return role, nil
}

func (s *roleStore) Find(ctx context.Context, id string) (access.Role, error) {
	var (
		role   access.Role
		parent sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, name, parent_id, level, created_at, updated_at
		from roles
		where id = $1
	`, id).Scan(&role.ID, &role.OrganizationID, &role.Name, &parent, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Role{}, access.ErrNotFound
	}
	if err != nil {
		return access.Role{}, err
	}
	role.ParentID = fromNull(parent)
	return role, nil
}

func (s *roleStore) ListByOrg(ctx context.Context, orgID string) ([]access.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, name, parent_id, level, created_at, updated_at
		from roles
		where organization_id = $1
		order by level, name
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.Role
	for rows.Next() {
		var (
			role   access.Role
			parent sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.OrganizationID, &role.Name, &parent, &role.Level, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.ParentID = fromNull(parent)
		out = append(out, role)
	}
	return out, rows.Err()
}

// Reparent locks the moving role and the proposed ancestor chain, verifies
// the move closes no cycle, and applies it, all in one transaction.
func (s *roleStore) Reparent(ctx context.Context, roleID, newParentID string) (access.Role, error) {
	newParentID = strings.TrimSpace(newParentID)
	if roleID == "" {
		return access.Role{}, fmt.Errorf("%w: role_id is required", access.ErrInvalidInput)
	}
	if newParentID == roleID {
		return access.Role{}, fmt.Errorf("%w: role cannot be its own parent", access.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.Role{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var roleOrg string
	err = tx.QueryRowContext(ctx, `select organization_id from roles where id = $1 for update`, roleID).Scan(&roleOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Role{}, access.ErrNotFound
	}
	if err != nil {
		return access.Role{}, err
	}

	if newParentID != "" {
		var parentOrg string
		err = tx.QueryRowContext(ctx, `select organization_id from roles where id = $1 for update`, newParentID).Scan(&parentOrg)
		if errors.Is(err, sql.ErrNoRows) {
			return access.Role{}, fmt.Errorf("parent role %s: %w", newParentID, access.ErrNotFound)
		}
		if err != nil {
			return access.Role{}, err
		}
		if parentOrg != roleOrg {
			return access.Role{}, fmt.Errorf("%w: parent role belongs to another organization", access.ErrInvalidInput)
		}

		cur := newParentID
		for depth := 0; ; depth++ {
			if depth >= maxChainDepth {
				return access.Role{}, fmt.Errorf("%w: role chain from %s exceeds depth %d", access.ErrIntegrity, newParentID, maxChainDepth)
			}
			if cur == roleID {
				return access.Role{}, fmt.Errorf("%w: reparenting %s under %s would create a cycle", access.ErrInvalidInput, roleID, newParentID)
			}
			var next sql.NullString
			err = tx.QueryRowContext(ctx, `select parent_id from roles where id = $1 for update`, cur).Scan(&next)
			if errors.Is(err, sql.ErrNoRows) {
				return access.Role{}, fmt.Errorf("%w: role %s missing from hierarchy", access.ErrIntegrity, cur)
			}
			if err != nil {
				return access.Role{}, err
			}
			if !next.Valid {
				break
			}
			cur = next.String
		}
	}

	var (
		role   access.Role
		parent sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		update roles
		set parent_id = $2, updated_at = now()
		where id = $1
		returning id, organization_id, name, parent_id, level, created_at, updated_at
	`, roleID, nullIfEmpty(newParentID)).
		Scan(&role.ID, &role.OrganizationID, &role.Name, &parent, &role.Level, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return access.Role{}, err
	}
	role.ParentID = fromNull(parent)
	if err := tx.Commit(); err != nil {
		return access.Role{}, err
	}
	return role, nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var parent sql.NullString
	err = tx.QueryRowContext(ctx, `select parent_id from roles where id = $1 for update`, id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return access.ErrNotFound
	}
	if err != nil {
		return err
	}

	// Children move up to the deleted role's parent; users and sharing rules
	// are handled by the role FKs.
	if _, err := tx.ExecContext(ctx, `
		update roles set parent_id = $2, updated_at = now() where parent_id = $1
	`, id, parent); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from roles where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, orgID, email, profileID, roleID string) (access.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	roleID = strings.TrimSpace(roleID)
	if orgID == "" || email == "" || profileID == "" {
		return access.User{}, fmt.Errorf("%w: organization_id, email and profile_id are required", access.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var profileOrg string
	err = tx.QueryRowContext(ctx, `select organization_id from profiles where id = $1`, profileID).Scan(&profileOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, fmt.Errorf("profile %s: %w", profileID, access.ErrNotFound)
	}
	if err != nil {
		return access.User{}, err
	}
	if profileOrg != orgID {
		return access.User{}, fmt.Errorf("%w: user and profile belong to different organizations", access.ErrInvalidInput)
	}

	if roleID != "" {
		var roleOrg string
		err = tx.QueryRowContext(ctx, `select organization_id from roles where id = $1`, roleID).Scan(&roleOrg)
		if errors.Is(err, sql.ErrNoRows) {
			return access.User{}, fmt.Errorf("role %s: %w", roleID, access.ErrNotFound)
		}
		if err != nil {
			return access.User{}, err
		}
		if roleOrg != orgID {
			return access.User{}, fmt.Errorf("%w: user and role belong to different organizations", access.ErrInvalidInput)
		}
	}

	var (
		user access.User
		role sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		insert into users (id, organization_id, profile_id, role_id, email, status)
		values ($1, $2, $3, $4, $5, $6)
		returning id, organization_id, profile_id, role_id, email, status, created_at, updated_at
	`, ids.New(), orgID, profileID, nullIfEmpty(roleID), email, access.UserStatusActive).
		Scan(&user.ID, &user.OrganizationID, &user.ProfileID, &role, &user.Email, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.User{}, fmt.Errorf("%w: email %q already registered", access.ErrConflict, email)
			case pgErrForeignKeyViolation:
				return access.User{}, fmt.Errorf("organization %s: %w", orgID, access.ErrNotFound)
			}
		}
		return access.User{}, err
	}
	user.RoleID = fromNull(role)
	if err := tx.Commit(); err != nil {
		return access.User{}, err
	}
	return user, nil
}

func (s *userStore) Find(ctx context.Context, id string) (access.User, error) {
	var (
		user access.User
		role sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, profile_id, role_id, email, status, created_at, updated_at
		from users
		where id = $1
	`, id).Scan(&user.ID, &user.OrganizationID, &user.ProfileID, &role, &user.Email, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}
	user.RoleID = fromNull(role)
	return user, nil
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (access.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	var (
		user access.User
		role sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, profile_id, role_id, email, status, created_at, updated_at
		from users
		where email = $1
	`, email).Scan(&user.ID, &user.OrganizationID, &user.ProfileID, &role, &user.Email, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}
	user.RoleID = fromNull(role)
	return user, nil
}

func (s *userStore) ListByOrg(ctx context.Context, orgID string) ([]access.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, profile_id, role_id, email, status, created_at, updated_at
		from users
		where organization_id = $1
		order by email
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.User
	for rows.Next() {
		var (
			user access.User
			role sql.NullString
		)
		if err := rows.Scan(&user.ID, &user.OrganizationID, &user.ProfileID, &role, &user.Email, &user.Status, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		user.RoleID = fromNull(role)
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *userStore) SetRole(ctx context.Context, userID, roleID string) (access.User, error) {
	roleID = strings.TrimSpace(roleID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var userOrg string
	err = tx.QueryRowContext(ctx, `select organization_id from users where id = $1`, userID).Scan(&userOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}

	if roleID != "" {
		var roleOrg string
		err = tx.QueryRowContext(ctx, `select organization_id from roles where id = $1`, roleID).Scan(&roleOrg)
		if errors.Is(err, sql.ErrNoRows) {
			return access.User{}, fmt.Errorf("role %s: %w", roleID, access.ErrNotFound)
		}
		if err != nil {
			return access.User{}, err
		}
		if roleOrg != userOrg {
			return access.User{}, fmt.Errorf("%w: user and role belong to different organizations", access.ErrInvalidInput)
		}
	}

	var (
		user access.User
		role sql.NullString
	)
	err = tx.QueryRowContext(ctx, `
		update users
		set role_id = $2, updated_at = now()
		where id = $1
		returning id, organization_id, profile_id, role_id, email, status, created_at, updated_at
	`, userID, nullIfEmpty(roleID)).
		Scan(&user.ID, &user.OrganizationID, &user.ProfileID, &role, &user.Email, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return access.User{}, err
	}
	user.RoleID = fromNull(role)
	if err := tx.Commit(); err != nil {
		return access.User{}, err
	}
	return user, nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return access.ErrNotFound
	}
	return nil
}
