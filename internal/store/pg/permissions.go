package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fieldgate.dev/internal/access"
)

type objPermStore struct{ db *sql.DB }

func (s *objPermStore) Set(ctx context.Context, perm access.ObjectPermission) (access.ObjectPermission, error) {
	if perm.ProfileID == "" || perm.Object == "" {
		return access.ObjectPermission{}, fmt.Errorf("%w: profile_id and object are required", access.ErrInvalidInput)
	}
	var out access.ObjectPermission
	err := s.db.QueryRowContext(ctx, `
		insert into object_permissions (profile_id, object, can_create, can_read, can_update, can_delete)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (profile_id, object) do update
		set can_create = excluded.can_create,
		    can_read = excluded.can_read,
		    can_update = excluded.can_update,
		    can_delete = excluded.can_delete,
		    updated_at = now()
		returning profile_id, object, can_create, can_read, can_update, can_delete, updated_at
	`, perm.ProfileID, perm.Object, perm.CanCreate, perm.CanRead, perm.CanUpdate, perm.CanDelete).
		Scan(&out.ProfileID, &out.Object, &out.CanCreate, &out.CanRead, &out.CanUpdate, &out.CanDelete, &out.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.ObjectPermission{}, fmt.Errorf("profile %s: %w", perm.ProfileID, access.ErrNotFound)
		}
		return access.ObjectPermission{}, err
	}
	return out, nil
}

func (s *objPermStore) Get(ctx context.Context, profileID, object string) (access.ObjectPermission, error) {
	var out access.ObjectPermission
	err := s.db.QueryRowContext(ctx, `
		select profile_id, object, can_create, can_read, can_update, can_delete, updated_at
		from object_permissions
		where profile_id = $1 and object = $2
	`, profileID, object).
		Scan(&out.ProfileID, &out.Object, &out.CanCreate, &out.CanRead, &out.CanUpdate, &out.CanDelete, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.ObjectPermission{}, access.ErrNotFound
	}
	if err != nil {
		return access.ObjectPermission{}, err
	}
	return out, nil
}

func (s *objPermStore) ListByProfile(ctx context.Context, profileID string) ([]access.ObjectPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select profile_id, object, can_create, can_read, can_update, can_delete, updated_at
		from object_permissions
		where profile_id = $1
		order by object
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.ObjectPermission
	for rows.Next() {
		var p access.ObjectPermission
		if err := rows.Scan(&p.ProfileID, &p.Object, &p.CanCreate, &p.CanRead, &p.CanUpdate, &p.CanDelete, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *objPermStore) Remove(ctx context.Context, profileID, object string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from object_permissions where profile_id = $1 and object = $2
	`, profileID, object)
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

type fieldPermStore struct{ db *sql.DB }

func (s *fieldPermStore) Set(ctx context.Context, perm access.FieldPermission) (access.FieldPermission, error) {
	if perm.ProfileID == "" || perm.Object == "" || perm.Field == "" {
		return access.FieldPermission{}, fmt.Errorf("%w: profile_id, object and field are required", access.ErrInvalidInput)
	}
	var out access.FieldPermission
	err := s.db.QueryRowContext(ctx, `
		insert into field_permissions (profile_id, object, field, can_read, can_edit)
		values ($1, $2, $3, $4, $5)
		on conflict (profile_id, object, field) do update
		set can_read = excluded.can_read,
		    can_edit = excluded.can_edit,
		    updated_at = now()
		returning profile_id, object, field, can_read, can_edit, updated_at
	`, perm.ProfileID, perm.Object, perm.Field, perm.CanRead, perm.CanEdit).
		Scan(&out.ProfileID, &out.Object, &out.Field, &out.CanRead, &out.CanEdit, &out.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.FieldPermission{}, fmt.Errorf("profile %s: %w", perm.ProfileID, access.ErrNotFound)
		}
		return access.FieldPermission{}, err
	}
	return out, nil
}

func (s *fieldPermStore) Get(ctx context.Context, profileID, object, field string) (access.FieldPermission, error) {
	var out access.FieldPermission
	err := s.db.QueryRowContext(ctx, `
		select profile_id, object, field, can_read, can_edit, updated_at
		from field_permissions
		where profile_id = $1 and object = $2 and field = $3
	`, profileID, object, field).
		Scan(&out.ProfileID, &out.Object, &out.Field, &out.CanRead, &out.CanEdit, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.FieldPermission{}, access.ErrNotFound
	}
	if err != nil {
		return access.FieldPermission{}, err
	}
	return out, nil
}

func (s *fieldPermStore) ListReadable(ctx context.Context, profileID, object string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select field
		from field_permissions
		where profile_id = $1 and object = $2 and can_read
		order by field
	`, profileID, object)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make([]string, 0)
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (s *fieldPermStore) Remove(ctx context.Context, profileID, object, field string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from field_permissions where profile_id = $1 and object = $2 and field = $3
	`, profileID, object, field)
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
