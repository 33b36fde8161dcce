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

type defaultStore struct{ db *sql.DB }

func (s *defaultStore) Set(ctx context.Context, def access.OrgDefault) (access.OrgDefault, error) {
	if def.OrganizationID == "" || def.Object == "" {
		return access.OrgDefault{}, fmt.Errorf("%w: organization_id and object are required", access.ErrInvalidInput)
	}
	if !def.Level.Valid() {
		return access.OrgDefault{}, fmt.Errorf("%w: unknown default level %q", access.ErrInvalidInput, def.Level)
	}
	var out access.OrgDefault
	err := s.db.QueryRowContext(ctx, `
		insert into org_defaults (organization_id, object, level)
		values ($1, $2, $3)
		on conflict (organization_id, object) do update
		set level = excluded.level, updated_at = now()
		returning organization_id, object, level, updated_at
	`, def.OrganizationID, def.Object, string(def.Level)).
		Scan(&out.OrganizationID, &out.Object, &out.Level, &out.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.OrgDefault{}, fmt.Errorf("organization %s: %w", def.OrganizationID, access.ErrNotFound)
		}
		return access.OrgDefault{}, err
	}
	return out, nil
}

func (s *defaultStore) Get(ctx context.Context, orgID, object string) (access.OrgDefault, error) {
	var out access.OrgDefault
	err := s.db.QueryRowContext(ctx, `
		select organization_id, object, level, updated_at
		from org_defaults
		where organization_id = $1 and object = $2
	`, orgID, object).Scan(&out.OrganizationID, &out.Object, &out.Level, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.OrgDefault{}, access.ErrNotFound
	}
	if err != nil {
		return access.OrgDefault{}, err
	}
	return out, nil
}

func (s *defaultStore) Clear(ctx context.Context, orgID, object string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from org_defaults where organization_id = $1 and object = $2
	`, orgID, object)
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

type ruleStore struct{ db *sql.DB }

func (s *ruleStore) Create(ctx context.Context, rule access.SharingRule) (access.SharingRule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.OrganizationID == "" || rule.Object == "" || rule.Name == "" {
		return access.SharingRule{}, fmt.Errorf("%w: organization_id, object and rule name are required", access.ErrInvalidInput)
	}
	if rule.Type != access.RuleOwnershipBased && rule.Type != access.RuleCriteriaBased {
		return access.SharingRule{}, fmt.Errorf("%w: unknown rule type %q", access.ErrInvalidInput, rule.Type)
	}
	if !rule.AccessLevel.Valid() {
		return access.SharingRule{}, fmt.Errorf("%w: unknown access level %q", access.ErrInvalidInput, rule.AccessLevel)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return access.SharingRule{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var roleOrg string
	err = tx.QueryRowContext(ctx, `select organization_id from roles where id = $1`, rule.SharedToRoleID).Scan(&roleOrg)
	if errors.Is(err, sql.ErrNoRows) {
		return access.SharingRule{}, fmt.Errorf("role %s: %w", rule.SharedToRoleID, access.ErrNotFound)
	}
	if err != nil {
		return access.SharingRule{}, err
	}
	if roleOrg != rule.OrganizationID {
		return access.SharingRule{}, fmt.Errorf("%w: rule and target role belong to different organizations", access.ErrInvalidInput)
	}

	var out access.SharingRule
	err = tx.QueryRowContext(ctx, `
		insert into sharing_rules (id, organization_id, object, name, rule_type, shared_to_role_id, access_level, include_subordinates, active, criteria)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning id, organization_id, object, name, rule_type, shared_to_role_id, access_level, include_subordinates, active, criteria, created_at, updated_at
	`, ids.New(), rule.OrganizationID, rule.Object, rule.Name, string(rule.Type), rule.SharedToRoleID,
		string(rule.AccessLevel), rule.IncludeSubordinates, rule.Active, rule.Criteria).
		Scan(&out.ID, &out.OrganizationID, &out.Object, &out.Name, &out.Type, &out.SharedToRoleID,
			&out.AccessLevel, &out.IncludeSubordinates, &out.Active, &out.Criteria, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.SharingRule{}, fmt.Errorf("%w: sharing rule %q already exists for %s", access.ErrConflict, rule.Name, rule.Object)
			case pgErrForeignKeyViolation:
				return access.SharingRule{}, fmt.Errorf("organization %s: %w", rule.OrganizationID, access.ErrNotFound)
			}
		}
		return access.SharingRule{}, err
	}
	if err := tx.Commit(); err != nil {
		return access.SharingRule{}, err
	}
	return out, nil
}

func (s *ruleStore) Find(ctx context.Context, id string) (access.SharingRule, error) {
	var out access.SharingRule
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, object, name, rule_type, shared_to_role_id, access_level, include_subordinates, active, criteria, created_at, updated_at
		from sharing_rules
		where id = $1
	`, id).Scan(&out.ID, &out.OrganizationID, &out.Object, &out.Name, &out.Type, &out.SharedToRoleID,
		&out.AccessLevel, &out.IncludeSubordinates, &out.Active, &out.Criteria, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.SharingRule{}, access.ErrNotFound
	}
	if err != nil {
		return access.SharingRule{}, err
	}
	return out, nil
}

func (s *ruleStore) ListActive(ctx context.Context, orgID, object string) ([]access.SharingRule, error) {
	return s.list(ctx, `
		select id, organization_id, object, name, rule_type, shared_to_role_id, access_level, include_subordinates, active, criteria, created_at, updated_at
		from sharing_rules
		where organization_id = $1 and object = $2 and active
		order by name
	`, orgID, object)
}

func (s *ruleStore) ListByOrg(ctx context.Context, orgID string) ([]access.SharingRule, error) {
	return s.list(ctx, `
		select id, organization_id, object, name, rule_type, shared_to_role_id, access_level, include_subordinates, active, criteria, created_at, updated_at
		from sharing_rules
		where organization_id = $1
		order by object, name
	`, orgID)
}

func (s *ruleStore) list(ctx context.Context, query string, args ...any) ([]access.SharingRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.SharingRule
	for rows.Next() {
		var rule access.SharingRule
		if err := rows.Scan(&rule.ID, &rule.OrganizationID, &rule.Object, &rule.Name, &rule.Type, &rule.SharedToRoleID,
			&rule.AccessLevel, &rule.IncludeSubordinates, &rule.Active, &rule.Criteria, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *ruleStore) SetActive(ctx context.Context, id string, active bool) (access.SharingRule, error) {
	var out access.SharingRule
	err := s.db.QueryRowContext(ctx, `
		update sharing_rules
		set active = $2, updated_at = now()
		where id = $1
		returning id, organization_id, object, name, rule_type, shared_to_role_id, access_level, include_subordinates, active, criteria, created_at, updated_at
	`, id, active).Scan(&out.ID, &out.OrganizationID, &out.Object, &out.Name, &out.Type, &out.SharedToRoleID,
		&out.AccessLevel, &out.IncludeSubordinates, &out.Active, &out.Criteria, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.SharingRule{}, access.ErrNotFound
	}
	if err != nil {
		return access.SharingRule{}, err
	}
	return out, nil
}

func (s *ruleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from sharing_rules where id = $1`, id)
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

type shareStore struct{ db *sql.DB }

func (s *shareStore) Grant(ctx context.Context, share access.ManualShare) (access.ManualShare, error) {
	if share.Object == "" || share.RecordID == "" || share.GranteeID == "" {
		return access.ManualShare{}, fmt.Errorf("%w: object, record_id and grantee_id are required", access.ErrInvalidInput)
	}
	if !share.AccessLevel.Valid() {
		return access.ManualShare{}, fmt.Errorf("%w: unknown access level %q", access.ErrInvalidInput, share.AccessLevel)
	}
	var out access.ManualShare
	err := s.db.QueryRowContext(ctx, `
		insert into manual_shares (object, record_id, grantee_id, access_level)
		values ($1, $2, $3, $4)
		on conflict (object, record_id, grantee_id) do update
		set access_level = excluded.access_level, updated_at = now()
		returning object, record_id, grantee_id, access_level, created_at, updated_at
	`, share.Object, share.RecordID, share.GranteeID, string(share.AccessLevel)).
		Scan(&out.Object, &out.RecordID, &out.GranteeID, &out.AccessLevel, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return access.ManualShare{}, fmt.Errorf("grantee %s: %w", share.GranteeID, access.ErrNotFound)
		}
		return access.ManualShare{}, err
	}
	return out, nil
}

func (s *shareStore) Get(ctx context.Context, object, recordID, granteeID string) (access.ManualShare, error) {
	var out access.ManualShare
	err := s.db.QueryRowContext(ctx, `
		select object, record_id, grantee_id, access_level, created_at, updated_at
		from manual_shares
		where object = $1 and record_id = $2 and grantee_id = $3
	`, object, recordID, granteeID).
		Scan(&out.Object, &out.RecordID, &out.GranteeID, &out.AccessLevel, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.ManualShare{}, access.ErrNotFound
	}
	if err != nil {
		return access.ManualShare{}, err
	}
	return out, nil
}

func (s *shareStore) ListByRecord(ctx context.Context, object, recordID string) ([]access.ManualShare, error) {
	rows, err := s.db.QueryContext(ctx, `
		select object, record_id, grantee_id, access_level, created_at, updated_at
		from manual_shares
		where object = $1 and record_id = $2
		order by grantee_id
	`, object, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []access.ManualShare
	for rows.Next() {
		var share access.ManualShare
		if err := rows.Scan(&share.Object, &share.RecordID, &share.GranteeID, &share.AccessLevel, &share.CreatedAt, &share.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, share)
	}
	return out, rows.Err()
}

func (s *shareStore) Revoke(ctx context.Context, object, recordID, granteeID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from manual_shares where object = $1 and record_id = $2 and grantee_id = $3
	`, object, recordID, granteeID)
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
