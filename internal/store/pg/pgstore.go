package pg

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldgate.dev/internal/access"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements access.Store over PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ access.Store = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool. Tests hand in sqlmock here.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Organizations() access.OrganizationStore         { return &orgStore{db: s.db} }
func (s *Store) Users() access.UserStore                         { return &userStore{db: s.db} }
func (s *Store) Roles() access.RoleStore                         { return &roleStore{db: s.db} }
func (s *Store) Profiles() access.ProfileStore                   { return &profileStore{db: s.db} }
func (s *Store) ObjectPermissions() access.ObjectPermissionStore { return &objPermStore{db: s.db} }
func (s *Store) FieldPermissions() access.FieldPermissionStore   { return &fieldPermStore{db: s.db} }
func (s *Store) OrgDefaults() access.OrgDefaultStore             { return &defaultStore{db: s.db} }
func (s *Store) SharingRules() access.SharingRuleStore           { return &ruleStore{db: s.db} }
func (s *Store) ManualShares() access.ManualShareStore           { return &shareStore{db: s.db} }

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNull(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}
