package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"net/url"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/utmcraft/pkg/domain/interfaces"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLite stores documents as JSON columns next to the columns used for lookups
type SQLite struct {
	db         *sql.DB
	field      *fieldRepository
	form       *formRepository
	dependency *dependencyRepository
	submission *submissionRepository
	access     *accessRepository
}

var _ interfaces.Repository = &SQLite{}

const schema = `
CREATE TABLE IF NOT EXISTS fields (
	id TEXT PRIMARY KEY,
	full_title TEXT NOT NULL UNIQUE,
	owner TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fields_owner ON fields(owner, full_title);

CREATE TABLE IF NOT EXISTS forms (
	id TEXT PRIMARY KEY,
	full_title TEXT NOT NULL,
	owner TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_forms_owner ON forms(owner, full_title);

CREATE TABLE IF NOT EXISTS select_dependencies (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_submissions (
	hashcode TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS computed_results (
	hashcode TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_user ON computed_results(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS access_grants (
	user_id TEXT NOT NULL,
	form_id TEXT NOT NULL,
	PRIMARY KEY (user_id, form_id)
);
`

// New opens the database at path and creates the schema. Use ":memory:"
// for a private in-memory database.
func New(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		q := url.Values{}
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		q.Set("_txlock", "immediate")
		dsn = "file:" + path + "?" + q.Encode()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// alive for the lifetime of the repository.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to initialize sqlite schema", goerr.V("path", path))
	}

	return &SQLite{
		db:         db,
		field:      &fieldRepository{db: db},
		form:       &formRepository{db: db},
		dependency: &dependencyRepository{db: db},
		submission: &submissionRepository{db: db},
		access:     &accessRepository{db: db},
	}, nil
}

func (s *SQLite) Field() interfaces.FieldRepository {
	return s.field
}

func (s *SQLite) Form() interfaces.FormRepository {
	return s.form
}

func (s *SQLite) Dependency() interfaces.DependencyRepository {
	return s.dependency
}

func (s *SQLite) Submission() interfaces.SubmissionRepository {
	return s.submission
}

func (s *SQLite) Access() interfaces.AccessRepository {
	return s.access
}

func (s *SQLite) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}

	if err := fn(ctx, &transaction{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return goerr.Wrap(wrapConstraint(err), "failed to commit transaction")
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// wrapConstraint maps unique constraint violations to ErrConflict
func wrapConstraint(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return goerr.Wrap(ErrConflict, se.Error())
		}
	}
	return err
}
