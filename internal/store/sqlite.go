package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/trialscope/screener-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// resultsTableDDL is instantiated once per stage. The UNIQUE index on
// (project_id, title) is the authoritative duplicate-title check;
// in-memory pre-checks in the batch path are advisory only.
const resultsTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id       INTEGER NOT NULL REFERENCES projects(id),
	title            TEXT NOT NULL,
	doc_text         TEXT NOT NULL DEFAULT '',
	decision         TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	confidence       INTEGER NOT NULL DEFAULT 0,
	p_pass BOOLEAN NOT NULL DEFAULT 0, i_pass BOOLEAN NOT NULL DEFAULT 0,
	c_pass BOOLEAN NOT NULL DEFAULT 0, o_pass BOOLEAN NOT NULL DEFAULT 0,
	s_pass BOOLEAN NOT NULL DEFAULT 0, e_pass BOOLEAN NOT NULL DEFAULT 0,
	p_reason TEXT NOT NULL DEFAULT '', i_reason TEXT NOT NULL DEFAULT '',
	c_reason TEXT NOT NULL DEFAULT '', o_reason TEXT NOT NULL DEFAULT '',
	s_reason TEXT NOT NULL DEFAULT '', e_reason TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	override_history TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_project_title ON %[1]s(project_id, title);
CREATE INDEX IF NOT EXISTS idx_%[1]s_project ON %[1]s(project_id);
`

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner      TEXT NOT NULL,
	name       TEXT NOT NULL,
	criteria   TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	ddl := sqliteMigration +
		fmt.Sprintf(resultsTableDDL, "results_level_1") +
		fmt.Sprintf(resultsTableDDL, "results_level_2")
	_, err := s.db.ExecContext(ctx, ddl)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Audit trail ---

func (s *SQLiteStore) SaveResult(ctx context.Context, projectID int64, stage model.Stage, rec model.AuditRecord) (int64, error) {
	table, err := stageTable(stage)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (
		project_id, title, doc_text, decision, summary, confidence,
		p_pass, i_pass, c_pass, o_pass, s_pass, e_pass,
		p_reason, i_reason, c_reason, o_reason, s_reason, e_reason,
		source, override_history, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, table)

	log := rec.Reasoning
	res, err := s.db.ExecContext(ctx, query,
		projectID, rec.Title, rec.Text, string(rec.Decision), rec.Summary, rec.Confidence,
		log.Population.Pass, log.Intervention.Pass, log.Comparator.Pass,
		log.Outcome.Pass, log.StudyDesign.Pass, log.Exclusion.Pass,
		log.Population.Reason, log.Intervention.Reason, log.Comparator.Reason,
		log.Outcome.Reason, log.StudyDesign.Reason, log.Exclusion.Reason,
		rec.Source, rec.OverrideHistory, time.Now().UTC(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return 0, eris.Wrapf(ErrDuplicateTitle, "title %q", rec.Title)
		}
		return 0, eris.Wrap(err, "sqlite: insert result")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return id, nil
}

const resultColumns = `id, project_id, title, doc_text, decision, summary, confidence,
	p_pass, i_pass, c_pass, o_pass, s_pass, e_pass,
	p_reason, i_reason, c_reason, o_reason, s_reason, e_reason,
	source, override_history, created_at`

func (s *SQLiteStore) ListResults(ctx context.Context, projectID int64, stage model.Stage) ([]model.AuditRecord, error) {
	table, err := stageTable(stage)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE project_id = ? ORDER BY id`, resultColumns, table),
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		rec, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) GetResult(ctx context.Context, stage model.Stage, id int64) (*model.AuditRecord, error) {
	table, err := stageTable(stage)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, resultColumns, table),
		id,
	)
	rec, err := scanResult(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "result %d", id)
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) OverrideDecision(ctx context.Context, stage model.Stage, id int64, decision model.Decision, note string) error {
	table, err := stageTable(stage)
	if err != nil {
		return err
	}
	if !model.IsValidDecision(decision) {
		return eris.Errorf("sqlite: invalid decision %q", decision)
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET decision = ?, override_history = ? WHERE id = ?`, table),
		string(decision), note, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: override result %d", id)
	}
	return checkRowsAffected(res, "result", id)
}

// --- Projects ---

func (s *SQLiteStore) CreateProject(ctx context.Context, owner, name string, criteria model.Criteria) (*model.Project, error) {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal criteria")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (owner, name, criteria, created_at) VALUES (?, ?, ?, ?)`,
		owner, name, string(criteriaJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert project")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}

	return &model.Project{ID: id, Owner: owner, Name: name, Criteria: criteria, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, name, criteria, created_at FROM projects WHERE id = ?`, id,
	)
	p, err := scanProject(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "project %d", id)
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, owner string) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, name, criteria, created_at FROM projects WHERE owner = ? ORDER BY id`, owner,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, eris.Wrap(rows.Err(), "sqlite: list projects iterate")
}

func (s *SQLiteStore) UpdateCriteria(ctx context.Context, projectID int64, criteria model.Criteria) error {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal criteria")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET criteria = ? WHERE id = ?`,
		string(criteriaJSON), projectID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update criteria for project %d", projectID)
	}
	return checkRowsAffected(res, "project", projectID)
}

// --- Credentials ---

func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, password string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, hashPassword(password),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return eris.Wrapf(ErrUserExists, "username %q", username)
		}
		return eris.Wrap(err, "sqlite: insert user")
	}
	return nil
}

func (s *SQLiteStore) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE username = ?`, username,
	)
	var stored string
	if err := row.Scan(&stored); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "sqlite: verify user")
	}
	return stored == hashPassword(password), nil
}

// --- helpers ---

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*model.AuditRecord, error) {
	var rec model.AuditRecord
	var decision string
	log := &rec.Reasoning

	err := row.Scan(
		&rec.ID, &rec.ProjectID, &rec.Title, &rec.Text, &decision, &rec.Summary, &rec.Confidence,
		&log.Population.Pass, &log.Intervention.Pass, &log.Comparator.Pass,
		&log.Outcome.Pass, &log.StudyDesign.Pass, &log.Exclusion.Pass,
		&log.Population.Reason, &log.Intervention.Reason, &log.Comparator.Reason,
		&log.Outcome.Reason, &log.StudyDesign.Reason, &log.Exclusion.Reason,
		&rec.Source, &rec.OverrideHistory, &rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(sql.ErrNoRows, "store: scan result")
		}
		return nil, eris.Wrap(err, "store: scan result")
	}

	rec.Decision = model.Decision(decision)
	return &rec, nil
}

func scanProject(row scannable) (*model.Project, error) {
	var p model.Project
	var criteriaJSON string

	err := row.Scan(&p.ID, &p.Owner, &p.Name, &criteriaJSON, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(sql.ErrNoRows, "store: scan project")
		}
		return nil, eris.Wrap(err, "store: scan project")
	}

	if err := json.Unmarshal([]byte(criteriaJSON), &p.Criteria); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal criteria")
	}
	return &p, nil
}
