package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/trialscope/screener-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const pgResultsTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id               BIGSERIAL PRIMARY KEY,
	project_id       BIGINT NOT NULL REFERENCES projects(id),
	title            TEXT NOT NULL,
	doc_text         TEXT NOT NULL DEFAULT '',
	decision         TEXT NOT NULL,
	summary          TEXT NOT NULL DEFAULT '',
	confidence       INT NOT NULL DEFAULT 0,
	p_pass BOOLEAN NOT NULL DEFAULT false, i_pass BOOLEAN NOT NULL DEFAULT false,
	c_pass BOOLEAN NOT NULL DEFAULT false, o_pass BOOLEAN NOT NULL DEFAULT false,
	s_pass BOOLEAN NOT NULL DEFAULT false, e_pass BOOLEAN NOT NULL DEFAULT false,
	p_reason TEXT NOT NULL DEFAULT '', i_reason TEXT NOT NULL DEFAULT '',
	c_reason TEXT NOT NULL DEFAULT '', o_reason TEXT NOT NULL DEFAULT '',
	s_reason TEXT NOT NULL DEFAULT '', e_reason TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	override_history TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (project_id, title)
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_project ON %[1]s(project_id);
`

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	email         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id         BIGSERIAL PRIMARY KEY,
	owner      TEXT NOT NULL,
	name       TEXT NOT NULL,
	criteria   JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := postgresMigration +
		fmt.Sprintf(pgResultsTableDDL, "results_level_1") +
		fmt.Sprintf(pgResultsTableDDL, "results_level_2")
	_, err := s.pool.Exec(ctx, ddl)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Audit trail ---

func (s *PostgresStore) SaveResult(ctx context.Context, projectID int64, stage model.Stage, rec model.AuditRecord) (int64, error) {
	table, err := stageTable(stage)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`INSERT INTO %s (
		project_id, title, doc_text, decision, summary, confidence,
		p_pass, i_pass, c_pass, o_pass, s_pass, e_pass,
		p_reason, i_reason, c_reason, o_reason, s_reason, e_reason,
		source, override_history, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	RETURNING id`, table)

	log := rec.Reasoning
	var id int64
	err = s.pool.QueryRow(ctx, query,
		projectID, rec.Title, rec.Text, string(rec.Decision), rec.Summary, rec.Confidence,
		log.Population.Pass, log.Intervention.Pass, log.Comparator.Pass,
		log.Outcome.Pass, log.StudyDesign.Pass, log.Exclusion.Pass,
		log.Population.Reason, log.Intervention.Reason, log.Comparator.Reason,
		log.Outcome.Reason, log.StudyDesign.Reason, log.Exclusion.Reason,
		rec.Source, rec.OverrideHistory, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if isPgUniqueViolation(err) {
			return 0, eris.Wrapf(ErrDuplicateTitle, "title %q", rec.Title)
		}
		return 0, eris.Wrap(err, "postgres: insert result")
	}
	return id, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, projectID int64, stage model.Stage) ([]model.AuditRecord, error) {
	table, err := stageTable(stage)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE project_id = $1 ORDER BY id`, resultColumns, table),
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
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
	return records, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) GetResult(ctx context.Context, stage model.Stage, id int64) (*model.AuditRecord, error) {
	table, err := stageTable(stage)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, resultColumns, table),
		id,
	)
	rec, err := scanResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "result %d", id)
		}
		return nil, err
	}
	return rec, nil
}

func (s *PostgresStore) OverrideDecision(ctx context.Context, stage model.Stage, id int64, decision model.Decision, note string) error {
	table, err := stageTable(stage)
	if err != nil {
		return err
	}
	if !model.IsValidDecision(decision) {
		return eris.Errorf("postgres: invalid decision %q", decision)
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET decision = $1, override_history = $2 WHERE id = $3`, table),
		string(decision), note, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: override result %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "result %d", id)
	}
	return nil
}

// --- Projects ---

func (s *PostgresStore) CreateProject(ctx context.Context, owner, name string, criteria model.Criteria) (*model.Project, error) {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal criteria")
	}

	now := time.Now().UTC()
	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO projects (owner, name, criteria, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		owner, name, string(criteriaJSON), now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert project")
	}

	return &model.Project{ID: id, Owner: owner, Name: name, Criteria: criteria, CreatedAt: now}, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner, name, criteria, created_at FROM projects WHERE id = $1`, id,
	)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "project %d", id)
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, owner string) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, name, criteria, created_at FROM projects WHERE owner = $1 ORDER BY id`, owner,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
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
	return projects, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

func (s *PostgresStore) UpdateCriteria(ctx context.Context, projectID int64, criteria model.Criteria) error {
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal criteria")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET criteria = $1 WHERE id = $2`,
		string(criteriaJSON), projectID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update criteria for project %d", projectID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "project %d", projectID)
	}
	return nil
}

// --- Credentials ---

func (s *PostgresStore) CreateUser(ctx context.Context, username, email, password string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES ($1, $2, $3)`,
		username, email, hashPassword(password),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return eris.Wrapf(ErrUserExists, "username %q", username)
		}
		return eris.Wrap(err, "postgres: insert user")
	}
	return nil
}

func (s *PostgresStore) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT password_hash FROM users WHERE username = $1`, username,
	)
	var stored string
	if err := row.Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrap(err, "postgres: verify user")
	}
	return stored == hashPassword(password), nil
}

// isPgUniqueViolation reports whether err is a unique_violation (23505).
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
