// Package store persists projects, credentials and the screening audit
// trail. Each project owns two independent result collections, one per
// screening stage; a study screened at both stages appears in both.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/rotisserie/eris"

	"github.com/trialscope/screener-cli/internal/model"
)

// ErrDuplicateTitle is returned when a record's title already exists in
// the same (project, stage). An expected condition, not a fault: the
// UNIQUE index is the authoritative duplicate check, and callers treat
// this as "already screened", not as an error to retry.
var ErrDuplicateTitle = eris.New("store: duplicate title in project stage")

// ErrNotFound is returned when a project or record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrUserExists is returned when a username is already registered.
var ErrUserExists = eris.New("store: user already exists")

// Store is the persistence contract consumed by the screening engine.
type Store interface {
	// Audit trail. SaveResult inserts one audit record and returns its
	// ID; the (project, stage, title) uniqueness constraint lives in
	// the storage layer. OverrideDecision rewrites only the decision
	// and the override note — the machine's confidence, summary and
	// reasoning log are immutable once written.
	SaveResult(ctx context.Context, projectID int64, stage model.Stage, rec model.AuditRecord) (int64, error)
	ListResults(ctx context.Context, projectID int64, stage model.Stage) ([]model.AuditRecord, error)
	GetResult(ctx context.Context, stage model.Stage, id int64) (*model.AuditRecord, error)
	OverrideDecision(ctx context.Context, stage model.Stage, id int64, decision model.Decision, note string) error

	// Projects
	CreateProject(ctx context.Context, owner, name string, criteria model.Criteria) (*model.Project, error)
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, owner string) ([]model.Project, error)
	UpdateCriteria(ctx context.Context, projectID int64, criteria model.Criteria) error

	// Credentials
	CreateUser(ctx context.Context, username, email, password string) error
	VerifyUser(ctx context.Context, username, password string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// stageTable maps a stage to its results table. Table names are never
// interpolated from user input without going through this whitelist.
func stageTable(stage model.Stage) (string, error) {
	switch stage {
	case model.StageLevel1:
		return "results_level_1", nil
	case model.StageLevel2:
		return "results_level_2", nil
	}
	return "", eris.Errorf("store: unknown stage %q", stage)
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
