package data

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	StageNone       = "None"
	StageStaging    = "Staging"
	StageProduction = "Production"
	StageArchived   = "Archived"

	insertRegisteredModelSQL = `INSERT OR IGNORE INTO registered_model (name, created_at) VALUES (?, ?)`

	selectNextVersionSQL = `SELECT COALESCE(MAX(version), 0) + 1 FROM model_version WHERE name = ?`

	insertModelVersionSQL = `INSERT INTO model_version (
			name, version, stage, source, run_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectModelVersionSQL = `SELECT
			name, version, stage, source, run_id, created_at, updated_at
		FROM model_version
		WHERE name = ? AND version = ?
	`

	selectLatestModelVersionSQL = `SELECT
			name, version, stage, source, run_id, created_at, updated_at
		FROM model_version
		WHERE name = ? AND (? = '' OR stage = ?)
		ORDER BY version DESC
		LIMIT 1
	`

	selectModelVersionsSQL = `SELECT
			name, version, stage, source, run_id, created_at, updated_at
		FROM model_version
		WHERE ? = '' OR name = ?
		ORDER BY name, version DESC
	`

	archiveStageSQL = `UPDATE model_version SET stage = ?, updated_at = ?
		WHERE name = ? AND stage = ? AND version != ?
	`

	updateStageSQL = `UPDATE model_version SET stage = ?, updated_at = ? WHERE name = ? AND version = ?`
)

var (
	Stages = []string{StageNone, StageStaging, StageProduction, StageArchived}

	ErrInvalidStage = errors.New("invalid stage")
)

// ModelVersion is one registered version of a named model.
type ModelVersion struct {
	Name      string `db:"name" json:"name" yaml:"name"`
	Version   int64  `db:"version" json:"version" yaml:"version"`
	Stage     string `db:"stage" json:"stage" yaml:"stage"`
	Source    string `db:"source" json:"source" yaml:"source"`
	RunID     string `db:"run_id" json:"run_id,omitempty" yaml:"run_id,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at" yaml:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at" yaml:"updated_at"`
}

// NormalizeStage returns the canonical spelling of stage, matched case-insensitively.
func NormalizeStage(stage string) (string, error) {
	s := strings.TrimSpace(stage)
	for _, v := range Stages {
		if strings.EqualFold(v, s) {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %s)", ErrInvalidStage, stage, strings.Join(Stages, ", "))
}

// RegisterModelVersion records a new version of name pointing at source.
// The model is created on first registration and versions start at 1.
func RegisterModelVersion(db *sqlx.DB, name, source, runID string) (*ModelVersion, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if name == "" {
		return nil, errors.New("model name is required")
	}
	if source == "" {
		return nil, errors.New("model source is required")
	}

	tx, err := db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Unix()
	if _, err := tx.Exec(insertRegisteredModelSQL, name, now); err != nil {
		return nil, fmt.Errorf("error registering model %s: %w", name, err)
	}

	var version int64
	if err := tx.Get(&version, selectNextVersionSQL, name); err != nil {
		return nil, fmt.Errorf("error selecting next version for %s: %w", name, err)
	}

	mv := &ModelVersion{
		Name:      name,
		Version:   version,
		Stage:     StageNone,
		Source:    source,
		RunID:     runID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := tx.Exec(insertModelVersionSQL, mv.Name, mv.Version, mv.Stage, mv.Source, mv.RunID, mv.CreatedAt, mv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("error inserting version %d of %s: %w", version, name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing registration of %s: %w", name, err)
	}

	slog.Debug("model version registered", "name", name, "version", version, "source", source)
	return mv, nil
}

// GetModelVersion returns a specific version of name.
func GetModelVersion(db *sqlx.DB, name string, version int64) (*ModelVersion, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	var mv ModelVersion
	if err := db.Get(&mv, selectModelVersionSQL, name, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: model %s version %d", ErrNotFound, name, version)
		}
		return nil, fmt.Errorf("error selecting model %s version %d: %w", name, version, err)
	}
	return &mv, nil
}

// GetLatestModelVersion returns the highest version of name in stage.
// An empty stage matches every stage.
func GetLatestModelVersion(db *sqlx.DB, name, stage string) (*ModelVersion, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	if stage != "" {
		var err error
		if stage, err = NormalizeStage(stage); err != nil {
			return nil, err
		}
	}

	var mv ModelVersion
	if err := db.Get(&mv, selectLatestModelVersionSQL, name, stage, stage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: model %s in stage %q", ErrNotFound, name, stage)
		}
		return nil, fmt.Errorf("error selecting latest version of %s: %w", name, err)
	}
	return &mv, nil
}

// ListModelVersions returns the versions of name, newest first.
// An empty name lists every model.
func ListModelVersions(db *sqlx.DB, name string) ([]*ModelVersion, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	list := make([]*ModelVersion, 0)
	if err := db.Select(&list, selectModelVersionsSQL, name, name); err != nil {
		return nil, fmt.Errorf("error listing versions of %q: %w", name, err)
	}
	return list, nil
}

// TransitionStage moves a version of name to stage. With archiveExisting,
// other versions currently in that stage are moved to Archived.
func TransitionStage(db *sqlx.DB, name string, version int64, stage string, archiveExisting bool) (*ModelVersion, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	stage, err := NormalizeStage(stage)
	if err != nil {
		return nil, err
	}

	if _, err := GetModelVersion(db, name, version); err != nil {
		return nil, err
	}

	tx, err := db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Unix()
	if archiveExisting && !Contains([]string{StageNone, StageArchived}, stage) {
		if _, err := tx.Exec(archiveStageSQL, StageArchived, now, name, stage, version); err != nil {
			return nil, fmt.Errorf("error archiving %s versions in %s: %w", name, stage, err)
		}
	}

	if _, err := tx.Exec(updateStageSQL, stage, now, name, version); err != nil {
		return nil, fmt.Errorf("error moving %s version %d to %s: %w", name, version, stage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing stage transition: %w", err)
	}

	slog.Debug("model version stage changed", "name", name, "version", version, "stage", stage)
	return GetModelVersion(db, name, version)
}
