package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/data"
)

// LocalRegistry resolves registered models from a sqlite registry database.
type LocalRegistry struct {
	db *sqlx.DB
}

// OpenLocalRegistry initializes (if needed) and opens the registry at path.
func OpenLocalRegistry(path string) (*LocalRegistry, error) {
	if err := data.Init(path); err != nil {
		return nil, fmt.Errorf("initializing registry: %w", err)
	}
	db, err := data.GetDB(path)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	return &LocalRegistry{db: db}, nil
}

// DB returns the underlying registry database.
func (r *LocalRegistry) DB() *sqlx.DB {
	return r.db
}

func (r *LocalRegistry) Resolve(_ context.Context, u *ModelURI) (string, error) {
	if u.Kind != KindRegistered {
		return "", fmt.Errorf("%w: local registry cannot resolve %s URIs", ErrUnsupportedURI, u.Kind)
	}

	var mv *data.ModelVersion
	var err error
	switch {
	case u.Version > 0:
		mv, err = data.GetModelVersion(r.db, u.Name, u.Version)
	case u.Latest:
		mv, err = data.GetLatestModelVersion(r.db, u.Name, "")
	default:
		mv, err = data.GetLatestModelVersion(r.db, u.Name, u.Stage)
	}
	if err != nil {
		if errors.Is(err, data.ErrNotFound) {
			return "", fmt.Errorf("%w: %s: %w", ErrModelNotFound, u, err)
		}
		return "", fmt.Errorf("resolving %s: %w", u, err)
	}
	return mv.Source, nil
}

func (r *LocalRegistry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// LocalTrackingURI returns the tracking URI that selects the sqlite registry at path.
func LocalTrackingURI(path string) string {
	return sqliteScheme + path
}
