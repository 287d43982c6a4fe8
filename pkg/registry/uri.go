package registry

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/data"
)

const (
	schemeModels = "models:/"
	schemeRuns   = "runs:/"
	schemeFile   = "file://"

	refLatest = "latest"
)

var (
	// ErrUnsupportedURI is returned for model or tracking URIs no backend can serve.
	ErrUnsupportedURI = errors.New("unsupported URI")

	// ErrModelNotFound is returned when the registry has no matching model version.
	ErrModelNotFound = errors.New("model not found")
)

// Kind is the addressing form of a model URI.
type Kind int

const (
	KindFile Kind = iota
	KindRegistered
	KindRun
)

func (k Kind) String() string {
	switch k {
	case KindRegistered:
		return "registered"
	case KindRun:
		return "run"
	default:
		return "file"
	}
}

// ModelURI is a parsed model identifier.
type ModelURI struct {
	Raw  string
	Kind Kind

	// registered models: exactly one of Version, Stage or Latest is set
	Name    string
	Version int64
	Stage   string
	Latest  bool

	// runs
	RunID string

	// artifact path within a run, or the filesystem path for file URIs
	Path string
}

// ParseModelURI parses models:/, runs:/, file:// and plain path identifiers.
func ParseModelURI(s string) (*ModelURI, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, errors.New("model URI is required")
	}

	switch {
	case strings.HasPrefix(raw, schemeModels):
		return parseRegistered(raw)
	case strings.HasPrefix(raw, schemeRuns):
		return parseRun(raw)
	case strings.HasPrefix(raw, schemeFile):
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedURI, raw, err)
		}
		if u.Path == "" {
			return nil, fmt.Errorf("%w: %s: empty path", ErrUnsupportedURI, raw)
		}
		return &ModelURI{Raw: raw, Kind: KindFile, Path: u.Path}, nil
	case strings.Contains(raw, ":/"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedURI, raw)
	default:
		return &ModelURI{Raw: raw, Kind: KindFile, Path: raw}, nil
	}
}

func parseRegistered(raw string) (*ModelURI, error) {
	parts := strings.Split(strings.TrimPrefix(raw, schemeModels), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %s: expected models:/<name>/<version|stage>", ErrUnsupportedURI, raw)
	}

	u := &ModelURI{Raw: raw, Kind: KindRegistered, Name: parts[0]}
	ref := parts[1]

	if strings.EqualFold(ref, refLatest) {
		u.Latest = true
		return u, nil
	}

	if v, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if v < 1 {
			return nil, fmt.Errorf("%w: %s: version must be positive", ErrUnsupportedURI, raw)
		}
		u.Version = v
		return u, nil
	}

	stage, err := data.NormalizeStage(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedURI, raw, err)
	}
	u.Stage = stage
	return u, nil
}

func parseRun(raw string) (*ModelURI, error) {
	rest := strings.TrimPrefix(raw, schemeRuns)
	runID, path, _ := strings.Cut(rest, "/")
	if runID == "" {
		return nil, fmt.Errorf("%w: %s: expected runs:/<run_id>/<path>", ErrUnsupportedURI, raw)
	}
	return &ModelURI{Raw: raw, Kind: KindRun, RunID: runID, Path: strings.Trim(path, "/")}, nil
}

func (u *ModelURI) String() string {
	return u.Raw
}

func joinLocation(base, p string) string {
	if p == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}
