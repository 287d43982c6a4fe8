package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/model"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/net"
)

const (
	sqliteScheme = "sqlite:///"
)

// Resolver maps a model URI to the location of its artifact directory.
type Resolver interface {
	Resolve(ctx context.Context, u *ModelURI) (string, error)
}

// Options configure a Loader.
type Options struct {
	// TrackingURI selects the backend: http(s):// for MLflow, sqlite:/// for
	// the local registry, empty for file URIs only.
	TrackingURI string
	// Token is sent as a bearer token to the tracking server.
	Token string
	// Client is the base HTTP client.
	Client *http.Client
}

// Loader loads models by URI.
type Loader struct {
	resolver Resolver
	mlflow   *MLflowClient
	local    *LocalRegistry
	client   *http.Client
}

// New creates a loader for the backend named by opts.TrackingURI.
func New(ctx context.Context, opts Options) (*Loader, error) {
	base := opts.Client
	if base == nil {
		var err error
		if base, err = net.GetHTTPClient(); err != nil {
			return nil, fmt.Errorf("creating http client: %w", err)
		}
	}

	l := &Loader{client: net.GetOAuthClient(ctx, opts.Token, base)}

	uri := strings.TrimSpace(opts.TrackingURI)
	switch {
	case uri == "":
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		l.mlflow = NewMLflowClient(uri, l.client)
		l.resolver = l.mlflow
	case strings.HasPrefix(uri, sqliteScheme):
		path := strings.TrimPrefix(uri, sqliteScheme)
		if path == "" {
			return nil, fmt.Errorf("%w: %s: missing database path", ErrUnsupportedURI, uri)
		}
		local, err := OpenLocalRegistry(path)
		if err != nil {
			return nil, err
		}
		l.local = local
		l.resolver = local
	default:
		return nil, fmt.Errorf("%w: tracking URI %s", ErrUnsupportedURI, uri)
	}

	return l, nil
}

// NewWithResolver creates a loader with a custom resolver.
func NewWithResolver(r Resolver, client *http.Client) *Loader {
	return &Loader{resolver: r, client: client}
}

// Local returns the local registry, or nil when the loader is not backed by one.
func (l *Loader) Local() *LocalRegistry {
	return l.local
}

// LoadModel resolves uri and loads the forest artifact it points at.
func (l *Loader) LoadModel(ctx context.Context, uri string) (model.Model, error) {
	u, err := ParseModelURI(uri)
	if err != nil {
		return nil, err
	}

	location := u.Path
	if u.Kind != KindFile {
		if l.resolver == nil {
			return nil, fmt.Errorf("%w: %s requires a tracking URI", ErrUnsupportedURI, u)
		}
		if location, err = l.resolver.Resolve(ctx, u); err != nil {
			return nil, err
		}
	}
	slog.Debug("model resolved", "uri", uri, "location", location)

	r, err := l.open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("opening artifact for %s: %w", u, err)
	}
	defer r.Close()

	m, err := model.Load(r)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", u, err)
	}

	slog.Debug("model loaded", "uri", uri, "kind", m.Kind(), "trees", m.NumTrees())
	return m, nil
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(location, "mlflow-artifacts:"):
		if l.mlflow == nil {
			return nil, fmt.Errorf("%w: %s requires an MLflow tracking URI", ErrUnsupportedURI, location)
		}
		return l.openURL(ctx, artifactFileURL(l.mlflow.ArtifactURL(location)))
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return l.openURL(ctx, artifactFileURL(location))
	case strings.HasPrefix(location, schemeFile):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedURI, location, err)
		}
		return openFile(u.Path)
	case strings.Contains(location, ":/"):
		return nil, fmt.Errorf("%w: artifact location %s", ErrUnsupportedURI, location)
	default:
		return openFile(location)
	}
}

func (l *Loader) openURL(ctx context.Context, u string) (io.ReadCloser, error) {
	r, err := net.Open(ctx, l.client, u)
	if err != nil {
		if errors.Is(err, net.ErrorURLNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrModelNotFound, err)
		}
		return nil, err
	}
	return r, nil
}

func artifactFileURL(u string) string {
	if strings.HasSuffix(u, ".json") {
		return u
	}
	return strings.TrimRight(u, "/") + "/" + model.ArtifactFileName
}

// openFile accepts either the artifact file or the directory holding it.
func openFile(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, model.ArtifactFileName)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	return f, nil
}

// Close releases the local registry database, if any.
func (l *Loader) Close() error {
	if l.local != nil {
		return l.local.Close()
	}
	return nil
}
