package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/net"
)

const (
	apiPrefix = "/api/2.0/mlflow"

	getModelVersionPath   = apiPrefix + "/model-versions/get"
	getDownloadURIPath    = apiPrefix + "/model-versions/get-download-uri"
	getLatestVersionsPath = apiPrefix + "/registered-models/get-latest-versions"
	getRunPath            = apiPrefix + "/runs/get"
	artifactsPath         = "/api/2.0/mlflow-artifacts/artifacts/"

	errorCodeNotFound = "RESOURCE_DOES_NOT_EXIST"
)

// MLflowModelVersion is the model version object of the MLflow REST API.
type MLflowModelVersion struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	CurrentStage string `json:"current_stage"`
	Source       string `json:"source"`
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
}

type modelVersionResponse struct {
	ModelVersion *MLflowModelVersion `json:"model_version"`
}

type latestVersionsRequest struct {
	Name   string   `json:"name"`
	Stages []string `json:"stages,omitempty"`
}

type latestVersionsResponse struct {
	ModelVersions []*MLflowModelVersion `json:"model_versions"`
}

type downloadURIResponse struct {
	ArtifactURI string `json:"artifact_uri"`
}

type runResponse struct {
	Run struct {
		Info struct {
			RunID       string `json:"run_id"`
			ArtifactURI string `json:"artifact_uri"`
		} `json:"info"`
	} `json:"run"`
}

// MLflowClient resolves models against an MLflow tracking server.
type MLflowClient struct {
	baseURL string
	client  *http.Client
}

func NewMLflowClient(baseURL string, client *http.Client) *MLflowClient {
	return &MLflowClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// GetModelVersion returns a specific version of a registered model.
func (c *MLflowClient) GetModelVersion(ctx context.Context, name string, version int64) (*MLflowModelVersion, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("version", strconv.FormatInt(version, 10))

	var resp modelVersionResponse
	if err := net.GetJSON(ctx, c.client, c.url(getModelVersionPath, q), &resp); err != nil {
		return nil, mapError(err, fmt.Sprintf("model %s version %d", name, version))
	}
	if resp.ModelVersion == nil {
		return nil, fmt.Errorf("%w: model %s version %d", ErrModelNotFound, name, version)
	}
	return resp.ModelVersion, nil
}

// GetLatestVersions returns the latest version per stage. No stages means all stages.
func (c *MLflowClient) GetLatestVersions(ctx context.Context, name string, stages []string) ([]*MLflowModelVersion, error) {
	var resp latestVersionsResponse
	req := latestVersionsRequest{Name: name, Stages: stages}
	if err := net.PostJSON(ctx, c.client, c.url(getLatestVersionsPath, nil), req, &resp); err != nil {
		return nil, mapError(err, fmt.Sprintf("model %s", name))
	}
	return resp.ModelVersions, nil
}

// GetDownloadURI returns the artifact location of a model version.
func (c *MLflowClient) GetDownloadURI(ctx context.Context, name, version string) (string, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("version", version)

	var resp downloadURIResponse
	if err := net.GetJSON(ctx, c.client, c.url(getDownloadURIPath, q), &resp); err != nil {
		return "", mapError(err, fmt.Sprintf("model %s version %s", name, version))
	}
	if resp.ArtifactURI == "" {
		return "", fmt.Errorf("empty artifact URI for model %s version %s", name, version)
	}
	return resp.ArtifactURI, nil
}

// GetRunArtifactURI returns the artifact root of a run.
func (c *MLflowClient) GetRunArtifactURI(ctx context.Context, runID string) (string, error) {
	q := url.Values{}
	q.Set("run_id", runID)

	var resp runResponse
	if err := net.GetJSON(ctx, c.client, c.url(getRunPath, q), &resp); err != nil {
		return "", mapError(err, fmt.Sprintf("run %s", runID))
	}
	if resp.Run.Info.ArtifactURI == "" {
		return "", fmt.Errorf("empty artifact URI for run %s", runID)
	}
	return resp.Run.Info.ArtifactURI, nil
}

// Resolve returns the artifact location of u.
func (c *MLflowClient) Resolve(ctx context.Context, u *ModelURI) (string, error) {
	switch u.Kind {
	case KindRun:
		root, err := c.GetRunArtifactURI(ctx, u.RunID)
		if err != nil {
			return "", err
		}
		return joinLocation(root, u.Path), nil
	case KindRegistered:
		mv, err := c.resolveVersion(ctx, u)
		if err != nil {
			return "", err
		}
		return c.GetDownloadURI(ctx, mv.Name, mv.Version)
	default:
		return "", fmt.Errorf("%w: %s is not a registry URI", ErrUnsupportedURI, u)
	}
}

func (c *MLflowClient) resolveVersion(ctx context.Context, u *ModelURI) (*MLflowModelVersion, error) {
	if u.Version > 0 {
		return c.GetModelVersion(ctx, u.Name, u.Version)
	}

	var stages []string
	if !u.Latest {
		stages = []string{u.Stage}
	}

	list, err := c.GetLatestVersions(ctx, u.Name, stages)
	if err != nil {
		return nil, err
	}

	var best *MLflowModelVersion
	var bestVersion int64
	for _, mv := range list {
		v, err := strconv.ParseInt(mv.Version, 10, 64)
		if err != nil {
			continue
		}
		if best == nil || v > bestVersion {
			best, bestVersion = mv, v
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no versions of %s in %s", ErrModelNotFound, u.Name, describeRef(u))
	}
	return best, nil
}

// ArtifactURL maps an mlflow-artifacts location to the tracking server proxy URL.
func (c *MLflowClient) ArtifactURL(location string) string {
	p := strings.TrimPrefix(location, "mlflow-artifacts:")
	if strings.HasPrefix(p, "//") {
		// mlflow-artifacts://host:port/path carries its own authority
		if _, rest, ok := strings.Cut(strings.TrimPrefix(p, "//"), "/"); ok {
			p = rest
		} else {
			p = ""
		}
	}
	return c.baseURL + artifactsPath + strings.TrimLeft(p, "/")
}

func (c *MLflowClient) url(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func mapError(err error, what string) error {
	var se *net.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusNotFound || strings.Contains(se.Body, errorCodeNotFound) {
			return fmt.Errorf("%w: %s: %s", ErrModelNotFound, what, se.Body)
		}
	}
	return fmt.Errorf("error querying tracking server for %s: %w", what, err)
}

func describeRef(u *ModelURI) string {
	if u.Latest {
		return "any stage"
	}
	return "stage " + u.Stage
}
