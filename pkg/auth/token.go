package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// KeyringService is the service name tokens are stored under.
	KeyringService = "predictor"
	// TokenEnvVar overrides any stored token when set.
	TokenEnvVar = "MLFLOW_TRACKING_TOKEN"
	// TokenFileName holds tokens when the OS keychain is unavailable.
	TokenFileName = "tokens.yaml"

	defaultUser = "default"
	fileMode    = 0600
)

var (
	// ErrTokenNotFound is returned when no token is stored for the tracking server.
	ErrTokenNotFound = errors.New("tracking token not found")
)

// Store keeps tracking server tokens in the OS keychain, with a file in dir as fallback.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func user(trackingURI string) string {
	if u := strings.TrimSpace(trackingURI); u != "" {
		return u
	}
	return defaultUser
}

// Save stores token for trackingURI.
func (s *Store) Save(trackingURI, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is required")
	}

	u := user(trackingURI)
	if err := keyring.Set(KeyringService, u, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return s.updateFile(func(m map[string]string) { m[u] = token })
	}

	// drop any copy left in the file by an earlier fallback
	if err := s.updateFile(func(m map[string]string) { delete(m, u) }); err != nil {
		slog.Debug("cleaning token file", "error", err)
	}

	slog.Debug("token saved", "tracking_uri", u)
	return nil
}

// Get returns the token from the environment, the keychain or the fallback file, in that order.
func (s *Store) Get(trackingURI string) (string, error) {
	if t := strings.TrimSpace(os.Getenv(TokenEnvVar)); t != "" {
		return t, nil
	}

	u := user(trackingURI)
	t, err := keyring.Get(KeyringService, u)
	if err == nil && t != "" {
		return t, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain read failed", "error", err)
	}

	m, err := s.readFile()
	if err != nil {
		return "", err
	}
	t, ok := m[u]
	if !ok || t == "" {
		return "", ErrTokenNotFound
	}

	// migrate to keychain
	if err := keyring.Set(KeyringService, u, t); err == nil {
		slog.Info("migrated token from file to OS keychain")
		if err := s.updateFile(func(m map[string]string) { delete(m, u) }); err != nil {
			slog.Debug("cleaning token file", "error", err)
		}
	}

	return t, nil
}

// Lookup is Get for callers that treat a missing token as anonymous access.
func (s *Store) Lookup(trackingURI string) string {
	t, err := s.Get(trackingURI)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			slog.Debug("token lookup failed", "error", err)
		}
		return ""
	}
	return t
}

// Delete removes the stored token from both locations. Deleting a missing token is not an error.
func (s *Store) Delete(trackingURI string) error {
	u := user(trackingURI)
	var errs []error
	if err := keyring.Delete(KeyringService, u); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		errs = append(errs, fmt.Errorf("deleting token from keychain: %w", err))
	}
	if s.dir != "" {
		if err := s.updateFile(func(m map[string]string) { delete(m, u) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) path() string {
	return filepath.Join(s.dir, TokenFileName)
}

func (s *Store) readFile() (map[string]string, error) {
	m := map[string]string{}
	if s.dir == "" {
		return m, nil
	}

	b, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("reading token file %s: %w", s.path(), err)
	}

	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing token file %s: %w", s.path(), err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func (s *Store) updateFile(fn func(map[string]string)) error {
	if s.dir == "" {
		return errors.New("token file directory not set")
	}

	m, err := s.readFile()
	if err != nil {
		return err
	}
	before := len(m)
	fn(m)

	if len(m) == 0 {
		if before == 0 {
			return nil
		}
		if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing token file %s: %w", s.path(), err)
		}
		return nil
	}

	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}
	if err := os.WriteFile(s.path(), b, fileMode); err != nil {
		return fmt.Errorf("writing token file %s: %w", s.path(), err)
	}
	return nil
}
