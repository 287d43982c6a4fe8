package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/auth"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/config"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/data"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/logging"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/registry"
	urfave "github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	appName      = "predictor"
	appConfigKey = "app-config"
	envFileName  = ".env"

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configFlag = &urfave.StringFlag{
		Name:  "config",
		Usage: "Path to the config file (optional, defaults to $HOME/.predictor/config.yaml)",
	}

	trackingURIFlag = &urfave.StringFlag{
		Name:    "tracking-uri",
		Usage:   "Model registry: http(s):// for MLflow, sqlite:///path for the local registry (optional, defaults to $HOME/.predictor/registry.db)",
		EnvVars: []string{"MLFLOW_TRACKING_URI"},
	}

	trackingTokenFlag = &urfave.StringFlag{
		Name:    "tracking-token",
		Usage:   "Bearer token for the tracking server (optional, defaults to the stored token)",
		EnvVars: []string{auth.TokenEnvVar},
	}

	modelFlag = &urfave.StringFlag{
		Name:    "model",
		Usage:   "Model URI (models:/name/version|stage|latest, runs:/id/path, or a path)",
		EnvVars: []string{"MODEL_URI"},
		Value:   config.DefaultModelURI,
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger(config.DefaultLogLevel)

	if err := config.LoadEnv(envFileName); err != nil {
		slog.Warn("env file ignored", "error", err)
	}

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	HomeDir     string
	Config      *config.Config
	TrackingURI string
	Token       string
	ModelURI    string
	Format      string
	Debug       bool
	Tokens      *auth.Store
}

func getConfig(c *urfave.Context) *appConfig {
	return c.App.Metadata[appConfigKey].(*appConfig)
}

func newApp() *urfave.App {
	return &urfave.App{
		Name:                 appName,
		Version:              fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Compiled:             time.Now(),
		EnableBashCompletion: true,
		HideHelpCommand:      true,
		Usage:                "Salary prediction service backed by an MLflow model",
		Metadata:             map[string]any{},
		Flags: []urfave.Flag{
			debugFlag,
			configFlag,
			trackingURIFlag,
			trackingTokenFlag,
			modelFlag,
			formatFlag,
		},
		Commands: []*urfave.Command{
			serveCmd,
			predictCmd,
			clientCmd,
			authCmd,
			registryCmd,
		},
		Before: before,
	}
}

func before(c *urfave.Context) error {
	home, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return fmt.Errorf("getting home dir: %w", err)
	}

	var cfg *config.Config
	if p := c.String(configFlag.Name); p != "" {
		cfg, err = config.Load(p)
	} else {
		cfg, err = config.ReadOrCreate(home)
	}
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	level := cfg.LogLevel
	if c.Bool(debugFlag.Name) {
		level = "debug"
	}
	slog.SetDefault(slog.New(logging.NewCLIHandler(c.App.ErrWriter, logging.ParseLogLevel(level))))

	ac := &appConfig{
		HomeDir:     home,
		Config:      cfg,
		TrackingURI: pick(c, trackingURIFlag.Name, cfg.TrackingURI),
		ModelURI:    pick(c, modelFlag.Name, cfg.ModelURI),
		Format:      formatJSON,
		Debug:       c.Bool(debugFlag.Name),
		Tokens:      auth.NewStore(home),
	}

	if f := c.String(formatFlag.Name); f == formatYAML || f == "yml" {
		ac.Format = formatYAML
	}

	if ac.TrackingURI == "" {
		ac.TrackingURI = registry.LocalTrackingURI(filepath.Join(home, data.DataFileName))
	}

	ac.Token = c.String(trackingTokenFlag.Name)
	if ac.Token == "" && isRemote(ac.TrackingURI) {
		ac.Token = ac.Tokens.Lookup(ac.TrackingURI)
	}

	slog.Debug("config resolved",
		"home", ac.HomeDir,
		"tracking_uri", ac.TrackingURI,
		"model", ac.ModelURI,
		"token", ac.Token != "")

	c.App.Metadata[appConfigKey] = ac
	return nil
}

// pick returns the flag value when set on the command line or in the
// environment, otherwise the config file value, otherwise the flag default.
func pick(c *urfave.Context, name, fromConfig string) string {
	if c.IsSet(name) || fromConfig == "" {
		return c.String(name)
	}
	return fromConfig
}

func isRemote(trackingURI string) bool {
	return strings.HasPrefix(trackingURI, "http://") || strings.HasPrefix(trackingURI, "https://")
}

func newLoader(ctx context.Context, cfg *appConfig) (*registry.Loader, error) {
	l, err := registry.New(ctx, registry.Options{
		TrackingURI: cfg.TrackingURI,
		Token:       cfg.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("creating model loader: %w", err)
	}
	return l, nil
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
