package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/data"
	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/registry"
	"github.com/urfave/cli/v2"
)

var (
	modelNameFlag = &cli.StringFlag{
		Name:     "name",
		Usage:    "Registered model name",
		Required: true,
	}

	listNameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Registered model name (optional, default: all models)",
	}

	sourceFlag = &cli.StringFlag{
		Name:     "source",
		Usage:    "Artifact location (directory or model.json path, http(s) URL)",
		Required: true,
	}

	runIDFlag = &cli.StringFlag{
		Name:  "run-id",
		Usage: "Run that produced the artifact (optional)",
	}

	versionFlag = &cli.Int64Flag{
		Name:     "version",
		Usage:    "Model version",
		Required: true,
	}

	stageFlag = &cli.StringFlag{
		Name:     "stage",
		Usage:    "Target stage [None, Staging, Production, Archived]",
		Required: true,
	}

	archiveExistingFlag = &cli.BoolFlag{
		Name:  "archive-existing",
		Usage: "Archive other versions currently in the target stage",
	}

	registryCmd = &cli.Command{
		Name:            "registry",
		HideHelpCommand: true,
		Usage:           "Manage models in the local sqlite registry",
		Subcommands: []*cli.Command{
			{
				Name:   "register",
				Usage:  "Register a new version of a model",
				Action: cmdRegister,
				Flags: []cli.Flag{
					modelNameFlag,
					sourceFlag,
					runIDFlag,
				},
			},
			{
				Name:   "stage",
				Usage:  "Move a model version to a stage",
				Action: cmdStage,
				Flags: []cli.Flag{
					modelNameFlag,
					versionFlag,
					stageFlag,
					archiveExistingFlag,
				},
			},
			{
				Name:   "list",
				Usage:  "List registered model versions",
				Action: cmdList,
				Flags: []cli.Flag{
					listNameFlag,
				},
			},
		},
	}
)

func withLocalRegistry(c *cli.Context, fn func(l *registry.Loader, r *registry.LocalRegistry) (any, error)) error {
	cfg := getConfig(c)

	loader, err := newLoader(c.Context, cfg)
	if err != nil {
		return err
	}
	defer loader.Close()

	local := loader.Local()
	if local == nil {
		return fmt.Errorf("registry commands require a sqlite:/// tracking URI, got %q", cfg.TrackingURI)
	}

	v, err := fn(loader, local)
	if err != nil {
		return err
	}
	return encode(c.App.Writer, cfg.Format, v)
}

func cmdRegister(c *cli.Context) error {
	return withLocalRegistry(c, func(l *registry.Loader, r *registry.LocalRegistry) (any, error) {
		source := c.String(sourceFlag.Name)
		if !strings.Contains(source, ":/") {
			abs, err := filepath.Abs(source)
			if err != nil {
				return nil, fmt.Errorf("resolving source path %s: %w", source, err)
			}
			source = abs

			// local artifacts are checked now, remote ones when they are served
			if _, err := l.LoadModel(c.Context, source); err != nil {
				return nil, fmt.Errorf("validating artifact %s: %w", source, err)
			}
		}

		mv, err := data.RegisterModelVersion(r.DB(),
			c.String(modelNameFlag.Name),
			source,
			c.String(runIDFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("registering model: %w", err)
		}
		return mv, nil
	})
}

func cmdStage(c *cli.Context) error {
	return withLocalRegistry(c, func(_ *registry.Loader, r *registry.LocalRegistry) (any, error) {
		mv, err := data.TransitionStage(r.DB(),
			c.String(modelNameFlag.Name),
			c.Int64(versionFlag.Name),
			c.String(stageFlag.Name),
			c.Bool(archiveExistingFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("changing stage: %w", err)
		}
		return mv, nil
	})
}

func cmdList(c *cli.Context) error {
	return withLocalRegistry(c, func(_ *registry.Loader, r *registry.LocalRegistry) (any, error) {
		list, err := data.ListModelVersions(r.DB(), c.String(listNameFlag.Name))
		if err != nil {
			return nil, fmt.Errorf("listing models: %w", err)
		}
		return list, nil
	})
}
