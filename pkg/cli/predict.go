package cli

import (
	"fmt"
	"math"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/predict"
	"github.com/urfave/cli/v2"
)

var (
	levelFlag = &cli.Float64Flag{
		Name:     "level",
		Usage:    "Position level to predict the salary for",
		Required: true,
	}

	predictCmd = &cli.Command{
		Name:   "predict",
		Usage:  "Load the model and print the predicted salary for a level",
		Action: cmdPredict,
		Flags: []cli.Flag{
			levelFlag,
		},
	}
)

func cmdPredict(c *cli.Context) error {
	cfg := getConfig(c)
	level := c.Float64(levelFlag.Name)
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return fmt.Errorf("%w: %v", predict.ErrInvalidLevel, level)
	}

	loader, err := newLoader(c.Context, cfg)
	if err != nil {
		return err
	}
	defer loader.Close()

	salary, err := predict.PredictSalary(c.Context, loader, cfg.ModelURI, level)
	if err != nil {
		return fmt.Errorf("predicting salary: %w", err)
	}

	_, err = fmt.Fprintln(c.App.Writer, predict.FormatResult(level, salary))
	return err
}
