package cli

import (
	"errors"
	"fmt"

	"github.com/rahimizadeh/Prediction-API-with-Flask-and-MLflow/pkg/client"
	"github.com/urfave/cli/v2"
)

const (
	clientLevelDefault = 6.5
	serverNotRunning   = "Server not running!"
)

var (
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "Prediction endpoint (optional, default: " + client.DefaultURL + ")",
	}

	clientLevelFlag = &cli.Float64Flag{
		Name:  "level",
		Usage: "Position level to send",
		Value: clientLevelDefault,
	}

	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: client.DefaultTimeout,
	}

	clientCmd = &cli.Command{
		Name:   "client",
		Usage:  "Send one prediction request to a running server",
		Action: cmdClient,
		Flags: []cli.Flag{
			urlFlag,
			clientLevelFlag,
			timeoutFlag,
		},
	}
)

func cmdClient(c *cli.Context) error {
	cfg := getConfig(c)

	url := cfg.Config.Client.URL
	if c.IsSet(urlFlag.Name) || url == "" {
		url = c.String(urlFlag.Name)
	}
	timeout := cfg.Config.Client.Timeout
	if c.IsSet(timeoutFlag.Name) || timeout <= 0 {
		timeout = c.Duration(timeoutFlag.Name)
	}

	pc, err := client.New(url, timeout)
	if err != nil {
		return err
	}

	resp, err := pc.Predict(c.Context, c.Float64(clientLevelFlag.Name))
	if err != nil {
		if errors.Is(err, client.ErrServerUnreachable) {
			_, werr := fmt.Fprintln(c.App.Writer, serverNotRunning)
			return werr
		}
		return fmt.Errorf("requesting prediction from %s: %w", pc.URL(), err)
	}

	return encode(c.App.Writer, cfg.Format, resp)
}
