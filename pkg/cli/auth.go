package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	tokenFlag = &cli.StringFlag{
		Name:  "token",
		Usage: "Token to store (optional, read from stdin when omitted)",
	}

	clearFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove the stored token",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the tracking server token in the OS keychain",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			tokenFlag,
			clearFlag,
		},
	}
)

func cmdAuth(c *cli.Context) error {
	cfg := getConfig(c)
	if !isRemote(cfg.TrackingURI) {
		return fmt.Errorf("auth requires an http(s) tracking URI, got %q", cfg.TrackingURI)
	}

	if c.Bool(clearFlag.Name) {
		if err := cfg.Tokens.Delete(cfg.TrackingURI); err != nil {
			return fmt.Errorf("removing token: %w", err)
		}
		_, err := fmt.Fprintln(c.App.Writer, "Token removed")
		return err
	}

	token := c.String(tokenFlag.Name)
	if token == "" {
		fmt.Fprintf(c.App.Writer, "Token for %s:\n>", cfg.TrackingURI)
		s := bufio.NewScanner(c.App.Reader)
		if !s.Scan() {
			if err := s.Err(); err != nil {
				return fmt.Errorf("reading token: %w", err)
			}
			return errors.New("no token provided")
		}
		token = strings.TrimSpace(s.Text())
	}

	if err := cfg.Tokens.Save(cfg.TrackingURI, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	_, err := fmt.Fprintln(c.App.Writer, "Token saved")
	return err
}
