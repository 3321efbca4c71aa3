package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/issueflow/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	if err := cmd.LoadEnvFile(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:    "issueflow",
		Usage:   "GitHub App that turns opened issues into reviewed pull requests",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "issueflow.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.APICommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
