package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/issueflow/internal/agents"
	"github.com/issueflow/internal/api"
	"github.com/issueflow/internal/config"
	"github.com/issueflow/internal/platform/github"
	"github.com/issueflow/internal/store"
	"github.com/issueflow/internal/workflow"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the IssueFlow API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides the config file)",
			},
		},
		Action: runAPI,
	}
}

func runAPI(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	auth, err := github.NewAppAuth(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyPath, cfg.GitHub.APIBaseURL)
	if err != nil {
		return fmt.Errorf("github app auth: %w", err)
	}
	platform := github.NewClient(auth, cfg.GitHub.APIBaseURL)

	connector, err := agents.NewConnector(context.Background(), agents.ConnectorOptions{
		Provider:     agents.Provider(cfg.Agent.Provider),
		APIKey:       cfg.Agent.APIKey,
		YandexFolder: cfg.Agent.YandexFolder,
		ModelConfig: agents.ModelConfig{
			Model:       cfg.Agent.Model,
			Temperature: cfg.Agent.Temperature,
			MaxTokens:   cfg.Agent.MaxTokens,
		},
	})
	if err != nil {
		return fmt.Errorf("agent connector: %w", err)
	}

	var (
		events   *store.EventsRepo
		recorder workflow.Recorder
	)
	if cfg.Database.URL != "" {
		db, err := store.Open(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		repo := store.NewEventsRepo(db)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("database schema: %w", err)
		}
		events = repo
		recorder = repo
	}

	orchestrator := workflow.NewOrchestrator(
		platform,
		agents.NewCoder(connector),
		agents.NewReviewer(connector),
		workflow.NewTracker(),
		recorder,
		cfg.Workflow.MaxIterations,
	)

	handler := api.NewWebhookHandler(
		cfg.GitHub.WebhookSecret,
		orchestrator,
		platform,
		events,
		time.Duration(cfg.Workflow.TimeoutSeconds)*time.Second,
	)

	fmt.Printf("Starting IssueFlow API server on port %d...\n", cfg.Server.Port)

	server := api.NewServer(cfg.Server.Port, handler)
	return server.Start()
}
