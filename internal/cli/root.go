package cli

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/calebhart/simdash/internal/api"
	"github.com/calebhart/simdash/internal/config"
	"github.com/calebhart/simdash/internal/stream"
	"github.com/calebhart/simdash/internal/sync"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EngineURL  string
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the simdash CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "simdash",
		Short:         "Dashboard and CLI for a remote simulation engine",
		Long:          "simdash keeps a live local mirror of a simulation engine over SSE with polling fallback.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EngineURL, "engine-url", "", "engine base URL (overrides config and SIMDASH_ENGINE_URL)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewAdvanceCommand(opts))
	cmd.AddCommand(NewActCommand(opts))
	cmd.AddCommand(NewActorCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))

	return cmd
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	var cfg config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.LoadPath(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}
	if opts.EngineURL != "" {
		cfg.Engine.BaseURL = opts.EngineURL
	}
	return cfg, nil
}

func newLogger(opts *RootOptions, cfg config.Config) *slog.Logger {
	level := config.ParseLevel(cfg.Log.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newAPIClient(opts *RootOptions) (*api.Client, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, err
	}
	logger := newLogger(opts, cfg)
	httpClient := &http.Client{Timeout: cfg.Engine.Timeout}
	return api.NewClient(cfg.Engine.BaseURL, httpClient, logger), cfg, nil
}

func newSyncClient(opts *RootOptions) (*sync.Client, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, config.Config{}, err
	}
	logger := newLogger(opts, cfg)
	httpClient := &http.Client{Timeout: cfg.Engine.Timeout}
	engine := api.NewClient(cfg.Engine.BaseURL, httpClient, logger)
	// Streaming requests stay open indefinitely, so no client timeout.
	streams := stream.NewSubscriber(cfg.Engine.BaseURL, &http.Client{}, logger)

	client := sync.NewClient(engine, sync.NewStreamOpener(streams), sync.Options{
		PollInterval: cfg.Sync.PollInterval,
		Backoff:      sync.Backoff{Base: cfg.Sync.BackoffBase, Max: cfg.Sync.BackoffMax},
		Logger:       logger,
	})
	return client, cfg, nil
}
