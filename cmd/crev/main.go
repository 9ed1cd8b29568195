package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"crev/internal/client"
	"crev/internal/config"
	"crev/internal/index"
	"crev/internal/logging"
	"crev/internal/ratelimit"
	"crev/internal/review"
	"crev/internal/session"
)

var (
	version  = "0.1.0"
	model    string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "crev",
	Short: "LLM code review driven by codebase navigation",
	Long: `Crev reviews code changes with an LLM that explores your codebase
through navigation tools: it reads files, looks up symbols, and traces
usages before writing its review. Exploration is bounded, sessions
persist across iterations, and the index stays local.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crev version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if model != "" {
		cfg.Model.Name = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Configure(logging.ParseLevel(cfg.Logging.Level), os.Stderr)
	return cfg, nil
}

func resolveRoot(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", root)
	}
	return root, nil
}

func buildIndex(ctx context.Context, cfg *config.Config, root string) (*index.Builder, *index.Index, error) {
	builder := index.NewBuilder(root, cfg.Index.IgnorePatterns)
	idx, err := builder.Build(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("indexing %s: %w", root, err)
	}
	logging.Info("index built",
		"files", idx.Stats.TotalFiles,
		"symbols", idx.Stats.TotalSymbols,
		"duration", idx.Stats.BuildTime.String(),
	)
	return builder, idx, nil
}

func newRunner(ctx context.Context, cfg *config.Config) (*review.Runner, *session.Store, client.Client, error) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Enabled:     cfg.RateLimit.Enabled,
		Tier:        cfg.RateLimit.Tier,
		WaitCeiling: cfg.RateLimit.WaitCeiling,
		Overrides:   cfg.RateLimit.Overrides,
	})
	cl, err := client.New(ctx, cfg, limiter)
	if err != nil {
		return nil, nil, nil, err
	}
	store := session.NewStore(cfg.SessionDir())
	runner := review.NewRunner(cl, store, cfg.Review, cfg.Session.MaxHistory)
	return runner, store, cl, nil
}
