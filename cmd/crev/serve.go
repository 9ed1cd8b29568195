package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crev/internal/logging"
	"crev/internal/service"
	"crev/internal/watcher"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [project-dir]",
	Short: "Run the review service over HTTP",
	Long: `Serve reviews for the project over a local HTTP API.

The service builds the index once, keeps it fresh through a file
watcher, and accepts review requests on POST /review. Sessions and
index stats are exposed under /sessions and /index.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Service.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	if cfg.Logging.Dir != "" {
		if err := logging.EnableFileLogging(cfg.Logging.Dir, logging.ParseLevel(cfg.Logging.Level)); err != nil {
			return err
		}
		defer logging.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder, idx, err := buildIndex(ctx, cfg, root)
	if err != nil {
		return err
	}
	runner, store, cl, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer cl.Close()

	srv := service.NewServer(cfg.Service, root, runner, store, builder, idx, version)

	w, err := watcher.New(root, cfg.Watcher)
	if err != nil {
		return err
	}
	w.SetOnBatch(func(paths []string) {
		if err := srv.Refresh(context.Background(), paths); err != nil {
			logging.Warn("index refresh failed", "error", err)
		}
	})
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	return srv.Shutdown(context.Background())
}
