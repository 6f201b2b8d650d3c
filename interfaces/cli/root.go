// Package cli implements canvasctl, a terminal client that drives the
// canvas engine in-process.
package cli

import (
	"context"
	"fmt"
	"io"

	"canvas-backend/infrastructure/config"
	"canvas-backend/infrastructure/di"

	"github.com/spf13/cobra"
)

var version = "0.3.0"

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	offline   bool
	followUps int
	verbose   bool
}

// loadConfig is replaced in tests
var loadConfig = config.LoadConfig

// NewRootCommand builds the canvasctl command tree writing to out
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "canvasctl",
		Short: "Explore a question canvas from the terminal",
		Long: Brand.Sprint("canvasctl") + " asks questions, expands follow-ups and prints the resulting canvas\n" +
			Subtle.Sprint("Storage and generation provider come from the same environment as the API server"),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.offline, "offline", false, "use in-memory storage and the static generator")
	flags.IntVar(&opts.followUps, "follow-ups", 0, "follow-ups per answer for the static generator (0 keeps the configured value)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		askCmd(opts),
		layoutCmd(),
		listCmd(opts),
		showCmd(opts),
	)
	return root
}

// Execute runs canvasctl and reports errors on out
func Execute(ctx context.Context, out io.Writer, args []string) int {
	root := NewRootCommand(out)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(out, Bad.Sprintf("canvasctl: %v", err))
		return 1
	}
	return 0
}

// buildConfig loads the environment configuration and applies the CLI overrides
func buildConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// a one-shot process has no scrape endpoint, no watcher and no listeners
	cfg.EnableMetrics = false
	cfg.EnableTracing = false
	cfg.EnableCloudWatch = false
	cfg.EnableEvents = false
	cfg.WatchLayout = false
	cfg.EnableStream = false
	cfg.LogLevel = "error"
	if opts.verbose {
		cfg.LogLevel = "debug"
	}

	if opts.offline {
		cfg.Storage = config.StorageMemory
		cfg.Generation.Provider = "static"
	}
	if opts.followUps > 0 {
		cfg.Generation.StaticFollowUps = opts.followUps
	}
	return cfg, cfg.Validate()
}

// withContainer builds the dependency container, runs fn and shuts it down
func withContainer(ctx context.Context, opts *globalOptions, fn func(*di.Container) error) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		_ = container.Shutdown(context.WithoutCancel(ctx))
		_ = container.Logger.Sync()
	}()

	return fn(container)
}
