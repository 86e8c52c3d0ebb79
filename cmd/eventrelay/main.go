package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/internal/pipeline"
	"github.com/eventrelay/eventrelay/pkg/clients"
	"github.com/eventrelay/eventrelay/pkg/config"
	"github.com/eventrelay/eventrelay/pkg/logger"
	"github.com/eventrelay/eventrelay/pkg/observability"
	"github.com/eventrelay/eventrelay/pkg/secrets"
	"github.com/eventrelay/eventrelay/pkg/sink"
	"github.com/eventrelay/eventrelay/pkg/source"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "eventrelay",
		Short: "eventrelay - checkpointed analytics event exporter",
		Long: `eventrelay periodically exports newly-arrived rows from an analytics
query endpoint to a downstream tracking-event ingestion API, chunking
deliveries under the API's payload limits and advancing a persisted
watermark only after every chunk has been accepted.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("eventrelay v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newRunCommand())
	root.AddCommand(newWatermarkCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRunCommand builds the main export command. The process exits zero on
// a completed run, including a no-new-data run, and non-zero on any
// unrecovered failure.
func newRunCommand() *cobra.Command {
	var configFile string
	var logLevel string
	var dev, trace bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one export run",
		Long: `Execute a single export run: read rows newer than the stored
watermark, deliver them as size-bounded chunks, and advance the watermark.
Invoke from a scheduler that guarantees runs do not overlap.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, logLevel)
			if err != nil {
				return err
			}

			if err := logger.Init(logger.Config{
				Level:       cfg.Log.Level,
				Development: dev,
				Encoding:    encodingFor(dev),
			}); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := observability.Init(observability.Config{Enabled: trace}); err != nil {
				return err
			}

			return runExport(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file (optional; env vars override)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Human-readable console logging")
	cmd.Flags().BoolVar(&trace, "trace", false, "Emit OpenTelemetry spans to stdout")

	return cmd
}

// runExport wires the collaborators and executes one run.
func runExport(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := secrets.NewManager(ctx, cfg.ProjectID, log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	httpClient := clients.NewHTTPClient(clients.DefaultHTTPConfig(), log)
	defer func() { _ = httpClient.Close() }()

	src := source.New(source.Config{
		APIRoot:  cfg.Source.APIRoot,
		Endpoint: cfg.Source.Endpoint,
		RowLimit: cfg.Source.RowLimit,
	}, httpClient, log)

	dst := sink.New(sink.Config{
		Endpoint: cfg.Sink.Endpoint,
	}, httpClient, log)

	runner := pipeline.NewRunner(cfg, store, src, dst, log)

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	log.Info("export finished",
		zap.String("run_id", result.RunID),
		zap.String("state", string(result.State)),
		zap.Int("rows_read", result.RowsRead),
		zap.Int("chunks_delivered", result.ChunksDelivered))

	if err := observability.Shutdown(ctx); err != nil {
		log.Warn("failed to flush traces", zap.Error(err))
	}
	return nil
}

// newWatermarkCommand builds maintenance subcommands for inspecting and
// re-priming the stored watermark.
func newWatermarkCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or set the stored export watermark",
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to YAML config file (optional)")

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current watermark",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, store, err := watermarkStore(c.Context(), configFile)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			value, err := store.Get(c.Context(), cfg.Secrets.Watermark)
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Append a new watermark version",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, store, err := watermarkStore(c.Context(), configFile)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Set(c.Context(), cfg.Secrets.Watermark, args[0]); err != nil {
				return err
			}
			fmt.Printf("watermark set to %s\n", args[0])
			return nil
		},
	})

	return cmd
}

// watermarkStore resolves config and opens the secret store for the
// watermark subcommands.
func watermarkStore(ctx context.Context, configFile string) (*config.Config, *secrets.Manager, error) {
	cfg, err := loadConfig(configFile, "")
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Init(logger.Config{Level: "warn", Encoding: "console"}); err != nil {
		return nil, nil, err
	}

	store, err := secrets.NewManager(ctx, cfg.ProjectID, logger.Get())
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// loadConfig resolves and validates configuration for a command.
func loadConfig(configFile, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// encodingFor picks the log encoding for the run mode.
func encodingFor(dev bool) string {
	if dev {
		return "console"
	}
	return "json"
}
