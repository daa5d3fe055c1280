package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custody/pkg/config"
	"custody/pkg/fetch"
	"custody/pkg/server"
	"custody/pkg/utils"
	"custody/pkg/verifier"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "0.3.0"

var (
	configFile string
	serverURL  string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "custody",
		Short: "Proof-of-custody storage verification service",
		Long: `Custody lets a verifier confirm that a remote storage provider still
holds a specific file without retrieving it: owners register chunk-hash or
Merkle commitments, the verifier issues random chunk challenges, and
providers answer with the raw sampled bytes.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "custody server URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		serveCmd(),
		commitCmd(),
		challengeCmd(),
		proveCmd(),
		ingestCmd(),
		statusCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification server",
		Long:  `Start the HTTP façade over the verification engine with a periodic cleanup loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}

			engine := verifier.NewWithConfig(verifier.RateLimitConfig{
				MaxRequestsPerMinute: cfg.Engine.MaxRequestsPerMinute,
				MaxRequestsPerHour:   cfg.Engine.MaxRequestsPerHour,
				CleanupInterval:      cfg.Engine.CleanupInterval,
			}, logger)

			fetcher := fetch.NewFetcher(cfg.Fetch, logger)
			srv := server.New(engine, fetcher, cfg.Server, logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go cleanupLoop(ctx, engine, cfg.Engine.CleanupInterval, logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("shutting down", zap.String("signal", sig.String()))
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "listen address (overrides config)")
	return cmd
}

func ingestCmd() *cobra.Command {
	var chunkSize string

	cmd := &cobra.Command{
		Use:   "ingest <content-id>",
		Short: "Have the server fetch content from a gateway and register its commitments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := utils.ParseChunkSize(chunkSize)
			if err != nil {
				return err
			}

			var resp struct {
				FileID string `json:"file_id"`
				Chunks uint64 `json:"chunks"`
			}
			err = postJSON("/v1/ingest", map[string]interface{}{
				"content_id": args[0],
				"chunk_size": size,
			}, &resp)
			if err != nil {
				return err
			}

			fmt.Printf("Ingested %s: %d chunks registered\n", resp.FileID, resp.Chunks)
			return nil
		},
	}

	cmd.Flags().StringVar(&chunkSize, "chunk-size", "", "chunk size, e.g. 4KB (empty = default)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("custody %s\n", version)
		},
	}
}

func cleanupLoop(ctx context.Context, engine *verifier.StorageVerifier, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.CleanupExpired()
			logger.Debug("cleanup pass complete")
		}
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadFromEnv(), nil
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := config.Build()
	return logger
}
