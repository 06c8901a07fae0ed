package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/coverly/internal/config"
	"github.com/ifuryst/coverly/internal/server"
	"github.com/ifuryst/coverly/internal/service"
	"github.com/ifuryst/coverly/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "coverly",
	Short: "Coverly - AI featured image generation",
	Long:  `Coverly generates featured images for articles with Gemini, through a prioritized queue or on demand.`,
	RunE:  runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and scheduler",
	RunE:  runServer,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one queue batch and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svcs *server.Services, _ *zap.Logger) error {
			result, err := svcs.Batch.RunOnce(ctx)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var cleanupLogsCmd = &cobra.Command{
	Use:   "cleanup-logs",
	Short: "Delete generation logs past the retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svcs *server.Services, _ *zap.Logger) error {
			deleted, err := svcs.LogCleaner.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d log entries\n", deleted)
			return nil
		})
	},
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Verify the Gemini API key by generating a test image",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(cmd.Context(), func(ctx context.Context, svcs *server.Services, _ *zap.Logger) error {
			if err := svcs.Engine.TestConnection(ctx); err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			fmt.Println("Connection successful")
			return nil
		})
	},
}

var totpSetupCmd = &cobra.Command{
	Use:   "totp-setup [account]",
	Short: "Generate a TOTP secret for dashboard login",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		account := "admin"
		if len(args) == 1 {
			account = args[0]
		}
		cfg, appLogger, err := loadConfig()
		if err != nil {
			return err
		}
		defer appLogger.Sync()

		// secrets may not exist yet, so build the service with auth off
		authCfg := cfg.Auth
		authCfg.Enabled = false
		auth, err := service.NewAuthService(authCfg, appLogger)
		if err != nil {
			return err
		}
		secret, url, err := auth.GenerateSecret(account)
		if err != nil {
			return err
		}
		fmt.Printf("Secret: %s\nURL:    %s\n", secret, url)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Coverly %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, processCmd, cleanupLogsCmd, testConnectionCmd, totpSetupCmd, versionCmd)
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}

func withServices(ctx context.Context, fn func(context.Context, *server.Services, *zap.Logger) error) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	svcs, err := server.NewServices(cfg, appLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svcs.Close(); err != nil {
			appLogger.Warn("Failed to close services", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return fn(ctx, svcs, appLogger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServer(*cobra.Command, []string) error {
	cfg, appLogger, err := loadConfig()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Coverly server", zap.String("version", version))

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil {
			appLogger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		appLogger.Info("Shutting down server...")
	case <-ctx.Done():
		appLogger.Info("Server context cancelled")
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	appLogger.Info("Server exited")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
