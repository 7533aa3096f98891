package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"sitedrop/internal/config"
	"sitedrop/internal/history"
	"sitedrop/internal/provider"
	"sitedrop/internal/quota"
	"sitedrop/internal/server"
	"sitedrop/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	configFile string
	logFile    string
	dbPath     string
	host       string
	port       int
	testMode   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deployment gateway",
	Long: `Start the HTTP server that accepts static site uploads and forwards
them to the deployment provider.

The provider token is read from the ` + config.TokenEnvVar + ` environment variable.`,
	RunE: runServe,
}

func init() {
	// Flags for serve command
	serveCmd.Flags().StringVarP(&configFile, "config", "c", getEnvOrDefault("SITEDROP_CONFIG_FILE", ""), "Path to sitedrop.yaml configuration file")
	serveCmd.Flags().StringVar(&logFile, "log", getEnvOrDefault("SITEDROP_LOG_FILE", "./sitedrop.log"), "Path to log file")
	serveCmd.Flags().StringVar(&dbPath, "db", getEnvOrDefault("SITEDROP_DB_PATH", "./deployments.db"), "Path to SQLite database")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("SITEDROP_HOST", ""), "Host to bind to (overrides config)")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("SITEDROP_PORT", 0), "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("SITEDROP_TEST_MODE") == "1", "Enable test mode (no history, no rate limiting)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Set up logging
	logger, logFileHandle, err := setupLogging(logFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting sitedrop")

	// Load configuration: an explicit path is required to exist, the
	// default search locations are optional.
	cfg := config.Default()
	if configFile == "" {
		configFile = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths("sitedrop.yaml"))
	}
	if configFile != "" {
		logger.Info("Loading configuration", "config", configFile)
		cfg, err = config.Load(configFile)
		if err != nil {
			logger.Error("Failed to load configuration", "error", err)
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	} else {
		logger.Info("No configuration file found, using defaults")
	}

	// Flag overrides
	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	token := config.Token()
	if token == "" {
		logger.Warn("No deployment token in environment; deployments will fail until it is set",
			"env", config.TokenEnvVar)
	}

	// Quota tracker over the in-memory store
	tracker := quota.NewTracker(quota.NewMemoryStore())

	// Deployment provider client
	prov := provider.NewClient(cfg.Provider.APIURL, cfg.Provider.Domain, token)

	// Initialize history database
	var hist *history.History
	if !testMode {
		logger.Info("Initializing history database", "db", dbPath)
		hist, err = history.NewHistory(dbPath)
		if err != nil {
			logger.Error("Failed to initialize history database", "error", err)
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
		defer hist.Close()
	}

	// Create and start server
	srv := server.NewServer(tracker, prov, hist, logger, cfg.Limits.MaxUploadBytes, testMode)

	logger.Info("Starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := srv.Start(cfg.Server.Host, cfg.Server.Port); err != nil {
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	// Create log directory if needed
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// Open log file with secure permissions
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	// Create multi-writer to log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	// Create JSON handler for structured logging
	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)

	return logger, file, nil
}

// Helper functions for environment variables
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
