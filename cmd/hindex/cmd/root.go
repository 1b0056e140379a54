// Package cmd provides the CLI commands for hindex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reelpipe/hindex/internal/config"
	"github.com/reelpipe/hindex/internal/embed"
	"github.com/reelpipe/hindex/internal/logging"
	"github.com/reelpipe/hindex/internal/profiling"
	"github.com/reelpipe/hindex/internal/vector"
	"github.com/reelpipe/hindex/pkg/version"
)

var (
	configPath string
	debugMode  bool

	loggingCleanup func()
	profSession    profiling.Session
)

// NewRootCmd creates the root command for the hindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hindex",
		Short: "Index documents into Qdrant for retrieval",
		Long: `hindex chunks a directory of documents (markdown, plain text, CSV,
JSON), embeds the chunks with an OpenAI-compatible model, and upserts
them into a Qdrant collection.

Run 'hindex index' to build the collection, 'hindex query' to search it,
and 'hindex serve' to expose retrieval over HTTP.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("hindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: .hindex.yaml discovery)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to "+logging.DefaultLogDir())

	cmd.PersistentFlags().StringVar(&profSession.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profSession.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profSession.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRunE = teardownRun

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// setupRun installs the default slog logger and starts any requested
// profiling before a command runs. Commands that load config may re-level
// the logger from the config file.
func setupRun(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup

	if debugMode {
		slog.Debug("debug_logging_enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profSession.Active() {
		if err := profSession.Start(); err != nil {
			return err
		}
	}
	return nil
}

func teardownRun(_ *cobra.Command, _ []string) error {
	if err := profSession.Stop(); err != nil {
		return err
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig resolves configuration for a command: an explicit --config
// file when given, otherwise the discovery chain rooted at the working
// directory. Logging is re-leveled from the config unless --debug already
// forced debug output.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	if !debugMode && (cfg.Logging.Level != "" || cfg.Logging.File != "") {
		logCfg := logging.DefaultConfig()
		if cfg.Logging.Level != "" {
			logCfg.Level = cfg.Logging.Level
		}
		logCfg.FilePath = cfg.Logging.File
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up logging: %w", err)
		}
		loggingCleanup = cleanup
	}

	return cfg, nil
}

// embedConfig maps the loaded config onto the embeddings client config.
func embedConfig(cfg *config.Config) embed.Config {
	return embed.Config{
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	}
}

// qdrantConfig maps the loaded config onto the vector store config.
func qdrantConfig(cfg *config.Config) vector.Config {
	return vector.Config{
		URL:        cfg.Qdrant.URL,
		Collection: cfg.Qdrant.Collection,
		APIKey:     cfg.Qdrant.APIKey,
	}
}
