package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reelpipe/hindex/configs"
	"github.com/reelpipe/hindex/internal/config"
	"github.com/reelpipe/hindex/internal/output"
)

// projectConfigName is the file config init writes in the working directory.
const projectConfigName = ".hindex.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage hindex configuration files.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/hindex/config.yaml)
  3. Project config (.hindex.yaml)
  4. Environment variables (SOURCE_DIR, QDRANT_URL, ...)
  5. Command-line flags`,
		Example: `  # Write an annotated .hindex.yaml into the current directory
  hindex config init

  # Show the effective merged configuration
  hindex config show`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project configuration file",
		Long: `Write the annotated configuration template to .hindex.yaml in the
current directory. Secrets (OPENAI_API_KEY, QDRANT_API_KEY) stay in the
environment or a .env file; they are never written to the config.`,
		Example: `  hindex config init
  hindex config init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .hindex.yaml")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the merged configuration after defaults, user and project
files, and environment overrides. Secrets are omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(projectConfigName); err == nil && !force {
		out.Warningf("%s already exists", projectConfigName)
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}

	if err := os.WriteFile(projectConfigName, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", projectConfigName, err)
	}

	out.Successf("Created %s", projectConfigName)
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Edit source.dir and qdrant.collection for your project")
	out.Status("", "  2. Export OPENAI_API_KEY (or put it in .env)")
	out.Status("", "  3. Run 'hindex check' to verify the setup")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}
