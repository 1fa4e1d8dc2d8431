package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/iborker/iborker/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View iborker configuration",
	Long: `View iborker configuration.

Without arguments, displays the effective configuration: defaults,
overridden by the config file, .env files and IB_* environment variables.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/iborker/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// defaultConfigContent is written by config init.
const defaultConfigContent = `# iborker configuration

# Client ID selection
client_id:
  # auto: claim the lowest free ID of the tool's range
  # fixed: always use client_id.fixed (IB_CLIENT_ID_FIXED)
  mode: auto
  # Floor added to every category offset (cli +0, trader +10, analyzer +20)
  start: 1
  # fixed: 7

# Shared directory of lock markers, one per held ID
locks:
  dir: ~/.iborker/locks

allocation:
  # Upper bound for acquiring an ID, including waits on other processes
  timeout: 5s

# Gateway passed to tools started with 'iborker run' (IB_HOST, IB_PORT)
gateway:
  host: 127.0.0.1
  port: 7497
  timeout: 10s
  readonly: false

logging:
  # debug, info, warn or error
  level: info
  # Directory for iborker.log; empty logs to stderr
  dir: ""
  max_size_mb: 10
  max_backups: 3

metrics:
  # Prometheus textfile written after each run; empty disables export
  textfile: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\n.env files:")
	for i, path := range config.DotEnvFiles() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, path)
	}
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_CLIENT_ID_START)\n", config.EnvPrefix, config.EnvPrefix)

	return nil
}
