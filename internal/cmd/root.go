package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iborker/iborker/internal/config"
	"github.com/iborker/iborker/internal/lockstore"
	"github.com/iborker/iborker/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "iborker",
	Short: "Client ID allocator for IB gateway tools",
	Long: `iborker hands out gateway client IDs to the tools of the suite so that
several of them can share one TWS or IB Gateway session.

Every tool category owns a window of IDs above a configurable floor.
In auto mode a tool claims the lowest free ID of its window through
a shared lock directory; in fixed mode it uses IB_CLIENT_ID_FIXED.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/iborker/config.yaml)")
	rootCmd.PersistentFlags().String("locks-dir", "", "lock directory (overrides locks.dir)")
	bindFlags()
}

func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("locks.dir", rootCmd.PersistentFlags().Lookup("locks-dir"))
}

func initConfig() {
	// .env values only fill variables the environment leaves unset
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: ignoring .env: %v\n", err)
	}

	// Set defaults first so they're available even without a config file
	config.SetDefaults()
	config.BindEnv()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// newLogger builds the command logger. Without logging.dir it writes to w.
func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	if cfg.Logging.Dir == "" {
		return logging.NewWriterLogger(w, cfg.Logging.Level), nil
	}
	return logging.NewLoggerWithRotation(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

func openStore(cfg *config.Config, logger *logging.Logger) (*lockstore.Store, error) {
	return lockstore.New(cfg.Locks.ResolveDir(), lockstore.WithLogger(logger))
}

// setup loads the configuration and opens the logger every subcommand uses.
func setup(cmd *cobra.Command) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.With("command", cmd.Name()), nil
}
